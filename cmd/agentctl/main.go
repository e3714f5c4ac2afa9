package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danmuck/agentctl/internal/compose"
	"github.com/danmuck/agentctl/internal/config"
	"github.com/danmuck/agentctl/internal/failsafe"
	"github.com/danmuck/agentctl/internal/hosting"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/procenv"
	"github.com/danmuck/agentctl/internal/startup"
	"github.com/danmuck/agentctl/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Unattended remote-support agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName,
		"agent config file; relative paths resolve against the executable directory")

	root.AddCommand(newVersionCmd(), newStatusCmd(), newConfigCmd(&configPath))
	return root
}

func runAgent(configPath string) error {
	logging.ConfigureRuntime()
	fs := failsafe.New(version.Component, version.Version, "startup")

	return hosting.RunService(version.Component, func(ctx context.Context) error {
		var orch *startup.Orchestrator
		orch = startup.New(func() (*startup.Components, error) {
			exeDir, err := procenv.NewNormalizer().ExecutableDir()
			if err != nil {
				return nil, err
			}
			cfg, err := loadConfig(resolveConfigPath(configPath, exeDir))
			if err != nil {
				return nil, err
			}
			svcs, err := compose.Build(compose.Options{
				Platform:      platform.Detect(),
				Config:        cfg,
				Version:       version.Version,
				ExecutableDir: exeDir,
				Status:        orch,
			})
			if err != nil {
				return nil, err
			}
			return svcs.Startup(), nil
		}, startup.WithFailSafe(fs))
		return orch.Run(ctx)
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Component, version.Version)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print platform, elevation and capability bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind := platform.Detect()
			b, err := compose.Resolve(kind, compose.Deps{Logger: zerolog.Nop()})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "platform: %s\n", kind)
			fmt.Fprintf(out, "elevated: %t\n", b.Elevation.IsElevated())
			fmt.Fprintf(out, "%s\n", b.Elevation.StatusMessage())
			for _, c := range platform.Capabilities() {
				fmt.Fprintf(out, "%s: %s\n", c, b.Describe()[c])
			}
			return nil
		},
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the agent config file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(*configPath, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", *configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}
