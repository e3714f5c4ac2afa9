// Package launcher starts the remote-control desktop app when the hub
// requests a session. Each platform has its own launcher type; all of them
// compile everywhere so the composition table can bind any of them.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/tools"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidRequest    = errors.New("launcher: invalid launch request")
	ErrDesktopAppMissing = errors.New("launcher: remote control app not found")
)

// Desktop app file names, resolved relative to the app directory.
const (
	WindowsDesktopApp = "agentctl-desktop.exe"
	LinuxDesktopApp   = "agentctl-desktop"
	MacDesktopApp     = "AgentctlDesktop.app"
)

type base struct {
	runner  tools.CommandRunner
	appPath string
	logger  zerolog.Logger
}

func newBase(runner tools.CommandRunner, appDir, appName string, logger zerolog.Logger) base {
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	return base{
		runner:  runner,
		appPath: filepath.Join(appDir, appName),
		logger:  logger,
	}
}

// AppPath is the desktop app this launcher starts.
func (b base) AppPath() string {
	return b.appPath
}

func (b base) prepare(ctx context.Context, req platform.LaunchRequest) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := Validate(req); err != nil {
		return err
	}
	if _, err := os.Stat(b.appPath); err != nil {
		return fmt.Errorf("%w: %s", ErrDesktopAppMissing, b.appPath)
	}
	return nil
}

func (b base) start(name string, args []string, req platform.LaunchRequest) error {
	pid, err := b.runner.Start(name, args...)
	if err != nil {
		b.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("launcher remote control start failed")
		return err
	}
	b.logger.Info().
		Int("pid", pid).
		Str("session_id", req.SessionID).
		Str("requester", req.RequesterName).
		Msg("launcher remote control started")
	return nil
}

// Validate checks the fields every launcher needs.
func Validate(req platform.LaunchRequest) error {
	var missing []string
	if strings.TrimSpace(req.SessionID) == "" {
		missing = append(missing, "session_id")
	}
	if strings.TrimSpace(req.AccessKey) == "" {
		missing = append(missing, "access_key")
	}
	if strings.TrimSpace(req.ServerURL) == "" {
		missing = append(missing, "server_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ","))
	}
	return nil
}

// Args renders the desktop app command line for req.
func Args(req platform.LaunchRequest) []string {
	return []string{
		"--mode", "Unattended",
		"--host", req.ServerURL,
		"--session-id", req.SessionID,
		"--access-key", req.AccessKey,
		"--requester-name", req.RequesterName,
		"--org-name", req.OrganizationName,
	}
}

// WindowsLauncher starts the desktop app directly.
type WindowsLauncher struct{ base }

func NewWindowsLauncher(runner tools.CommandRunner, appDir string, logger zerolog.Logger) *WindowsLauncher {
	return &WindowsLauncher{newBase(runner, appDir, WindowsDesktopApp, logger)}
}

func (l *WindowsLauncher) LaunchRemoteControl(ctx context.Context, req platform.LaunchRequest) error {
	if err := l.prepare(ctx, req); err != nil {
		return err
	}
	return l.start(l.appPath, Args(req), req)
}

// LinuxLauncher starts the desktop app with a display, defaulting to :0
// when the agent runs without one.
type LinuxLauncher struct{ base }

func NewLinuxLauncher(runner tools.CommandRunner, appDir string, logger zerolog.Logger) *LinuxLauncher {
	return &LinuxLauncher{newBase(runner, appDir, LinuxDesktopApp, logger)}
}

func (l *LinuxLauncher) LaunchRemoteControl(ctx context.Context, req platform.LaunchRequest) error {
	if err := l.prepare(ctx, req); err != nil {
		return err
	}
	display := strings.TrimSpace(os.Getenv("DISPLAY"))
	if display == "" {
		display = ":0"
	}
	args := append([]string{"DISPLAY=" + display, l.appPath}, Args(req)...)
	return l.start("env", args, req)
}

// MacLauncher opens the app bundle through LaunchServices.
type MacLauncher struct{ base }

func NewMacLauncher(runner tools.CommandRunner, appDir string, logger zerolog.Logger) *MacLauncher {
	return &MacLauncher{newBase(runner, appDir, MacDesktopApp, logger)}
}

func (l *MacLauncher) LaunchRemoteControl(ctx context.Context, req platform.LaunchRequest) error {
	if err := l.prepare(ctx, req); err != nil {
		return err
	}
	args := append([]string{"-n", "-a", l.appPath, "--args"}, Args(req)...)
	return l.start("open", args, req)
}
