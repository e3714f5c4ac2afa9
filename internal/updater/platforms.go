package updater

import (
	"github.com/danmuck/agentctl/internal/tools"
	"github.com/rs/zerolog"
)

// WindowsUpdater installs MSI packages quietly.
type WindowsUpdater struct{ *Checker }

func NewWindowsUpdater(cfg Config, logger zerolog.Logger, opts ...Option) *WindowsUpdater {
	return &WindowsUpdater{newChecker(cfg, installMSI, logger, opts...)}
}

// LinuxUpdater runs the downloaded install script.
type LinuxUpdater struct{ *Checker }

func NewLinuxUpdater(cfg Config, logger zerolog.Logger, opts ...Option) *LinuxUpdater {
	return &LinuxUpdater{newChecker(cfg, installScript, logger, opts...)}
}

// MacUpdater installs a flat package onto the boot volume.
type MacUpdater struct{ *Checker }

func NewMacUpdater(cfg Config, logger zerolog.Logger, opts ...Option) *MacUpdater {
	return &MacUpdater{newChecker(cfg, installPkg, logger, opts...)}
}

func installMSI(runner tools.CommandRunner, path string) error {
	_, err := runner.Start("msiexec", "/i", path, "/quiet", "/norestart")
	return err
}

func installScript(runner tools.CommandRunner, path string) error {
	_, err := runner.Start("/bin/sh", path)
	return err
}

func installPkg(runner tools.CommandRunner, path string) error {
	_, err := runner.Start("/usr/sbin/installer", "-pkg", path, "-target", "/")
	return err
}
