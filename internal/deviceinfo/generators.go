package deviceinfo

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/agentctl/internal/platform"
)

// LinuxGenerator reports the distribution and the first logged-in user.
type LinuxGenerator struct{ base }

func NewLinuxGenerator(opts Options) *LinuxGenerator {
	return &LinuxGenerator{newBase(platform.Linux, "/", opts)}
}

func (g *LinuxGenerator) CreateDevice(ctx context.Context, deviceID, orgID string) (platform.Device, error) {
	d, info := g.fill(ctx, deviceID, orgID)
	d.OSDescription = describe("Linux", titleWord(info.Platform), info.PlatformVersion)
	// Empty on headless hosts.
	d.CurrentUser = g.sessionUser(ctx, "")
	return d, nil
}

// MacGenerator reports the macOS version and the console owner.
type MacGenerator struct{ base }

func NewMacGenerator(opts Options) *MacGenerator {
	return &MacGenerator{newBase(platform.MacOS, "/", opts)}
}

func (g *MacGenerator) CreateDevice(ctx context.Context, deviceID, orgID string) (platform.Device, error) {
	d, info := g.fill(ctx, deviceID, orgID)
	d.OSDescription = "macOS"
	if v := strings.TrimSpace(info.PlatformVersion); v != "" {
		d.OSDescription = "macOS " + v
	}
	d.CurrentUser = g.sessionUser(ctx, "console")
	return d, nil
}

// WindowsGenerator reports the Windows edition and the interactive user.
type WindowsGenerator struct {
	base
	consoleUser func() (string, error)
}

func NewWindowsGenerator(opts Options) *WindowsGenerator {
	root := filepath.VolumeName(os.Getenv("SystemRoot"))
	if root == "" {
		root = "C:"
	}
	return &WindowsGenerator{
		base:        newBase(platform.Windows, root+`\`, opts),
		consoleUser: consoleUser,
	}
}

func (g *WindowsGenerator) CreateDevice(ctx context.Context, deviceID, orgID string) (platform.Device, error) {
	d, info := g.fill(ctx, deviceID, orgID)
	d.OSDescription = "Microsoft Windows"
	switch name := strings.TrimSpace(info.Platform); {
	case strings.HasPrefix(name, "Microsoft Windows"):
		d.OSDescription = describe(d.OSDescription, name, info.PlatformVersion)
	case info.PlatformVersion != "":
		d.OSDescription = describe(d.OSDescription, "Microsoft Windows", info.PlatformVersion)
	}

	// The interactive user owns the console session, not the service.
	user, err := g.consoleUser()
	if err != nil {
		g.opts.Logger.Debug().Err(err).Msg("deviceinfo console user unavailable")
	}
	if _, name, ok := strings.Cut(user, `\`); ok {
		user = name
	}
	d.CurrentUser = strings.TrimSpace(user)
	return d, nil
}

func titleWord(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
