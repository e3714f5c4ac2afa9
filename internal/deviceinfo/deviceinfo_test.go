package deviceinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

type fixedCPU float64

func (c fixedCPU) Current() float64 { return float64(c) }

type fixedElevation bool

func (e fixedElevation) IsElevated() bool      { return bool(e) }
func (e fixedElevation) StatusMessage() string { return "" }

func fakeSources(info host.InfoStat, users ...host.UserStat) sources {
	return sources{
		info: func(context.Context) (*host.InfoStat, error) { return &info, nil },
		memory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 16384000 * 1024, Available: 8192000 * 1024}, nil
		},
		disk: func(context.Context, string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Total: 100 * gib, Free: 25 * gib}, nil
		},
		users: func(context.Context) ([]host.UserStat, error) { return users, nil },
	}
}

func failingSources() sources {
	fail := errors.New("not implemented yet")
	return sources{
		info:   func(context.Context) (*host.InfoStat, error) { return nil, fail },
		memory: func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, fail },
		disk:   func(context.Context, string) (*disk.UsageStat, error) { return nil, fail },
		users:  func(context.Context) ([]host.UserStat, error) { return nil, fail },
	}
}

func TestLinuxGeneratorSnapshot(t *testing.T) {
	testlog.Start(t)
	g := NewLinuxGenerator(Options{
		CPU:          fixedCPU(0.4567),
		Elevation:    fixedElevation(true),
		AgentVersion: "1.4.0",
		Logger:       testlog.Logger(t),
	})
	g.sources = fakeSources(
		host.InfoStat{Hostname: "build-01", Platform: "debian", PlatformVersion: "12.5"},
		host.UserStat{User: "alice", Terminal: "pts/0"},
		host.UserStat{User: "bob", Terminal: "tty1"},
	)

	d, err := g.CreateDevice(context.Background(), "dev-1", "org-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if d.ID != "dev-1" || d.OrganizationID != "org-1" || d.DeviceName != "build-01" || d.Platform != "linux" {
		t.Fatalf("unexpected identity: %+v", d)
	}
	if d.OSDescription != "Debian 12.5" || d.CurrentUser != "alice" {
		t.Fatalf("unexpected os/user: %+v", d)
	}
	if d.CPUUtilization != 0.46 || !d.IsAdministrator || d.AgentVersion != "1.4.0" {
		t.Fatalf("unexpected cpu/admin/version: %+v", d)
	}
	if d.TotalMemoryGB != 15.63 || d.UsedMemoryGB != 7.81 {
		t.Fatalf("unexpected memory: total=%v used=%v", d.TotalMemoryGB, d.UsedMemoryGB)
	}
	if d.TotalStorageGB != 100 || d.UsedStorageGB != 75 {
		t.Fatalf("unexpected storage: %+v", d)
	}
}

func TestLinuxGeneratorToleratesMissingSources(t *testing.T) {
	testlog.Start(t)
	g := NewLinuxGenerator(Options{Logger: testlog.Logger(t)})
	g.sources = failingSources()

	d, err := g.CreateDevice(context.Background(), "dev-1", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if d.OSDescription != "Linux" || d.TotalMemoryGB != 0 || d.TotalStorageGB != 0 || d.CurrentUser != "" {
		t.Fatalf("unexpected snapshot: %+v", d)
	}
}

func TestMacGeneratorPrefersConsoleUser(t *testing.T) {
	testlog.Start(t)
	g := NewMacGenerator(Options{Logger: testlog.Logger(t)})
	g.sources = fakeSources(
		host.InfoStat{Hostname: "mbp", Platform: "darwin", PlatformVersion: "14.4.1"},
		host.UserStat{User: "ops", Terminal: "ttys000"},
		host.UserStat{User: "carol", Terminal: "console"},
	)
	d, err := g.CreateDevice(context.Background(), "dev-1", "org")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if d.OSDescription != "macOS 14.4.1" || d.CurrentUser != "carol" || d.Platform != "macos" {
		t.Fatalf("unexpected snapshot: %+v", d)
	}
}

func TestWindowsGeneratorStripsDomain(t *testing.T) {
	testlog.Start(t)
	g := NewWindowsGenerator(Options{Logger: testlog.Logger(t)})
	g.sources = fakeSources(host.InfoStat{
		Hostname:        "DESKTOP-1",
		Platform:        "Microsoft Windows 11 Pro",
		PlatformVersion: "10.0.22631 Build 22631",
	})
	g.consoleUser = func() (string, error) { return "CORP\\alice", nil }

	d, err := g.CreateDevice(context.Background(), "dev-1", "org")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if d.CurrentUser != "alice" || d.Platform != "windows" {
		t.Fatalf("unexpected snapshot: %+v", d)
	}
	if d.OSDescription != "Microsoft Windows 11 Pro 10.0.22631 Build 22631" {
		t.Fatalf("unexpected os description %q", d.OSDescription)
	}
}

func TestWindowsGeneratorWithoutConsoleUser(t *testing.T) {
	testlog.Start(t)
	g := NewWindowsGenerator(Options{Logger: testlog.Logger(t)})
	g.sources = failingSources()
	g.consoleUser = func() (string, error) { return "", ErrUnavailable }

	d, err := g.CreateDevice(context.Background(), "dev-1", "org")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if d.CurrentUser != "" || d.OSDescription != "Microsoft Windows" {
		t.Fatalf("unexpected snapshot: %+v", d)
	}
}

func TestHostSourcesReadThisMachine(t *testing.T) {
	testlog.Start(t)
	g := NewLinuxGenerator(Options{Logger: testlog.Logger(t)})
	d, err := g.CreateDevice(context.Background(), "dev-1", "org")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if d.DeviceName == "" || d.ProcessorCount <= 0 {
		t.Fatalf("expected live host values, got %+v", d)
	}
}
