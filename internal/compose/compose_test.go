package compose

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/danmuck/agentctl/internal/config"
	"github.com/danmuck/agentctl/internal/faults"
	"github.com/danmuck/agentctl/internal/hosting"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/testutil/testlog"
)

func TestResolveBindsEveryCapabilityDeterministically(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []platform.Kind{platform.Windows, platform.Linux, platform.MacOS} {
		deps := Deps{AppDir: t.TempDir(), Logger: testlog.Logger(t)}
		first, err := Resolve(kind, deps)
		if err != nil {
			t.Fatalf("resolve %s failed: %v", kind, err)
		}
		if first.Count() != len(platform.Capabilities()) || first.Platform != kind {
			t.Fatalf("resolve %s bound %d capabilities: %s", kind, first.Count(), first)
		}
		second, err := Resolve(kind, deps)
		if err != nil {
			t.Fatalf("second resolve %s failed: %v", kind, err)
		}
		if !reflect.DeepEqual(first.Describe(), second.Describe()) {
			t.Fatalf("resolve %s not deterministic: %v vs %v", kind, first.Describe(), second.Describe())
		}
	}
}

func TestResolveBindsPlatformSpecificTypes(t *testing.T) {
	testlog.Start(t)
	b, err := Resolve(platform.Windows, Deps{})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := map[platform.Capability]string{
		platform.CapabilityLauncher:   "*launcher.WindowsLauncher",
		platform.CapabilityUpdater:    "*updater.WindowsUpdater",
		platform.CapabilityDeviceInfo: "*deviceinfo.WindowsGenerator",
		platform.CapabilityElevation:  "*privilege.WindowsDetector",
	}
	if got := b.Describe(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected windows binding: %v", got)
	}
}

func TestResolveUnknownBindsNothing(t *testing.T) {
	testlog.Start(t)
	b, err := Resolve(platform.Unknown, Deps{})
	if !errors.Is(err, platform.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if b.Count() != 0 {
		t.Fatalf("expected zero bindings, got %s", b)
	}
}

func testOptions(t *testing.T, kind platform.Kind) Options {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.LogDir = t.TempDir()
	cfg.Hub.ServerURL = "https://hub.example"
	var out bytes.Buffer
	return Options{
		Platform:      kind,
		Config:        cfg,
		Version:       "1.0.0",
		ExecutableDir: t.TempDir(),
		Console:       &out,
		Debug:         &out,
		HostOptions:   []hosting.Option{hosting.WithNotifier(hosting.NopNotifier{}), hosting.WithSignals()},
	}
}

func TestBuildUnknownPlatformIsFatal(t *testing.T) {
	testlog.Start(t)
	s, err := Build(testOptions(t, platform.Unknown))
	if !errors.Is(err, platform.ErrUnsupportedPlatform) || s != nil {
		t.Fatalf("expected fatal unsupported platform, got %v %v", s, err)
	}
}

func TestBuildComposesLinuxServices(t *testing.T) {
	testlog.Start(t)
	opts := testOptions(t, platform.Linux)
	opts.Config.Status.ListenAddr = "127.0.0.1:0"
	s, err := Build(opts)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer s.Close()

	if s.Binding.Count() != 4 || s.HTTPClient.Timeout != HTTPTimeout {
		t.Fatalf("unexpected services: bindings=%d timeout=%v", s.Binding.Count(), s.HTTPClient.Timeout)
	}
	if got := s.Host.Services(); !reflect.DeepEqual(got, []string{"cpu-sampler", "status-server"}) {
		t.Fatalf("unexpected hosted services: %v", got)
	}
	if s.Connection.DeviceID == "" || s.Connection.Host != "https://hub.example" {
		t.Fatalf("unexpected connection info: %+v", s.Connection)
	}
	server, device, _ := s.Hub.Info()
	if server != "https://hub.example" || device != s.Connection.DeviceID {
		t.Fatalf("hub not wired to connection info: %s %s", server, device)
	}

	c := s.Startup()
	if c.Host == nil || c.Environment == nil || c.Faults == nil || c.Policies == nil ||
		c.Updater == nil || c.Hub == nil || c.Elevation == nil || c.Close == nil {
		t.Fatalf("incomplete startup components: %+v", c)
	}
	if _, err := os.Stat(filepath.Join(opts.ExecutableDir, config.ConnectionInfoFile)); err != nil {
		t.Fatalf("connection info not persisted: %v", err)
	}
}

func TestBuildFailsOnUnusableLogDir(t *testing.T) {
	testlog.Start(t)
	opts := testOptions(t, platform.Linux)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := writeFile(blocker); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	opts.Config.Agent.LogDir = blocker
	if _, err := Build(opts); err == nil {
		t.Fatalf("expected log dir failure")
	}
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func TestBuildRoutesHostedFaultsToSupervisor(t *testing.T) {
	testlog.Start(t)
	s, err := Build(testOptions(t, platform.Linux))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer s.Close()

	got := make(chan faults.Fault, 1)
	s.Faults.OnFault(func(f faults.Fault) { got <- f })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Faults.Install(ctx); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if err := s.Host.Add(hosting.Func{ServiceName: "exploding", Fn: func(context.Context) error { panic("boom") }}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.Host.Start(ctx); err != nil {
		t.Fatalf("host start failed: %v", err)
	}
	defer s.Host.Stop()

	select {
	case f := <-got:
		if f.Source != "exploding" || !f.Panicked {
			t.Fatalf("unexpected fault: %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hosted panic never reached the supervisor, handled=%d", s.Faults.Handled())
	}
}
