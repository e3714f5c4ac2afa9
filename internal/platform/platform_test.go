package platform

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

type stubLauncher struct{}

func (stubLauncher) LaunchRemoteControl(context.Context, LaunchRequest) error { return nil }

type stubUpdater struct{}

func (stubUpdater) BeginChecking(context.Context) error   { return nil }
func (stubUpdater) CheckForUpdates(context.Context) error { return nil }

type stubDevice struct{}

func (stubDevice) CreateDevice(context.Context, string, string) (Device, error) {
	return Device{}, nil
}

type stubElevation struct{}

func (stubElevation) IsElevated() bool      { return false }
func (stubElevation) StatusMessage() string { return "" }

func TestFromGOOS(t *testing.T) {
	cases := map[string]Kind{
		"windows": Windows,
		"linux":   Linux,
		"darwin":  MacOS,
		"Darwin":  MacOS,
		"freebsd": Unknown,
		"":        Unknown,
	}
	for goos, want := range cases {
		if got := FromGOOS(goos); got != want {
			t.Fatalf("FromGOOS(%q)=%s want %s", goos, got, want)
		}
	}
}

func TestDetectMatchesRuntime(t *testing.T) {
	if Detect() != FromGOOS(runtime.GOOS) {
		t.Fatalf("Detect disagrees with runtime.GOOS=%s", runtime.GOOS)
	}
}

func TestSupported(t *testing.T) {
	for _, k := range []Kind{Windows, Linux, MacOS} {
		if !k.Supported() {
			t.Fatalf("expected %s supported", k)
		}
	}
	if Unknown.Supported() || Kind(42).Supported() {
		t.Fatalf("expected unknown kinds unsupported")
	}
}

func TestBindingValidate(t *testing.T) {
	b := Binding{
		Platform:   Linux,
		Launcher:   stubLauncher{},
		Updater:    stubUpdater{},
		DeviceInfo: stubDevice{},
	}
	err := b.Validate()
	if err == nil || !strings.Contains(err.Error(), string(CapabilityElevation)) {
		t.Fatalf("expected unbound elevation error, got %v", err)
	}
	if b.Count() != 3 {
		t.Fatalf("expected 3 bound capabilities, got %d", b.Count())
	}

	b.Elevation = stubElevation{}
	if err := b.Validate(); err != nil {
		t.Fatalf("expected valid binding, got %v", err)
	}
	if b.Count() != len(Capabilities()) {
		t.Fatalf("expected every capability bound, got %d", b.Count())
	}
	if !strings.Contains(b.String(), "launcher=platform.stubLauncher") {
		t.Fatalf("unexpected description: %s", b.String())
	}
}

func TestZeroBindingBindsNothing(t *testing.T) {
	if (Binding{}).Count() != 0 {
		t.Fatalf("expected zero binding to be empty")
	}
}
