package platform

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrUnsupportedPlatform is fatal: the agent has no launcher or updater for the host.
var ErrUnsupportedPlatform = errors.New("platform: operating system not supported")

// Kind is the closed set of host operating systems.
type Kind int

const (
	Unknown Kind = iota
	Windows
	Linux
	MacOS
)

func (k Kind) String() string {
	switch k {
	case Windows:
		return "windows"
	case Linux:
		return "linux"
	case MacOS:
		return "macos"
	default:
		return "unknown"
	}
}

// Supported reports whether k is one of the bound kinds.
func (k Kind) Supported() bool {
	switch k {
	case Windows, Linux, MacOS:
		return true
	default:
		return false
	}
}

// Detect maps the running GOOS to a Kind. It is evaluated once at startup.
func Detect() Kind {
	return FromGOOS(runtime.GOOS)
}

func FromGOOS(goos string) Kind {
	switch strings.ToLower(strings.TrimSpace(goos)) {
	case "windows":
		return Windows
	case "linux":
		return Linux
	case "darwin", "macos":
		return MacOS
	default:
		return Unknown
	}
}

// Capability names one abstract service contract.
type Capability string

const (
	CapabilityLauncher   Capability = "launcher"
	CapabilityUpdater    Capability = "updater"
	CapabilityDeviceInfo Capability = "device_info"
	CapabilityElevation  Capability = "elevation_detector"
)

// Capabilities lists every capability a Binding must satisfy.
func Capabilities() []Capability {
	return []Capability{
		CapabilityLauncher,
		CapabilityUpdater,
		CapabilityDeviceInfo,
		CapabilityElevation,
	}
}

// Binding holds exactly one implementation per capability for a Kind.
type Binding struct {
	Platform   Kind
	Launcher   Launcher
	Updater    Updater
	DeviceInfo DeviceInfoGenerator
	Elevation  ElevationDetector
}

// Validate returns an error naming the first unbound capability.
func (b Binding) Validate() error {
	for _, c := range Capabilities() {
		if b.lookup(c) == nil {
			return fmt.Errorf("platform: capability %s unbound for %s", c, b.Platform)
		}
	}
	return nil
}

// Describe maps each bound capability to its concrete type name.
func (b Binding) Describe() map[Capability]string {
	out := make(map[Capability]string, 4)
	for _, c := range Capabilities() {
		if impl := b.lookup(c); impl != nil {
			out[c] = fmt.Sprintf("%T", impl)
		}
	}
	return out
}

// Count returns the number of bound capabilities.
func (b Binding) Count() int {
	return len(b.Describe())
}

// String renders bindings in capability order for logs.
func (b Binding) String() string {
	desc := b.Describe()
	keys := make([]string, 0, len(desc))
	for c, name := range desc {
		keys = append(keys, fmt.Sprintf("%s=%s", c, name))
	}
	sort.Strings(keys)
	return strings.Join(keys, " ")
}

func (b Binding) lookup(c Capability) any {
	switch c {
	case CapabilityLauncher:
		if b.Launcher != nil {
			return b.Launcher
		}
	case CapabilityUpdater:
		if b.Updater != nil {
			return b.Updater
		}
	case CapabilityDeviceInfo:
		if b.DeviceInfo != nil {
			return b.DeviceInfo
		}
	case CapabilityElevation:
		if b.Elevation != nil {
			return b.Elevation
		}
	}
	return nil
}
