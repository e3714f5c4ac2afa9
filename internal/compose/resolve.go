package compose

import (
	"fmt"
	"net/http"

	"github.com/danmuck/agentctl/internal/deviceinfo"
	"github.com/danmuck/agentctl/internal/launcher"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/privilege"
	"github.com/danmuck/agentctl/internal/tools"
	"github.com/danmuck/agentctl/internal/updater"
	"github.com/rs/zerolog"
)

// Deps are the shared collaborators handed to every capability factory.
type Deps struct {
	Runner       tools.CommandRunner
	HTTPClient   *http.Client
	Spawner      updater.Spawner
	CPU          deviceinfo.CPUSource
	AppDir       string
	Updater      updater.Config
	AgentVersion string
	Logger       zerolog.Logger
}

type factory func(Deps) platform.Binding

// bindings has exactly one entry per supported kind.
var bindings = map[platform.Kind]factory{
	platform.Windows: windowsBinding,
	platform.Linux:   linuxBinding,
	platform.MacOS:   macBinding,
}

// Resolve returns the capability binding for kind. An unknown kind binds
// nothing and fails with platform.ErrUnsupportedPlatform.
func Resolve(kind platform.Kind, deps Deps) (platform.Binding, error) {
	f, ok := bindings[kind]
	if !ok {
		return platform.Binding{}, fmt.Errorf("%w: %s", platform.ErrUnsupportedPlatform, kind)
	}
	if deps.Runner == nil {
		deps.Runner = tools.ExecRunner{}
	}
	b := f(deps)
	if err := b.Validate(); err != nil {
		return platform.Binding{}, err
	}
	return b, nil
}

func windowsBinding(d Deps) platform.Binding {
	elevation := privilege.NewWindowsDetector()
	return platform.Binding{
		Platform:   platform.Windows,
		Launcher:   launcher.NewWindowsLauncher(d.Runner, d.AppDir, d.Logger),
		Updater:    updater.NewWindowsUpdater(d.Updater, d.Logger, updaterOptions(d)...),
		DeviceInfo: deviceinfo.NewWindowsGenerator(deviceOptions(d, elevation)),
		Elevation:  elevation,
	}
}

func linuxBinding(d Deps) platform.Binding {
	elevation := privilege.NewLinuxDetector()
	return platform.Binding{
		Platform:   platform.Linux,
		Launcher:   launcher.NewLinuxLauncher(d.Runner, d.AppDir, d.Logger),
		Updater:    updater.NewLinuxUpdater(d.Updater, d.Logger, updaterOptions(d)...),
		DeviceInfo: deviceinfo.NewLinuxGenerator(deviceOptions(d, elevation)),
		Elevation:  elevation,
	}
}

func macBinding(d Deps) platform.Binding {
	elevation := privilege.NewMacDetector()
	return platform.Binding{
		Platform:   platform.MacOS,
		Launcher:   launcher.NewMacLauncher(d.Runner, d.AppDir, d.Logger),
		Updater:    updater.NewMacUpdater(d.Updater, d.Logger, updaterOptions(d)...),
		DeviceInfo: deviceinfo.NewMacGenerator(deviceOptions(d, elevation)),
		Elevation:  elevation,
	}
}

func updaterOptions(d Deps) []updater.Option {
	opts := []updater.Option{updater.WithRunner(d.Runner)}
	if d.HTTPClient != nil {
		opts = append(opts, updater.WithHTTPClient(d.HTTPClient))
	}
	if d.Spawner != nil {
		opts = append(opts, updater.WithSpawner(d.Spawner))
	}
	return opts
}

func deviceOptions(d Deps, elevation platform.ElevationDetector) deviceinfo.Options {
	return deviceinfo.Options{
		CPU:          d.CPU,
		Elevation:    elevation,
		AgentVersion: d.AgentVersion,
		Logger:       d.Logger,
	}
}
