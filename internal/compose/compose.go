// Package compose is the composition root: it binds platform capabilities
// and builds the cross-cutting services once per process.
package compose

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/agentctl/internal/auth"
	"github.com/danmuck/agentctl/internal/config"
	"github.com/danmuck/agentctl/internal/cpusampler"
	"github.com/danmuck/agentctl/internal/faults"
	"github.com/danmuck/agentctl/internal/hosting"
	"github.com/danmuck/agentctl/internal/hub"
	"github.com/danmuck/agentctl/internal/logging"
	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/policy"
	"github.com/danmuck/agentctl/internal/procenv"
	"github.com/danmuck/agentctl/internal/startup"
	"github.com/danmuck/agentctl/internal/tools"
	"github.com/danmuck/agentctl/internal/updater"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HTTPTimeout bounds every outbound request made with the shared client.
const HTTPTimeout = 30 * time.Second

// Options are the inputs to Build.
type Options struct {
	Platform platform.Kind
	Config   config.Config
	Version  string

	// ExecutableDir anchors the app dir and connection info. Empty means
	// the directory procenv resolves.
	ExecutableDir string

	// Status backs /status when the status server is enabled.
	Status observability.StatusSource

	// Optional overrides, mostly for tests.
	Console      io.Writer
	Debug        io.Writer
	Runner       tools.CommandRunner
	PolicyWriter policy.Writer
	HostOptions  []hosting.Option
}

// Services is the composed graph. It is read-only after Build.
type Services struct {
	Platform   platform.Kind
	Binding    platform.Binding
	Config     config.Config
	Connection config.ConnectionInfo
	Logger     zerolog.Logger
	HTTPClient *http.Client
	Faults     *faults.Supervisor
	Host       *hosting.Host
	Normalizer *procenv.Normalizer
	Policies   *policy.Applier
	Hub        *hub.Connection
	Sampler    *cpusampler.Sampler
	Status     *observability.StatusServer

	logCloser io.Closer
}

// Build composes every service for opts.Platform. An unsupported platform
// fails before anything is created.
func Build(opts Options) (*Services, error) {
	if !opts.Platform.Supported() {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnsupportedPlatform, opts.Platform)
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := buildLogger(opts)
	if err != nil {
		return nil, err
	}
	log.Logger = logger
	observability.RegisterMetrics()

	s := &Services{
		Platform:   opts.Platform,
		Config:     cfg,
		Logger:     logger,
		HTTPClient: newHTTPClient(),
		Faults:     faults.NewSupervisor(logger, 64),
		Normalizer: procenv.NewNormalizer(),
		Sampler:    cpusampler.New(cfg.Sampler.Interval, logger),
		logCloser:  closer,
	}

	exeDir := strings.TrimSpace(opts.ExecutableDir)
	if exeDir == "" {
		if exeDir, err = s.Normalizer.ExecutableDir(); err != nil {
			_ = closer.Close()
			return nil, err
		}
	}
	appDir := strings.TrimSpace(cfg.Agent.AppDir)
	if appDir == "" {
		appDir = exeDir
	}

	upd := updater.DefaultConfig()
	upd.ManifestURL = cfg.Updater.ManifestURL
	upd.Schedule = cfg.Updater.Schedule
	upd.StagingDir = absUnder(exeDir, cfg.Updater.StagingDir)
	upd.CurrentVersion = opts.Version

	binding, err := Resolve(opts.Platform, Deps{
		Runner:       opts.Runner,
		HTTPClient:   s.HTTPClient,
		Spawner:      s.Faults,
		CPU:          s.Sampler,
		AppDir:       appDir,
		Updater:      upd,
		AgentVersion: opts.Version,
		Logger:       logger,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	s.Binding = binding
	s.Policies = policy.NewApplier(opts.Platform, binding.Elevation, opts.PolicyWriter, logger)

	infoPath := cfg.Agent.ConnectionInfoPath
	if strings.TrimSpace(infoPath) == "" {
		infoPath = filepath.Join(exeDir, config.ConnectionInfoFile)
	}
	conn, err := config.ResolveConnection(infoPath, cfg.Hub)
	if err != nil {
		logger.Warn().Err(err).Str("path", infoPath).Msg("compose.Build connection info not persisted")
	}
	s.Connection = conn

	hubCfg := hub.DefaultConfig()
	hubCfg.ServerURL = conn.Host
	hubCfg.DeviceID = conn.DeviceID
	hubCfg.OrganizationID = conn.OrganizationID
	hubCfg.HeartbeatInterval = cfg.Hub.Heartbeat
	hubCfg.Backoff.InitialDelay = cfg.Hub.BackoffInitial
	hubCfg.Backoff.MaxDelay = cfg.Hub.BackoffMax
	hubCfg.SocksProxy = cfg.Hub.SocksProxy
	hubCfg.CAFile = absUnder(exeDir, cfg.Hub.CAFile)
	s.Hub = hub.NewConnection(hubCfg, hub.Dependencies{
		Devices:  binding.DeviceInfo,
		Launcher: binding.Launcher,
		Updater:  binding.Updater,
		Spawner:  s.Faults,
	}, logger)

	hostOpts := append([]hosting.Option{hosting.WithFaults(s.Faults)}, opts.HostOptions...)
	s.Host = hosting.New(logger, hostOpts...)
	if err := s.Host.Add(s.Sampler); err != nil {
		_ = closer.Close()
		return nil, err
	}
	if addr := strings.TrimSpace(cfg.Status.ListenAddr); addr != "" {
		var statusOpts []observability.StatusOption
		if token := strings.TrimSpace(cfg.Status.Token); token != "" {
			statusOpts = append(statusOpts, observability.WithValidator(auth.StaticToken{Token: token}))
		}
		s.Status = observability.NewStatusServer(addr, opts.Status, logger, statusOpts...)
		if err := s.Host.Add(s.Status); err != nil {
			_ = closer.Close()
			return nil, err
		}
	}

	logger.Info().
		Str("platform", opts.Platform.String()).
		Str("bindings", binding.String()).
		Strs("hosted", s.Host.Services()).
		Msg("compose.Build composed")
	return s, nil
}

// Startup exposes the services the orchestrator drives.
func (s *Services) Startup() *startup.Components {
	return &startup.Components{
		Platform:    s.Platform,
		Host:        s.Host,
		Environment: s.Normalizer,
		Faults:      s.Faults,
		Policies:    s.Policies,
		Updater:     s.Binding.Updater,
		Hub:         s.Hub,
		Elevation:   s.Binding.Elevation,
		Logger:      s.Logger,
		Close:       s.Close,
	}
}

// Close releases the file log sink.
func (s *Services) Close() error {
	if s.logCloser == nil {
		return nil
	}
	return s.logCloser.Close()
}

func buildLogger(opts Options) (zerolog.Logger, io.Closer, error) {
	lcfg := logging.DefaultConfig(logging.ProfileRuntime)
	lcfg.Component = opts.Config.Agent.Component
	lcfg.Version = opts.Version
	if lvl, ok := logging.ParseLevel(opts.Config.Agent.LogLevel); ok {
		lcfg.Level = lvl
	}
	if dir := strings.TrimSpace(opts.Config.Agent.LogDir); dir != "" {
		lcfg.Dir = dir
	}
	logging.ApplyEnvOverrides(&lcfg)
	if opts.Console != nil {
		lcfg.Console = opts.Console
	}
	if opts.Debug != nil {
		lcfg.Debug = opts.Debug
	}
	return logging.New(lcfg)
}

func newHTTPClient() *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = HTTPTimeout
	return c
}

func absUnder(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
