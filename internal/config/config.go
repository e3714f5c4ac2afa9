// Package config holds the agent's runtime configuration and the
// connection identity persisted beside the executable.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/agentctl/internal/version"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// DefaultFileName is the TOML file looked up in the executable directory.
const DefaultFileName = "agentctl.toml"

type Config struct {
	Agent   AgentConfig
	Hub     HubConfig
	Updater UpdaterConfig
	Sampler SamplerConfig
	Status  StatusConfig
}

type AgentConfig struct {
	Component string
	LogDir    string
	LogLevel  string
	// AppDir holds the desktop app and other bundled binaries. Empty means
	// the executable directory.
	AppDir string
	// ConnectionInfoPath defaults to ConnectionInfoFile in the executable directory.
	ConnectionInfoPath string
}

type HubConfig struct {
	ServerURL      string
	DeviceID       string
	OrganizationID string
	Heartbeat      time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	SocksProxy     string
	// CAFile adds a PEM root for hubs behind a private CA.
	CAFile string
}

type UpdaterConfig struct {
	ManifestURL string
	Schedule    string
	StagingDir  string
}

type SamplerConfig struct {
	Interval time.Duration
}

type StatusConfig struct {
	// ListenAddr enables the status server when set.
	ListenAddr string
	// Token, when set, is required as a bearer token on /status and /metrics.
	Token string
}

func Default() Config {
	return Config{
		Agent: AgentConfig{
			Component: version.Component,
			LogLevel:  "info",
		},
		Hub: HubConfig{
			Heartbeat:      time.Minute,
			BackoffInitial: time.Second,
			BackoffMax:     time.Minute,
		},
		Updater: UpdaterConfig{
			Schedule:   "@every 6h",
			StagingDir: "update",
		},
		Sampler: SamplerConfig{
			Interval: 5 * time.Second,
		},
	}
}

// Validate rejects values that would make a component misbehave. Missing
// hub settings are allowed; the hub step reports them at startup.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Agent.Component) == "" {
		problems = append(problems, "agent.component is empty")
	}
	if c.Hub.Heartbeat <= 0 {
		problems = append(problems, "hub.heartbeat must be positive")
	}
	if c.Hub.BackoffInitial <= 0 {
		problems = append(problems, "hub.backoff_initial must be positive")
	}
	if c.Hub.BackoffMax > 0 && c.Hub.BackoffMax < c.Hub.BackoffInitial {
		problems = append(problems, "hub.backoff_max is below hub.backoff_initial")
	}
	if c.Sampler.Interval <= 0 {
		problems = append(problems, "sampler.interval must be positive")
	}
	if strings.TrimSpace(c.Updater.Schedule) == "" {
		problems = append(problems, "updater.schedule is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
