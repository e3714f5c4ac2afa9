package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/agentctl/internal/config"
)

type fileConfig struct {
	Agent struct {
		Component      string `toml:"component"`
		LogDir         string `toml:"log_dir"`
		LogLevel       string `toml:"log_level"`
		AppDir         string `toml:"app_dir"`
		ConnectionInfo string `toml:"connection_info"`
	} `toml:"agent"`
	Hub struct {
		ServerURL      string `toml:"server_url"`
		DeviceID       string `toml:"device_id"`
		OrganizationID string `toml:"organization_id"`
		Heartbeat      string `toml:"heartbeat"`
		BackoffInitial string `toml:"backoff_initial"`
		BackoffMax     string `toml:"backoff_max"`
		SocksProxy     string `toml:"socks_proxy"`
		CAFile         string `toml:"ca_file"`
	} `toml:"hub"`
	Updater struct {
		ManifestURL string `toml:"manifest_url"`
		Schedule    string `toml:"schedule"`
		StagingDir  string `toml:"staging_dir"`
	} `toml:"updater"`
	Sampler struct {
		Interval string `toml:"interval"`
	} `toml:"sampler"`
	Status struct {
		ListenAddr string `toml:"listen_addr"`
		Token      string `toml:"token"`
	} `toml:"status"`
}

// loadConfig overlays the keys present in path onto config.Default(). A
// missing file yields the defaults.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load agent config: %w", err)
	}

	if meta.IsDefined("agent", "component") {
		if v := strings.TrimSpace(raw.Agent.Component); v != "" {
			cfg.Agent.Component = v
		}
	}
	if meta.IsDefined("agent", "log_dir") {
		cfg.Agent.LogDir = strings.TrimSpace(raw.Agent.LogDir)
	}
	if meta.IsDefined("agent", "log_level") {
		cfg.Agent.LogLevel = strings.TrimSpace(raw.Agent.LogLevel)
	}
	if meta.IsDefined("agent", "app_dir") {
		cfg.Agent.AppDir = strings.TrimSpace(raw.Agent.AppDir)
	}
	if meta.IsDefined("agent", "connection_info") {
		cfg.Agent.ConnectionInfoPath = strings.TrimSpace(raw.Agent.ConnectionInfo)
	}

	if meta.IsDefined("hub", "server_url") {
		cfg.Hub.ServerURL = strings.TrimSpace(raw.Hub.ServerURL)
	}
	if meta.IsDefined("hub", "device_id") {
		cfg.Hub.DeviceID = strings.TrimSpace(raw.Hub.DeviceID)
	}
	if meta.IsDefined("hub", "organization_id") {
		cfg.Hub.OrganizationID = strings.TrimSpace(raw.Hub.OrganizationID)
	}
	if meta.IsDefined("hub", "socks_proxy") {
		cfg.Hub.SocksProxy = strings.TrimSpace(raw.Hub.SocksProxy)
	}
	if meta.IsDefined("hub", "ca_file") {
		cfg.Hub.CAFile = strings.TrimSpace(raw.Hub.CAFile)
	}
	if meta.IsDefined("hub", "heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Hub.Heartbeat))
		if err != nil {
			return config.Config{}, fmt.Errorf("parse hub.heartbeat: %w", err)
		}
		cfg.Hub.Heartbeat = d
	}
	if meta.IsDefined("hub", "backoff_initial") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Hub.BackoffInitial))
		if err != nil {
			return config.Config{}, fmt.Errorf("parse hub.backoff_initial: %w", err)
		}
		cfg.Hub.BackoffInitial = d
	}
	if meta.IsDefined("hub", "backoff_max") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Hub.BackoffMax))
		if err != nil {
			return config.Config{}, fmt.Errorf("parse hub.backoff_max: %w", err)
		}
		cfg.Hub.BackoffMax = d
	}

	if meta.IsDefined("updater", "manifest_url") {
		cfg.Updater.ManifestURL = strings.TrimSpace(raw.Updater.ManifestURL)
	}
	if meta.IsDefined("updater", "schedule") {
		cfg.Updater.Schedule = strings.TrimSpace(raw.Updater.Schedule)
	}
	if meta.IsDefined("updater", "staging_dir") {
		cfg.Updater.StagingDir = strings.TrimSpace(raw.Updater.StagingDir)
	}

	if meta.IsDefined("sampler", "interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Sampler.Interval))
		if err != nil {
			return config.Config{}, fmt.Errorf("parse sampler.interval: %w", err)
		}
		cfg.Sampler.Interval = d
	}

	if meta.IsDefined("status", "listen_addr") {
		cfg.Status.ListenAddr = strings.TrimSpace(raw.Status.ListenAddr)
	}
	if meta.IsDefined("status", "token") {
		cfg.Status.Token = strings.TrimSpace(raw.Status.Token)
	}

	return cfg, nil
}

// resolveConfigPath anchors a relative path to exeDir so the config is
// found no matter where the service manager started the process.
func resolveConfigPath(path, exeDir string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = config.DefaultFileName
	}
	if filepath.IsAbs(path) || exeDir == "" {
		return path
	}
	return filepath.Join(exeDir, path)
}
