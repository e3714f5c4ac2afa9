package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "AGENTCTL_LOG_LEVEL"
	EnvLogTimestamp = "AGENTCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "AGENTCTL_LOG_NOCOLOR"
	EnvLogDir       = "AGENTCTL_LOG_DIR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config describes the sinks of the agent logger.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Dir       string
	Component string
	Version   string

	// Console and Debug default to stdout and stderr.
	Console io.Writer
	Debug   io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs a console-only global logger. It runs once per process;
// the full file-backed logger is built by New during composition.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		ApplyEnvOverrides(&cfg)
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
		log.Logger = newConsoleLogger(cfg)
	})
}

// DefaultConfig returns the per-profile defaults before env overrides.
func DefaultConfig(profile Profile) Config {
	cfg := Config{
		Dir:     DefaultDir(),
		Console: os.Stdout,
		Debug:   os.Stderr,
	}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
		cfg.NoColor = true
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// DefaultDir is the root directory for rotating and fail-safe log files.
// It is absolute so it resolves the same before and after the working
// directory is normalized.
func DefaultDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		if pd := strings.TrimSpace(os.Getenv("ProgramData")); pd != "" {
			return filepath.Join(pd, "agentctl", "logs")
		}
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "agentctl", "logs")
	}
	return filepath.Join(os.TempDir(), "agentctl", "logs")
}

func ApplyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		cfg.Dir = dir
	}
}

// ParseLevel maps a config or env string to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func consoleWriter(cfg Config) zerolog.ConsoleWriter {
	out := cfg.Console
	if out == nil {
		out = os.Stdout
	}
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		w.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return w
}

func newConsoleLogger(cfg Config) zerolog.Logger {
	return zerolog.New(consoleWriter(cfg)).Level(cfg.Level).With().Timestamp().Logger()
}
