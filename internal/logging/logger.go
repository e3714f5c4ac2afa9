package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrComponentRequired = errors.New("logging: component name required")
	ErrLogDirUnavailable = errors.New("logging: log directory unavailable")
)

// Rotation limits for the per-component file sink.
const (
	MaxFileSizeMB  = 10
	MaxFileBackups = 7
	MaxFileAgeDays = 30
)

// FilePath returns the rotating log file for a (component, version) pair.
func FilePath(dir, component, version string) string {
	return filepath.Join(dir, component, fmt.Sprintf("%s_%s.log", component, sanitize(version)))
}

// New builds the agent logger: a console sink, a debug sink that only
// receives debug and trace entries, and a rotating file sink keyed by
// component and version. The returned closer releases the file sink.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	component := strings.TrimSpace(cfg.Component)
	if component == "" {
		return zerolog.Nop(), nil, ErrComponentRequired
	}
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = DefaultDir()
	}

	path := FilePath(dir, component, cfg.Version)
	if err := ensureWritable(path); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("%w: %w", ErrLogDirUnavailable, err)
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxFileSizeMB,
		MaxBackups: MaxFileBackups,
		MaxAge:     MaxFileAgeDays,
		Compress:   true,
	}

	debugOut := cfg.Debug
	if debugOut == nil {
		debugOut = os.Stderr
	}
	writers := []io.Writer{
		consoleWriter(cfg),
		levelFilter{max: zerolog.DebugLevel, w: debugOut},
		file,
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(cfg.Level).
		With().
		Timestamp().
		Str("component", component).
		Str("version", cfg.Version).
		Logger()
	return logger, file, nil
}

// ensureWritable creates the log directory and opens the file once so an
// unusable location fails composition instead of the first write.
func ensureWritable(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// levelFilter forwards only entries at or below max.
type levelFilter struct {
	max zerolog.Level
	w   io.Writer
}

func (f levelFilter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level > f.max {
		return len(p), nil
	}
	return f.w.Write(p)
}

func sanitize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, v)
}
