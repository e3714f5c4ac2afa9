// Package failsafe writes log entries straight to a file without any of the
// composed logging stack. It is used when composition itself fails and for
// best-effort diagnostics outside the orchestrated startup flow.
package failsafe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/danmuck/agentctl/internal/logging"
	"github.com/rs/zerolog"
)

// Logger appends JSON entries to <dir>/<component>/<component>_<version>_failsafe.log.
// The file is opened per entry so nothing is held between calls.
type Logger struct {
	component string
	version   string
	category  string
	dir       string
	fallback  io.Writer
	mu        sync.Mutex
}

// New returns a logger rooted at the default log directory.
func New(component, version, category string) *Logger {
	return &Logger{
		component: strings.TrimSpace(component),
		version:   strings.TrimSpace(version),
		category:  strings.TrimSpace(category),
		dir:       logging.DefaultDir(),
		fallback:  os.Stderr,
	}
}

// WithDir returns a copy writing under dir.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		component: l.component,
		version:   l.version,
		category:  l.category,
		dir:       dir,
		fallback:  l.fallback,
	}
}

// Path returns the file entries are appended to.
func (l *Logger) Path() string {
	component := l.component
	if component == "" {
		component = "agent"
	}
	version := l.version
	if version == "" {
		version = "unknown"
	}
	return filepath.Join(l.dir, component, fmt.Sprintf("%s_%s_failsafe.log", component, version))
}

func (l *Logger) Error(err error, msg string) {
	l.write(zerolog.ErrorLevel, err, msg)
}

func (l *Logger) Warn(msg string) {
	l.write(zerolog.WarnLevel, nil, msg)
}

func (l *Logger) Info(msg string) {
	l.write(zerolog.InfoLevel, nil, msg)
}

func (l *Logger) write(level zerolog.Level, err error, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out, closeFn := l.open()
	defer closeFn()

	logger := zerolog.New(out).With().
		Timestamp().
		Str("component", l.component).
		Str("version", l.version).
		Str("category", l.category).
		Logger()
	ev := logger.WithLevel(level)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

func (l *Logger) open() (io.Writer, func()) {
	path := l.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			return f, func() { _ = f.Close() }
		}
	}
	return l.fallback, func() {}
}
