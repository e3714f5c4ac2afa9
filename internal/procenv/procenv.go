// Package procenv pins the process working directory to the executable's
// directory so relative config, log and update paths resolve the same way
// whether the agent was started interactively, as a service, or as a daemon.
package procenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNoExecutableDir = errors.New("procenv: cannot resolve executable directory")

// ProcessContext is resolved once at startup and read thereafter.
type ProcessContext struct {
	ExecutablePath   string
	WorkingDirectory string
}

// Normalizer resolves and applies the executable directory.
type Normalizer struct {
	executable func() (string, error)
	args       []string
	baseDir    func() (string, error)
	getwd      func() (string, error)
	chdir      func(string) error

	mu  sync.RWMutex
	ctx ProcessContext
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		executable: os.Executable,
		args:       os.Args,
		baseDir:    os.Getwd,
		getwd:      os.Getwd,
		chdir:      os.Chdir,
	}
}

// NormalizeWorkingDirectory changes into the executable's directory. When
// the process is already there no chdir is issued.
func (n *Normalizer) NormalizeWorkingDirectory() (ProcessContext, error) {
	exePath, dir, err := n.resolve()
	if err != nil {
		return ProcessContext{}, err
	}

	if cwd, err := n.getwd(); err != nil || !samePath(cwd, dir) {
		if err := n.chdir(dir); err != nil {
			return ProcessContext{}, fmt.Errorf("procenv: chdir %q: %w", dir, err)
		}
	}

	ctx := ProcessContext{ExecutablePath: exePath, WorkingDirectory: dir}
	n.mu.Lock()
	n.ctx = ctx
	n.mu.Unlock()
	return ctx, nil
}

// Context returns the last normalized process context.
func (n *Normalizer) Context() ProcessContext {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ctx
}

// ExecutableDir resolves the directory without changing into it.
func (n *Normalizer) ExecutableDir() (string, error) {
	_, dir, err := n.resolve()
	return dir, err
}

func (n *Normalizer) resolve() (string, string, error) {
	exePath := ""
	if n.executable != nil {
		if p, err := n.executable(); err == nil {
			exePath = strings.TrimSpace(p)
		}
	}
	if exePath == "" && len(n.args) > 0 {
		exePath = strings.TrimSpace(n.args[0])
	}

	if exePath != "" {
		if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
			exePath = resolved
		}
		if abs, err := filepath.Abs(exePath); err == nil {
			exePath = abs
		}
		if dir := filepath.Dir(exePath); dir != "" && dir != "." {
			return exePath, dir, nil
		}
	}

	if n.baseDir != nil {
		if dir, err := n.baseDir(); err == nil && strings.TrimSpace(dir) != "" {
			return exePath, dir, nil
		}
	}
	return "", "", ErrNoExecutableDir
}

func samePath(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)
	if a == b {
		return true
	}
	if ra, err := filepath.EvalSymlinks(a); err == nil {
		a = ra
	}
	if rb, err := filepath.EvalSymlinks(b); err == nil {
		b = rb
	}
	return a == b
}
