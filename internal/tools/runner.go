package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrEmptyCommand = errors.New("tools: command name required")

// CommandRunner abstracts command execution for platform adapters.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error)
	Start(name string, args ...string) (int, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, 127, ErrEmptyCommand
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), int32(exitErr.ExitCode()), err
	}

	exitCode := int32(1)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// Start launches name without waiting for it and returns its pid. The child
// is released so it outlives the agent.
func (r ExecRunner) Start(name string, args ...string) (int, error) {
	if strings.TrimSpace(name) == "" {
		return 0, ErrEmptyCommand
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("tools.ExecRunner.Start %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// Output runs name and returns trimmed stdout, folding a non-zero exit into
// the error together with stderr.
func Output(ctx context.Context, runner CommandRunner, name string, args ...string) (string, error) {
	stdout, stderr, code, err := runner.Run(ctx, name, args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			return "", fmt.Errorf("%s exited %d: %w", name, code, err)
		}
		return "", fmt.Errorf("%s exited %d: %s: %w", name, code, msg, err)
	}
	return strings.TrimSpace(string(stdout)), nil
}
