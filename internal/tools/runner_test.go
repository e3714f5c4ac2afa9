package tools

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/danmuck/agentctl/internal/testutil/testlog"
)

type stubRunner struct {
	stdout string
	stderr string
	code   int32
	err    error
}

func (s stubRunner) Run(context.Context, string, ...string) ([]byte, []byte, int32, error) {
	return []byte(s.stdout), []byte(s.stderr), s.code, s.err
}

func (s stubRunner) Start(string, ...string) (int, error) { return 0, s.err }

func TestExecRunnerRejectsEmptyName(t *testing.T) {
	testlog.Start(t)
	if _, _, code, err := (ExecRunner{}).Run(context.Background(), " "); !errors.Is(err, ErrEmptyCommand) || code != 127 {
		t.Fatalf("expected ErrEmptyCommand/127, got %d %v", code, err)
	}
	if _, err := (ExecRunner{}).Start(""); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	testlog.Start(t)
	_, _, code, err := (ExecRunner{}).Run(context.Background(), "agentctl-definitely-missing-binary")
	if err == nil || code != 127 {
		t.Fatalf("expected exit 127 for missing binary, got %d %v", code, err)
	}
}

func TestExecRunnerCapturesStdout(t *testing.T) {
	testlog.Start(t)
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	stdout, _, code, err := (ExecRunner{}).Run(context.Background(), "sh", "-c", "echo hello")
	if err != nil || code != 0 || string(stdout) != "hello\n" {
		t.Fatalf("unexpected result stdout=%q code=%d err=%v", stdout, code, err)
	}
}

func TestOutputFoldsStderr(t *testing.T) {
	testlog.Start(t)
	got, err := Output(context.Background(), stubRunner{stdout: "  alice \n"}, "whoami")
	if err != nil || got != "alice" {
		t.Fatalf("unexpected output %q %v", got, err)
	}

	cause := errors.New("exit status 2")
	_, err = Output(context.Background(), stubRunner{stderr: "denied", code: 2, err: cause}, "whoami")
	if !errors.Is(err, cause) || err.Error() != "whoami exited 2: denied: exit status 2" {
		t.Fatalf("unexpected error %v", err)
	}
}
