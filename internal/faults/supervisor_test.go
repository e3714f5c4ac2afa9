package faults

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/agentctl/internal/testutil/testlog"
)

func collect(s *Supervisor) <-chan Fault {
	ch := make(chan Fault, 16)
	s.OnFault(func(f Fault) { ch <- f })
	return ch
}

func waitFault(t *testing.T, ch <-chan Fault) Fault {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for fault")
		return Fault{}
	}
}

func TestInstallOnlyOnce(t *testing.T) {
	testlog.Start(t)
	s := NewSupervisor(testlog.Logger(t), 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Install(ctx); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if err := s.Install(ctx); !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("expected ErrAlreadyInstalled, got %v", err)
	}
	if !s.Installed() {
		t.Fatalf("expected installed")
	}
}

func TestGoCapturesPanicAndKeepsRunning(t *testing.T) {
	testlog.Start(t)
	s := NewSupervisor(testlog.Logger(t), 4)
	faults := collect(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Install(ctx); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	s.Go("hub", func() error { panic("nil session") })
	f := waitFault(t, faults)
	if !f.Panicked || f.Source != "hub" || len(f.Stack) == 0 {
		t.Fatalf("unexpected fault: %+v", f)
	}

	s.Go("updater", func() error { return errors.New("manifest unreachable") })
	f = waitFault(t, faults)
	if f.Panicked || f.Err.Error() != "manifest unreachable" {
		t.Fatalf("unexpected fault: %+v", f)
	}
}

func TestGoIgnoresCancellation(t *testing.T) {
	testlog.Start(t)
	s := NewSupervisor(testlog.Logger(t), 4)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Install(ctx); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	finished := make(chan struct{})
	s.Go("sampler", func() error {
		defer close(finished)
		return context.Canceled
	})
	<-finished
	cancel()
	<-s.Done()
	if s.Handled() != 0 {
		t.Fatalf("expected cancellation to be ignored, handled=%d", s.Handled())
	}
}

func TestFaultsBeforeInstallAreBuffered(t *testing.T) {
	testlog.Start(t)
	s := NewSupervisor(testlog.Logger(t), 4)
	faults := collect(s)
	s.Report("early", errors.New("queued"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Install(ctx); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if f := waitFault(t, faults); f.Source != "early" {
		t.Fatalf("unexpected fault: %+v", f)
	}
}

func TestFullBufferHandlesInline(t *testing.T) {
	testlog.Start(t)
	s := NewSupervisor(testlog.Logger(t), 1)
	s.Report("a", errors.New("one"))
	s.Report("b", errors.New("two"))
	if s.Handled() != 1 {
		t.Fatalf("expected overflow fault handled inline, handled=%d", s.Handled())
	}
}
