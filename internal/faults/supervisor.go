// Package faults captures otherwise-unhandled failures from background
// goroutines. Work launched through Supervisor.Go reports errors and
// recovered panics over a channel; the supervisor logs them and keeps the
// process running.
package faults

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/agentctl/internal/observability"
	"github.com/rs/zerolog"
)

var ErrAlreadyInstalled = errors.New("faults: supervisor already installed")

// Fault is one background failure.
type Fault struct {
	Source   string
	Err      error
	Panicked bool
	Stack    []byte
	At       time.Time
}

// Supervisor drains faults until its install context ends.
type Supervisor struct {
	logger    zerolog.Logger
	faults    chan Fault
	installed atomic.Bool
	handled   atomic.Int64
	done      chan struct{}

	mu        sync.Mutex
	listeners []func(Fault)
}

func NewSupervisor(logger zerolog.Logger, buffer int) *Supervisor {
	if buffer <= 0 {
		buffer = 64
	}
	return &Supervisor{
		logger: logger,
		faults: make(chan Fault, buffer),
		done:   make(chan struct{}),
	}
}

// Install starts the drain loop. It may only run once; faults reported
// earlier stay buffered until then.
func (s *Supervisor) Install(ctx context.Context) error {
	if !s.installed.CompareAndSwap(false, true) {
		return ErrAlreadyInstalled
	}
	go s.drain(ctx)
	s.logger.Debug().Msg("faults.Supervisor.Install ready")
	return nil
}

// Installed reports whether Install has run.
func (s *Supervisor) Installed() bool {
	return s.installed.Load()
}

// OnFault registers a listener invoked after a fault is logged.
func (s *Supervisor) OnFault(fn func(Fault)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Handled returns the number of faults processed.
func (s *Supervisor) Handled() int64 {
	return s.handled.Load()
}

// Done closes once the drain loop has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Report queues err from source. It never blocks; when the buffer is full
// the fault is logged inline.
func (s *Supervisor) Report(source string, err error) {
	if err == nil {
		return
	}
	s.enqueue(Fault{Source: source, Err: err, At: time.Now()})
}

// Go runs fn on its own goroutine. Context cancellation is not a fault.
func (s *Supervisor) Go(source string, fn func() error) {
	go func() {
		defer s.Recover(source)
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			s.Report(source, err)
		}
	}()
}

// Recover converts a panic in the calling goroutine into a fault. It must
// be deferred directly.
func (s *Supervisor) Recover(source string) {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	s.enqueue(Fault{
		Source:   source,
		Err:      err,
		Panicked: true,
		Stack:    debug.Stack(),
		At:       time.Now(),
	})
}

func (s *Supervisor) enqueue(f Fault) {
	select {
	case s.faults <- f:
	default:
		s.handle(f)
	}
}

func (s *Supervisor) drain(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f := <-s.faults:
					s.handle(f)
				default:
					return
				}
			}
		case f := <-s.faults:
			s.handle(f)
		}
	}
}

func (s *Supervisor) handle(f Fault) {
	s.handled.Add(1)
	observability.RecordBackgroundFault(f.Source, f.Panicked)

	ev := s.logger.Error().Err(f.Err).Str("source", f.Source).Bool("panic", f.Panicked)
	if len(f.Stack) > 0 {
		ev = ev.Bytes("stack", f.Stack)
	}
	ev.Msg("Unhandled exception in background work.")

	s.mu.Lock()
	listeners := append([]func(Fault){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(f)
	}
}
