// Package hosting owns the process lifecycle: it runs hosted services,
// turns OS signals into a shutdown context, and tells the service manager
// (systemd or the Windows SCM) when the agent is ready or stopping.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyStarted = errors.New("hosting: host already started")
	ErrNotStarted     = errors.New("hosting: host not started")
	ErrNilService     = errors.New("hosting: nil hosted service")
)

// HostedService is a long-running unit of work owned by the host. Run must
// return when ctx is cancelled.
type HostedService interface {
	Name() string
	Run(ctx context.Context) error
}

// FaultSink receives hosted-service failures. *faults.Supervisor satisfies it.
type FaultSink interface {
	Report(source string, err error)
	Recover(source string)
}

// Option customizes a Host.
type Option func(*Host)

// WithNotifier replaces the default service-manager notifier.
func WithNotifier(n Notifier) Option {
	return func(h *Host) { h.notifier = n }
}

// WithFaults routes hosted-service errors and panics to sink instead of
// logging them on the host logger.
func WithFaults(sink FaultSink) Option {
	return func(h *Host) { h.faults = sink }
}

// WithSignals replaces the shutdown signal set. An empty set disables
// signal handling.
func WithSignals(sig ...os.Signal) Option {
	return func(h *Host) { h.signals = sig }
}

// Host runs hosted services until shutdown is requested.
type Host struct {
	logger   zerolog.Logger
	notifier Notifier
	signals  []os.Signal
	faults   FaultSink

	mu       sync.Mutex
	services []HostedService
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	done     chan struct{}
}

func New(logger zerolog.Logger, opts ...Option) *Host {
	h := &Host{
		logger:   logger,
		notifier: SystemdNotifier{},
		signals:  []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers svc. Services must be added before Start.
func (h *Host) Add(svc HostedService) error {
	if svc == nil {
		return ErrNilService
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}
	h.services = append(h.services, svc)
	return nil
}

// Services returns the registered service names in start order.
func (h *Host) Services() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.services))
	for _, svc := range h.services {
		names = append(names, svc.Name())
	}
	return names
}

// Start launches every hosted service and returns without waiting for them.
// A hosted service that fails is logged; it does not stop the host.
func (h *Host) Start(parent context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)
	if len(h.signals) > 0 {
		sigCtx, stop := signal.NotifyContext(ctx, h.signals...)
		inner := cancel
		ctx, cancel = sigCtx, func() {
			stop()
			inner()
		}
	}
	h.ctx = ctx
	h.cancel = cancel
	h.group = &errgroup.Group{}
	h.started = true

	for _, svc := range h.services {
		svc := svc
		h.group.Go(func() error {
			h.runService(ctx, svc)
			return nil
		})
	}
	go func() {
		_ = h.group.Wait()
		close(h.done)
	}()

	if _, err := h.notifier.Notify(StateReady); err != nil {
		h.logger.Warn().Err(err).Msg("hosting.Host.Start ready notification failed")
	}
	h.logger.Info().Int("services", len(h.services)).Msg("hosting.Host.Start started")
	return nil
}

func (h *Host) runService(ctx context.Context, svc HostedService) {
	name := svc.Name()
	if h.faults != nil {
		defer h.faults.Recover(name)
	} else {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error().Str("service", name).Interface("panic", r).Msg("hosting.Host hosted service panicked")
			}
		}()
	}
	h.logger.Debug().Str("service", name).Msg("hosting.Host service starting")
	err := svc.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		h.logger.Debug().Str("service", name).Msg("hosting.Host service stopped")
	case h.faults != nil:
		h.faults.Report(name, err)
	default:
		h.logger.Error().Err(err).Str("service", name).Msg("hosting.Host service failed")
	}
}

// Context is cancelled when shutdown is requested. It is nil before Start.
func (h *Host) Context() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx
}

// Stop requests shutdown. It is safe to call more than once.
func (h *Host) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WaitForShutdown blocks until shutdown is requested and every hosted
// service has returned.
func (h *Host) WaitForShutdown() error {
	ctx := h.Context()
	if ctx == nil {
		return ErrNotStarted
	}
	<-ctx.Done()
	if _, err := h.notifier.Notify(StateStopping); err != nil {
		h.logger.Warn().Err(err).Msg("hosting.Host.WaitForShutdown stopping notification failed")
	}
	h.logger.Info().Msg("hosting.Host.WaitForShutdown draining hosted services")
	<-h.done
	h.Stop()
	return nil
}

// Func adapts a function into a HostedService.
type Func struct {
	ServiceName string
	Fn          func(ctx context.Context) error
}

func (f Func) Name() string { return f.ServiceName }

func (f Func) Run(ctx context.Context) error {
	if f.Fn == nil {
		return fmt.Errorf("hosting: service %q has no run func", f.ServiceName)
	}
	return f.Fn(ctx)
}
