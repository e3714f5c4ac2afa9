// Package startup sequences agent initialization. Composition and host
// start are fatal; every later step is recorded and startup continues, so
// the agent always reaches Running once the host is up.
package startup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/agentctl/internal/observability"
	"github.com/danmuck/agentctl/internal/platform"
	"github.com/danmuck/agentctl/internal/policy"
	"github.com/danmuck/agentctl/internal/procenv"
	"github.com/danmuck/agentctl/internal/visibility"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyStarted  = errors.New("startup: orchestrator already started")
	ErrNotRunning      = errors.New("startup: orchestrator not running")
	ErrComposeFailed   = errors.New("startup: service composition failed")
	ErrHostStartFailed = errors.New("startup: host start failed")
	ErrMissingHost     = errors.New("startup: composed services have no host")
)

// Host is the hosting layer as seen by the orchestrator.
type Host interface {
	Start(ctx context.Context) error
	Context() context.Context
	WaitForShutdown() error
}

type EnvironmentNormalizer interface {
	NormalizeWorkingDirectory() (procenv.ProcessContext, error)
}

type FaultSupervisor interface {
	Install(ctx context.Context) error
}

type PolicyApplier interface {
	ApplyElevatedPolicies() (policy.Outcome, error)
}

type HubConnection interface {
	Connect(ctx context.Context) error
}

// FailSafe logs without the composed logging stack.
type FailSafe interface {
	Error(err error, msg string)
	Warn(msg string)
	Info(msg string)
}

// Components are the composed services the orchestrator borrows. Only Host
// is required; a nil optional component is recorded as a skipped step.
type Components struct {
	Platform    platform.Kind
	Host        Host
	Environment EnvironmentNormalizer
	Faults      FaultSupervisor
	Policies    PolicyApplier
	Updater     platform.Updater
	Hub         HubConnection
	Elevation   platform.ElevationDetector
	Logger      zerolog.Logger

	// Close releases composed resources after the host stops.
	Close func() error
}

// ComposeFunc builds the service graph. It is called exactly once.
type ComposeFunc func() (*Components, error)

type Option func(*Orchestrator)

// WithFailSafe sets the logger used for fatal failures and the visibility probe.
func WithFailSafe(fs FailSafe) Option {
	return func(o *Orchestrator) { o.failsafe = fs }
}

// WithVisibilityProbe overrides the probe and the platform it runs on.
func WithVisibilityProbe(kind platform.Kind, probe func() visibility.Result) Option {
	return func(o *Orchestrator) {
		o.probeKind = kind
		o.probe = probe
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives startup through its states and keeps the step log.
type Orchestrator struct {
	compose   ComposeFunc
	failsafe  FailSafe
	probeKind platform.Kind
	probe     func() visibility.Result
	now       func() time.Time

	mu         sync.RWMutex
	state      State
	results    []StepResult
	probed     *visibility.Result
	components *Components
	logger     zerolog.Logger
	started    bool
}

func New(compose ComposeFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		compose:   compose,
		failsafe:  nopFailSafe{},
		probeKind: platform.Detect(),
		probe:     visibility.Probe,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts the agent and blocks until the host shuts down.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	return o.Wait()
}

// Start runs every startup step and returns in the Running state, or with
// a fatal error from composition or host start.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	o.probeVisibility()

	c, err := o.composeServices()
	if err != nil {
		return err
	}
	if err := o.startHost(ctx, c); err != nil {
		return err
	}

	runCtx := c.Host.Context()
	if runCtx == nil {
		runCtx = ctx
	}

	o.step(StepNormalizeEnv, EnvironmentNormalized, c.Environment == nil, func() (string, error) {
		pc, err := c.Environment.NormalizeWorkingDirectory()
		return pc.WorkingDirectory, err
	})
	o.step(StepInstallFaultHandler, FaultHandlerInstalled, c.Faults == nil, func() (string, error) {
		return "", c.Faults.Install(runCtx)
	})
	o.step(StepApplyPolicies, PoliciesApplied, c.Platform != platform.Windows || c.Policies == nil, func() (string, error) {
		out, err := c.Policies.ApplyElevatedPolicies()
		return string(out), err
	})
	if c.Elevation != nil {
		o.logger.Info().Bool("elevated", c.Elevation.IsElevated()).Msg(c.Elevation.StatusMessage())
	}
	o.step(StepBeginUpdateChecks, UpdateCheckStarted, c.Updater == nil, func() (string, error) {
		return "", c.Updater.BeginChecking(runCtx)
	})
	o.step(StepConnectHub, HubConnecting, c.Hub == nil, func() (string, error) {
		return "", c.Hub.Connect(runCtx)
	})

	o.setState(Running)
	o.logger.Info().
		Str("platform", c.Platform.String()).
		Int("failed_steps", len(o.Failures())).
		Msg("startup.Orchestrator.Start running")
	return nil
}

// Wait blocks on the host's shutdown signal, then drains hosted services.
func (o *Orchestrator) Wait() error {
	o.mu.RLock()
	c := o.components
	state := o.state
	o.mu.RUnlock()
	if c == nil || state != Running {
		return ErrNotRunning
	}

	if ctx := c.Host.Context(); ctx != nil {
		<-ctx.Done()
	}
	o.setState(ShuttingDown)
	o.logger.Info().Msg("startup.Orchestrator.Wait shutting down")
	err := c.Host.WaitForShutdown()
	if c.Close != nil {
		if cerr := c.Close(); cerr != nil {
			o.failsafe.Error(cerr, "Failed to release composed services.")
		}
	}
	o.setState(Stopped)
	o.logger.Info().Msg("startup.Orchestrator.Wait stopped")
	return err
}

func (o *Orchestrator) probeVisibility() {
	if o.probeKind != platform.Windows || o.probe == nil {
		return
	}
	res := o.probe()
	o.mu.Lock()
	o.probed = &res
	o.mu.Unlock()

	msg := fmt.Sprintf("visibility probe outcome=%s detail=%s", res.Outcome, res.Detail)
	if res.Outcome == visibility.Error {
		o.failsafe.Error(res.Err, msg)
		return
	}
	o.failsafe.Info(msg)
}

func (o *Orchestrator) composeServices() (*Components, error) {
	started := o.now()
	c, err := o.safeCompose()
	if err == nil && (c == nil || c.Host == nil) {
		err = ErrMissingHost
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrComposeFailed, err)
		o.record(StepResult{Step: StepComposeServices, State: NotStarted, Outcome: OutcomeFailed, Err: err, Fatal: true, Started: started, Duration: o.now().Sub(started)})
		o.failsafe.Error(err, "Failed to compose services.")
		return nil, err
	}

	o.mu.Lock()
	o.components = c
	o.logger = c.Logger
	o.mu.Unlock()
	o.record(StepResult{Step: StepComposeServices, State: ServicesComposed, Outcome: OutcomeOK, Detail: c.Platform.String(), Started: started, Duration: o.now().Sub(started)})
	o.setState(ServicesComposed)
	return c, nil
}

func (o *Orchestrator) safeCompose() (c *Components, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if o.compose == nil {
		return nil, errors.New("no compose func")
	}
	return o.compose()
}

func (o *Orchestrator) startHost(ctx context.Context, c *Components) error {
	started := o.now()
	if err := c.Host.Start(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrHostStartFailed, err)
		o.record(StepResult{Step: StepStartHost, State: ServicesComposed, Outcome: OutcomeFailed, Err: err, Fatal: true, Started: started, Duration: o.now().Sub(started)})
		o.logger.Error().Err(err).Msg("startup.Orchestrator.Start host start failed")
		o.failsafe.Error(err, "Failed to start host.")
		if c.Close != nil {
			if cerr := c.Close(); cerr != nil {
				o.logger.Warn().Err(cerr).Msg("startup.Orchestrator.Start close after host failure")
			}
		}
		return err
	}
	o.record(StepResult{Step: StepStartHost, State: HostStarted, Outcome: OutcomeOK, Started: started, Duration: o.now().Sub(started)})
	o.setState(HostStarted)
	return nil
}

// step runs one non-fatal step. The state advances whether or not fn
// fails; a skipped step leaves the state where it was.
func (o *Orchestrator) step(name Step, next State, skip bool, fn func() (string, error)) {
	started := o.now()
	if skip {
		o.record(StepResult{Step: name, State: o.State(), Outcome: OutcomeSkipped, Started: started})
		o.logger.Debug().Str("step", string(name)).Msg("startup.Orchestrator step skipped")
		return
	}

	detail, err := safeStep(fn)
	res := StepResult{Step: name, State: next, Outcome: OutcomeOK, Detail: detail, Err: err, Started: started, Duration: o.now().Sub(started)}
	if err != nil {
		res.Outcome = OutcomeFailed
		o.logger.Warn().Err(err).Str("step", string(name)).Msg("startup.Orchestrator step failed; continuing")
	} else {
		o.logger.Debug().Str("step", string(name)).Str("detail", detail).Msg("startup.Orchestrator step ok")
	}
	o.record(res)
	o.setState(next)
}

func safeStep(fn func() (string, error)) (detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("startup: step panic: %v", r)
		}
	}()
	return fn()
}

func (o *Orchestrator) record(res StepResult) {
	o.mu.Lock()
	o.results = append(o.results, res)
	o.mu.Unlock()
	observability.RecordStartupStep(string(res.Step), res.Outcome)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Results returns a copy of the step log in execution order.
func (o *Orchestrator) Results() []StepResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]StepResult(nil), o.results...)
}

// Failures returns the results that carry an error.
func (o *Orchestrator) Failures() []StepResult {
	var out []StepResult
	for _, r := range o.Results() {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// VisibilityResult returns the probe outcome, if the probe ran.
func (o *Orchestrator) VisibilityResult() (visibility.Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.probed == nil {
		return visibility.Result{}, false
	}
	return *o.probed, true
}

type nopFailSafe struct{}

func (nopFailSafe) Error(error, string) {}
func (nopFailSafe) Warn(string)         {}
func (nopFailSafe) Info(string)         {}
