// Package cpusampler keeps a rolling host CPU utilization figure for
// device snapshots.
package cpusampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/agentctl/internal/observability"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
)

var ErrUnsupported = errors.New("cpusampler: cpu times unavailable on this platform")

const DefaultInterval = 5 * time.Second

// Times is a cumulative CPU time reading in seconds.
type Times struct {
	Idle  float64
	Total float64
}

// FromStat folds an aggregate cpu.TimesStat. Idle includes iowait; guest
// time is already counted in user.
func FromStat(st cpu.TimesStat) Times {
	return Times{
		Idle:  st.Idle + st.Iowait,
		Total: st.User + st.Nice + st.System + st.Idle + st.Iowait + st.Irq + st.Softirq + st.Steal,
	}
}

// Utilization returns the busy ratio between prev and t in [0,1].
func (t Times) Utilization(prev Times) float64 {
	if t.Total <= prev.Total || t.Idle < prev.Idle {
		return 0
	}
	total := t.Total - prev.Total
	idle := t.Idle - prev.Idle
	u := 1 - idle/total
	switch {
	case u < 0:
		return 0
	case u > 1:
		return 1
	}
	return u
}

// Sampler is a hosted service that reads CPU times on an interval.
type Sampler struct {
	interval time.Duration
	read     func() (Times, error)
	logger   zerolog.Logger

	mu      sync.RWMutex
	current float64
	prev    Times
	primed  bool
}

type Option func(*Sampler)

// WithReader replaces the platform CPU time source.
func WithReader(read func() (Times, error)) Option {
	return func(s *Sampler) { s.read = read }
}

func New(interval time.Duration, logger zerolog.Logger, opts ...Option) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{
		interval: interval,
		read:     readTimes,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) Name() string {
	return "cpu-sampler"
}

// Run samples until ctx ends. An unsupported platform idles instead of
// failing so the host keeps running.
func (s *Sampler) Run(ctx context.Context) error {
	if _, err := s.Sample(); err != nil {
		if errors.Is(err, ErrUnsupported) {
			s.logger.Info().Msg("cpusampler.Sampler.Run disabled reason=unsupported")
			<-ctx.Done()
			return nil
		}
		s.logger.Warn().Err(err).Msg("cpusampler.Sampler.Run initial sample failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sample(); err != nil {
				s.logger.Debug().Err(err).Msg("cpusampler.Sampler.Run sample failed")
			}
		}
	}
}

// Sample takes one reading and returns the updated utilization. The first
// reading only primes the baseline.
func (s *Sampler) Sample() (float64, error) {
	t, err := s.read()
	if err != nil {
		return s.Current(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primed {
		s.current = t.Utilization(s.prev)
		observability.SetCPUUtilization(s.current)
	}
	s.prev = t
	s.primed = true
	return s.current, nil
}

// Current returns the latest utilization ratio.
func (s *Sampler) Current() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func readTimes() (Times, error) {
	stats, err := cpu.Times(false)
	if err != nil {
		return Times{}, err
	}
	if len(stats) == 0 {
		return Times{}, ErrUnsupported
	}
	return FromStat(stats[0]), nil
}
