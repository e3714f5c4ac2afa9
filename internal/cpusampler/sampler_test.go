package cpusampler

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danmuck/agentctl/internal/testutil/testlog"
	"github.com/shirou/gopsutil/v4/cpu"
)

func TestFromStatFoldsIowaitIntoIdle(t *testing.T) {
	testlog.Start(t)
	got := FromStat(cpu.TimesStat{
		CPU:    "cpu-total",
		User:   100,
		System: 50,
		Idle:   800,
		Iowait: 50,
		Guest:  30,
	})
	if got.Total != 1000 || got.Idle != 850 {
		t.Fatalf("unexpected times: %+v", got)
	}
}

func TestReadTimesOnHost(t *testing.T) {
	testlog.Start(t)
	got, err := readTimes()
	if errors.Is(err, ErrUnsupported) {
		t.Skipf("cpu times unavailable: %v", err)
	}
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Total <= 0 || got.Idle > got.Total {
		t.Fatalf("implausible host cpu times: %+v", got)
	}
}

func TestSampleComputesDelta(t *testing.T) {
	testlog.Start(t)
	readings := []Times{{Idle: 800, Total: 1000}, {Idle: 875, Total: 1100}}
	i := 0
	s := New(time.Second, testlog.Logger(t), WithReader(func() (Times, error) {
		r := readings[i]
		i++
		return r, nil
	}))

	if u, err := s.Sample(); err != nil || u != 0 {
		t.Fatalf("priming sample: %v %v", u, err)
	}
	u, err := s.Sample()
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if math.Abs(u-0.25) > 1e-9 || s.Current() != u {
		t.Fatalf("expected 0.25 utilization, got %v", u)
	}
}

func TestUtilizationGuardsCounterReset(t *testing.T) {
	testlog.Start(t)
	if u := (Times{Idle: 1, Total: 5}).Utilization(Times{Idle: 10, Total: 50}); u != 0 {
		t.Fatalf("expected 0 after reset, got %v", u)
	}
}

func TestRunIdlesWhenUnsupported(t *testing.T) {
	testlog.Start(t)
	s := New(time.Millisecond, testlog.Logger(t), WithReader(func() (Times, error) {
		return Times{}, ErrUnsupported
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	if s.Name() != "cpu-sampler" {
		t.Fatalf("unexpected name %q", s.Name())
	}
}
