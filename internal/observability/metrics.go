package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	startupSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentctl",
			Subsystem: "startup",
			Name:      "steps_total",
			Help:      "Startup steps by outcome.",
		},
		[]string{"step", "outcome"},
	)
	backgroundFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentctl",
			Subsystem: "runtime",
			Name:      "background_faults_total",
			Help:      "Unhandled faults captured from background work.",
		},
		[]string{"source", "kind"},
	)
	hubConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentctl",
			Subsystem: "hub",
			Name:      "connected",
			Help:      "1 while a hub session is open.",
		},
	)
	hubConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentctl",
			Subsystem: "hub",
			Name:      "connect_attempts_total",
			Help:      "Hub dial attempts by outcome.",
		},
		[]string{"outcome"},
	)
	updateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentctl",
			Subsystem: "updater",
			Name:      "checks_total",
			Help:      "Update checks by outcome.",
		},
		[]string{"outcome"},
	)
	cpuUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentctl",
			Subsystem: "host",
			Name:      "cpu_utilization_ratio",
			Help:      "Most recent host CPU utilization sample (0-1).",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			startupSteps,
			backgroundFaults,
			hubConnected,
			hubConnectAttempts,
			updateChecks,
			cpuUtilization,
		)
	})
}

func RecordStartupStep(step, outcome string) {
	RegisterMetrics()
	startupSteps.WithLabelValues(step, outcome).Inc()
}

func RecordBackgroundFault(source string, panicked bool) {
	RegisterMetrics()
	kind := "error"
	if panicked {
		kind = "panic"
	}
	backgroundFaults.WithLabelValues(source, kind).Inc()
}

func SetHubConnected(connected bool) {
	RegisterMetrics()
	if connected {
		hubConnected.Set(1)
		return
	}
	hubConnected.Set(0)
}

func RecordHubConnectAttempt(ok bool) {
	RegisterMetrics()
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	hubConnectAttempts.WithLabelValues(outcome).Inc()
}

func RecordUpdateCheck(outcome string) {
	RegisterMetrics()
	updateChecks.WithLabelValues(outcome).Inc()
}

func SetCPUUtilization(ratio float64) {
	RegisterMetrics()
	cpuUtilization.Set(ratio)
}
