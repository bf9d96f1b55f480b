// Package metrics exposes Prometheus metrics for the supervised
// application. Counters are driven by the event bus; the Sampler polls
// the child process for resource usage.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smolin/procwarden/internal/events"
	"github.com/smolin/procwarden/internal/supervisor"
)

var (
	childLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwarden",
		Subsystem: "child",
		Name:      "launches_total",
		Help:      "Child process launches, including the initial one",
	}, []string{"app"})

	childRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwarden",
		Subsystem: "child",
		Name:      "restarts_total",
		Help:      "Automatic relaunches scheduled after a child exit",
	}, []string{"app"})

	childExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwarden",
		Subsystem: "child",
		Name:      "exits_total",
		Help:      "Child exits by cause (exit, crash, signal)",
	}, []string{"app", "cause"})

	budgetExhaustions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwarden",
		Name:      "budget_exhausted_total",
		Help:      "Times the restart budget ran out and supervision gave up",
	}, []string{"app"})

	phaseGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Name:      "phase",
		Help:      "Current supervisor phase (1 for the active phase, 0 otherwise)",
	}, []string{"app", "phase"})

	childUptime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "child",
		Name:      "uptime_seconds",
		Help:      "Uptime of the current child process",
	}, []string{"app"})

	childCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "child",
		Name:      "cpu_percent",
		Help:      "CPU usage of the current child process",
	}, []string{"app"})

	childRSS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "child",
		Name:      "memory_rss_bytes",
		Help:      "Resident set size of the current child process",
	}, []string{"app"})
)

var allPhases = []supervisor.Phase{
	supervisor.PhaseStopped,
	supervisor.PhaseStarting,
	supervisor.PhaseRunning,
	supervisor.PhaseRestarting,
	supervisor.PhaseFailed,
}

// Handler returns the Prometheus scrape handler. All promauto-registered
// metrics are collected automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Bind subscribes the metric counters to lifecycle events. Returns an
// unsubscribe function.
func Bind(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.ChildStartedEvent) {
			childLaunches.WithLabelValues(e.App).Inc()
		}),
		bus.Subscribe(func(e events.RestartScheduledEvent) {
			childRestarts.WithLabelValues(e.App).Inc()
		}),
		bus.Subscribe(func(e events.ChildExitedEvent) {
			childExits.WithLabelValues(e.App, e.Cause).Inc()
		}),
		bus.Subscribe(func(e events.BudgetExhaustedEvent) {
			budgetExhaustions.WithLabelValues(e.App).Inc()
		}),
		bus.Subscribe(func(e events.PhaseChangedEvent) {
			setPhase(e.App, supervisor.Phase(e.To))
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// setPhase marks the active phase and clears the rest.
func setPhase(app string, active supervisor.Phase) {
	for _, phase := range allPhases {
		value := 0.0
		if phase == active {
			value = 1.0
		}
		phaseGauge.WithLabelValues(app, string(phase)).Set(value)
	}
}
