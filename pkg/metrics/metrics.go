package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/driver"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

var (
	activeExecutions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chaos_active_executions",
		Help: "Number of executions currently running",
	})
	executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chaos_executions_total",
		Help: "Finished executions by terminal status",
	}, []string{"status"})
	actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chaos_actions_total",
		Help: "Chaos actions by service, kind and outcome",
	}, []string{"service", "kind", "outcome"})
	assertionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chaos_assertions_total",
		Help: "Assertion evaluations by kind and outcome",
	}, []string{"kind", "outcome"})
	phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chaos_phase_duration_seconds",
		Help:    "Wall-clock duration of scenario phases",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"phase"})
	driverTraffic = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chaos_driver_client_stats",
		Help: "Per-service driver traffic counters (requests_sent, responses_received, errors_encountered)",
	}, []string{"service", "counter"})
)

func init() {
	prometheus.MustRegister(activeExecutions, executionsTotal, actionsTotal, assertionsTotal, phaseDuration, driverTraffic)
}

// ExecutionStarted counts an execution entering Running
func ExecutionStarted() {
	activeExecutions.Inc()
}

// ExecutionFinished counts an execution reaching its terminal status
func ExecutionFinished(status types.Status) {
	activeExecutions.Dec()
	executionsTotal.WithLabelValues(string(status)).Inc()
}

// RecordAction counts one chaos action outcome
func RecordAction(service, kind string, success bool) {
	actionsTotal.WithLabelValues(service, kind, outcome(success)).Inc()
}

// RecordAssertion counts one assertion verdict
func RecordAssertion(kind string, passed bool) {
	assertionsTotal.WithLabelValues(kind, outcome(passed)).Inc()
}

// ObservePhaseDuration records the wall-clock duration of one phase
func ObservePhaseDuration(phase string, d time.Duration) {
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveDriverStats mirrors a driver's client stats snapshot into the
// per-service traffic gauges
func ObserveDriverStats(service string, stats driver.ClientStats) {
	driverTraffic.WithLabelValues(service, "requests_sent").Set(float64(stats.RequestsSent))
	driverTraffic.WithLabelValues(service, "responses_received").Set(float64(stats.ResponsesReceived))
	driverTraffic.WithLabelValues(service, "errors_encountered").Set(float64(stats.ErrorsEncountered))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
