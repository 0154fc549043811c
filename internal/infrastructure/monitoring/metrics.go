package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the harness's Prometheus collectors. Each Metrics owns its
// registry so parallel runs and tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// Probe metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec

	// Scenario metrics
	ScenariosTotal   *prometheus.CounterVec
	ScenarioDuration *prometheus.HistogramVec

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	LaunchDuration  prometheus.Histogram

	// HTTP metrics for the fixture and emulator servers
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates collectors registered on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isolation_probes_total",
				Help: "Probes run, by probe kind and verdict",
			},
			[]string{"probe", "verdict"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "isolation_probe_duration_seconds",
				Help:    "Probe duration in seconds, selection included",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"probe"},
		),

		ScenariosTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isolation_scenarios_total",
				Help: "Scenarios run, by scenario and outcome",
			},
			[]string{"scenario", "outcome"},
		),
		ScenarioDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "isolation_scenario_duration_seconds",
				Help:    "Scenario duration in seconds, launch and teardown included",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"scenario"},
		),

		SessionsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "isolation_sessions_started_total",
				Help: "Application sessions that reached the ready state",
			},
		),
		SessionsStopped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "isolation_sessions_stopped_total",
				Help: "Application sessions torn down",
			},
		),
		LaunchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "isolation_launch_duration_seconds",
				Help:    "Time from launch request to ready state",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isolation_http_requests_total",
				Help: "HTTP requests served by harness-side servers",
			},
			[]string{"server", "method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "isolation_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"server"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordProbe records one probe verdict: pass, violation, defect, timeout or
// error.
func (m *Metrics) RecordProbe(probe, verdict string, duration time.Duration) {
	m.ProbesTotal.WithLabelValues(probe, verdict).Inc()
	m.ProbeDuration.WithLabelValues(probe).Observe(duration.Seconds())
}

// RecordScenario records a finished scenario.
func (m *Metrics) RecordScenario(scenario, outcome string, duration time.Duration) {
	m.ScenariosTotal.WithLabelValues(scenario, outcome).Inc()
	m.ScenarioDuration.WithLabelValues(scenario).Observe(duration.Seconds())
}

// RecordLaunch records a session that reached the ready state.
func (m *Metrics) RecordLaunch(duration time.Duration) {
	m.SessionsStarted.Inc()
	m.LaunchDuration.Observe(duration.Seconds())
}

// IncSessionsStopped counts a teardown.
func (m *Metrics) IncSessionsStopped() {
	m.SessionsStopped.Inc()
}

// RecordHTTPRequest records a request served by server.
func (m *Metrics) RecordHTTPRequest(server, method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(server, method, status).Inc()
	m.RequestDuration.WithLabelValues(server).Observe(duration.Seconds())
}

// WriteTextfile writes every metric in the text exposition format to path,
// for the node exporter textfile collector on CI hosts.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
