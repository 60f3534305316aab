// Package metrics exposes Prometheus-style counters/gauges/duration
// summaries for the runtime (§4.10), grounded on the teacher's use of
// prometheus/client_golang for queue and session instrumentation.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the runtime emits and exposes both the
// Prometheus text format and a JSON snapshot for lightweight dashboards.
type Registry struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeThreads prometheus.Gauge

	cronTicks  prometheus.Counter
	cronErrors prometheus.Counter

	agentSyncRuns   prometheus.Counter
	agentSyncErrors prometheus.Counter
}

// NewRegistry builds and registers every metric collector.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_http_requests_total",
			Help: "Total HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_runs_total",
			Help: "Total runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_run_duration_seconds",
			Help:    "Run execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"graph_id"}),
		activeThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentrt_active_threads",
			Help: "Threads currently in busy status.",
		}),
		cronTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_cron_ticks_total",
			Help: "Total cron scheduler ticks.",
		}),
		cronErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_cron_errors_total",
			Help: "Total cron firing errors.",
		}),
		agentSyncRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_agent_sync_runs_total",
			Help: "Total agent-sync reconciliation passes.",
		}),
		agentSyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrt_agent_sync_errors_total",
			Help: "Total agent-sync reconciliation errors.",
		}),
	}
	reg.MustRegister(
		m.requestsTotal, m.requestDuration, m.runsTotal, m.runDuration,
		m.activeThreads, m.cronTicks, m.cronErrors, m.agentSyncRuns, m.agentSyncErrors,
	)
	return m
}

// ObserveRequest records one completed HTTP request.
func (m *Registry) ObserveRequest(route, method string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// ObserveRun records one completed run's terminal status and duration.
func (m *Registry) ObserveRun(graphID, status string, d time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(graphID).Observe(d.Seconds())
}

// SetActiveThreads updates the busy-thread gauge.
func (m *Registry) SetActiveThreads(n int) { m.activeThreads.Set(float64(n)) }

// IncCronTick records one scheduler tick.
func (m *Registry) IncCronTick() { m.cronTicks.Inc() }

// IncCronError records one cron firing failure.
func (m *Registry) IncCronError() { m.cronErrors.Inc() }

// IncAgentSyncRun records one reconciliation pass.
func (m *Registry) IncAgentSyncRun() { m.agentSyncRuns.Inc() }

// IncAgentSyncError records one reconciliation failure.
func (m *Registry) IncAgentSyncError() { m.agentSyncErrors.Inc() }

// Handler returns the Prometheus text-exposition HTTP handler for /metrics.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JSONSnapshot gathers the current metric families and renders them as a
// flat JSON object for /metrics/json, for callers that don't want to parse
// the text exposition format.
func (m *Registry) JSONSnapshot() ([]byte, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, f := range families {
		var values []map[string]any
		for _, metric := range f.GetMetric() {
			entry := map[string]any{}
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if len(labels) > 0 {
				entry["labels"] = labels
			}
			switch {
			case metric.Counter != nil:
				entry["value"] = metric.GetCounter().GetValue()
			case metric.Gauge != nil:
				entry["value"] = metric.GetGauge().GetValue()
			case metric.Histogram != nil:
				entry["sample_count"] = metric.GetHistogram().GetSampleCount()
				entry["sample_sum"] = metric.GetHistogram().GetSampleSum()
			}
			values = append(values, entry)
		}
		out[f.GetName()] = values
	}
	return json.Marshal(out)
}
