// Package metrics exposes Prometheus counters for the resolution pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	dedupLinesTotal       *prometheus.CounterVec
	dedupCanonicalTotal   prometheus.Counter
	dedupPassthroughTotal prometheus.Counter
	dedupRewrittenTotal   prometheus.Counter
	runDurationSeconds    *prometheus.HistogramVec
	runsTotal             *prometheus.CounterVec

	evidenceTotal       prometheus.Counter
	mentionsTotal       prometheus.Counter
	oracleFailuresTotal prometheus.Counter

	graphNodesTotal prometheus.Counter
	graphEdgesTotal prometheus.Counter
}

func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	for _, c := range m.collectors() {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.dedupLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftm_dedup_lines_total",
			Help: "Input lines seen by the deduplicator",
		},
		[]string{"outcome"}, // folded, spooled, skipped
	)
	m.dedupCanonicalTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_dedup_canonical_total",
		Help: "Canonical entities emitted",
	})
	m.dedupPassthroughTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_dedup_passthrough_total",
		Help: "Pass-through records emitted",
	})
	m.dedupRewrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_dedup_references_rewritten_total",
		Help: "Reference values rewritten to canonical ids",
	})
	m.runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ftm_run_duration_seconds",
			Help:    "Duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftm_runs_total",
			Help: "Pipeline runs by stage and status",
		},
		[]string{"stage", "status"},
	)
	m.evidenceTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_infer_evidence_total",
		Help: "Evidence units sent to the extraction oracle",
	})
	m.mentionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_infer_mentions_total",
		Help: "Mention records written",
	})
	m.oracleFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_infer_oracle_failures_total",
		Help: "Evidence units for which the oracle failed or returned no usable JSON",
	})
	m.graphNodesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_graph_nodes_total",
		Help: "Entity nodes written to the graph",
	})
	m.graphEdgesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ftm_graph_edges_total",
		Help: "Reference relationships written to the graph",
	})
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.dedupLinesTotal, m.dedupCanonicalTotal, m.dedupPassthroughTotal,
		m.dedupRewrittenTotal, m.runDurationSeconds, m.runsTotal,
		m.evidenceTotal, m.mentionsTotal, m.oracleFailuresTotal,
		m.graphNodesTotal, m.graphEdgesTotal,
	}
}

// Registry returns the private registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

func (m *Metrics) ObserveDedup(stats *model.DedupStats) {
	if m == nil || stats == nil {
		return
	}
	m.dedupLinesTotal.WithLabelValues("folded").Add(float64(stats.Folded))
	m.dedupLinesTotal.WithLabelValues("spooled").Add(float64(stats.Spooled))
	m.dedupLinesTotal.WithLabelValues("skipped").Add(float64(stats.Skipped))
	m.dedupCanonicalTotal.Add(float64(stats.Canonical))
	m.dedupPassthroughTotal.Add(float64(stats.Passthrough))
	m.dedupRewrittenTotal.Add(float64(stats.Rewritten))
}

func (m *Metrics) ObserveInfer(stats *model.InferStats) {
	if m == nil || stats == nil {
		return
	}
	m.evidenceTotal.Add(float64(stats.Evidence))
	m.mentionsTotal.Add(float64(stats.Mentions))
	m.oracleFailuresTotal.Add(float64(stats.OracleFailures))
}

func (m *Metrics) ObserveGraph(stats *model.LoadStats) {
	if m == nil || stats == nil {
		return
	}
	m.graphNodesTotal.Add(float64(stats.Nodes))
	m.graphEdgesTotal.Add(float64(stats.Edges))
}

// ObserveRun records the duration and outcome of one stage run.
func (m *Metrics) ObserveRun(stage string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(stage, status).Inc()
	m.runDurationSeconds.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
