// Package metrics holds the Prometheus instruments for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the pipeline. A nil *Metrics is
// valid and records nothing.
//
// Metrics:
//   - gameforge_stage_executions_total{stage,outcome}
//   - gameforge_stage_duration_seconds{stage}
//   - gameforge_gate_decisions_total{gate,branch}
//   - gameforge_oracle_calls_total{adapter,outcome}
//   - gameforge_tool_calls_total{tool,outcome}
//   - gameforge_runs_total{status,shipped}
type Metrics struct {
	StageExecutions *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	GateDecisions   *prometheus.CounterVec
	OracleCalls     *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
	Runs            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the pipeline metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameforge_stage_executions_total",
				Help: "Total number of stage executions",
			},
			[]string{"stage", "outcome"}, // "ok" or "error"
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gameforge_stage_duration_seconds",
				Help:    "Duration of stage executions in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		GateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameforge_gate_decisions_total",
				Help: "Total number of gate decisions by branch taken",
			},
			[]string{"gate", "branch"}, // "approved", "retry", "forced"
		),
		OracleCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameforge_oracle_calls_total",
				Help: "Total number of oracle invocations",
			},
			[]string{"adapter", "outcome"}, // "ok", "retry", "error"
		),
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameforge_tool_calls_total",
				Help: "Total number of tool calls made by stages",
			},
			[]string{"tool", "outcome"}, // "ok", "not_found", "error"
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gameforge_runs_total",
				Help: "Total number of finished runs",
			},
			[]string{"status", "shipped"},
		),
		registry: reg,
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageExecutions.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveGate(gate, branch string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(gate, branch).Inc()
}

func (m *Metrics) ObserveOracle(adapter, outcome string) {
	if m == nil {
		return
	}
	m.OracleCalls.WithLabelValues(adapter, outcome).Inc()
}

func (m *Metrics) ObserveTool(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) ObserveRun(status string, shipped bool) {
	if m == nil {
		return
	}
	label := "false"
	if shipped {
		label = "true"
	}
	m.Runs.WithLabelValues(status, label).Inc()
}
