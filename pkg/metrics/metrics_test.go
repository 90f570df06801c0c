package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ObserveStage("coder", "ok", 2*time.Second)
	m.ObserveStage("coder", "ok", time.Second)
	m.ObserveGate("ship", "retry")
	m.ObserveOracle("anthropic", "ok")
	m.ObserveTool("search_docs", "not_found")
	m.ObserveRun("done", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageExecutions.WithLabelValues("coder", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateDecisions.WithLabelValues("ship", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("anthropic", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("search_docs", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("done", "true")))

	count, err := testutil.GatherAndCount(m.Registry(), "gameforge_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveRun("failed", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Runs.WithLabelValues("failed", "false")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("planner", "ok", time.Second)
		m.ObserveGate("design", "approved")
		m.ObserveOracle("mock", "ok")
		m.ObserveTool("x", "ok")
		m.ObserveRun("done", false)
	})
	assert.Nil(t, m.Registry())
}
