package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	m := New()

	m.NodesContacted.WithLabelValues("node1").Inc()
	m.NodesContacted.WithLabelValues("node1").Inc()
	m.NodesSkipped.WithLabelValues("node2", "no-ssh").Inc()
	m.BytesEmitted.Add(42)

	var buf strings.Builder
	require.NoError(t, m.WriteSnapshot(&buf))

	out := buf.String()
	assert.Contains(t, out, "hbreport_nodes_contacted_total")
	assert.Contains(t, out, `node="node1"`)
	assert.Contains(t, out, "hbreport_nodes_skipped_total")
	assert.Contains(t, out, `reason="no-ssh"`)
	assert.Contains(t, out, "hbreport_extractor_bytes_emitted_total 42")
}

func TestTimerRecordsPhaseDuration(t *testing.T) {
	m := New()

	timer := m.StartPhase("probe")
	d := timer.Stop()
	assert.GreaterOrEqual(t, d.Seconds(), 0.0)

	var buf strings.Builder
	require.NoError(t, m.WriteSnapshot(&buf))
	assert.Contains(t, buf.String(), "hbreport_phase_duration_seconds")
	assert.Contains(t, buf.String(), `phase="probe"`)
}

func TestNewRegistryIsIndependent(t *testing.T) {
	// Two independent registries must never collide on metric
	// registration (metrics.go's doc comment: "a new Registry is
	// created per invocation").
	a := New()
	b := New()

	a.NodesContacted.WithLabelValues("n1").Inc()
	b.NodesContacted.WithLabelValues("n1").Inc()

	var bufA, bufB strings.Builder
	require.NoError(t, a.WriteSnapshot(&bufA))
	require.NoError(t, b.WriteSnapshot(&bufB))
	assert.Contains(t, bufA.String(), "hbreport_nodes_contacted_total")
	assert.Contains(t, bufB.String(), "hbreport_nodes_contacted_total")
}
