// Package metrics collects per-run counters and phase timings for one
// hbreport master invocation and renders them into the report tree as a
// plain-text Prometheus exposition snapshot. It is never served over a
// network: hbreport operates over a closed historical interval and is
// explicitly not a live monitor.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds the counters and histograms for a single master run.
// Unlike a long-lived service, a new Registry is created per invocation
// so a second `report` run in the same process (there never is one,
// but tests construct several) never collides on metric registration.
type Registry struct {
	reg *prometheus.Registry

	NodesContacted *prometheus.CounterVec
	NodesSkipped   *prometheus.CounterVec
	PhaseDuration  *prometheus.HistogramVec
	BytesEmitted   prometheus.Counter
}

// New creates a Registry with all collection metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		NodesContacted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hbreport_nodes_contacted_total",
				Help: "Total number of nodes successfully contacted for collection.",
			},
			[]string{"node"},
		),
		NodesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hbreport_nodes_skipped_total",
				Help: "Total number of nodes skipped, labeled by reason.",
			},
			[]string{"node", "reason"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hbreport_phase_duration_seconds",
				Help:    "Wall-clock duration of each master orchestration phase.",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"phase"},
		),
		BytesEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hbreport_extractor_bytes_emitted_total",
				Help: "Total bytes of collector tar-stream output reassembled across all nodes, local and remote.",
			},
		),
	}

	reg.MustRegister(m.NodesContacted, m.NodesSkipped, m.PhaseDuration, m.BytesEmitted)
	return m
}

// Timer times one phase and records it into PhaseDuration on Stop.
type Timer struct {
	phase string
	start time.Time
	vec   *prometheus.HistogramVec
}

// StartPhase begins timing a named orchestration phase.
func (m *Registry) StartPhase(phase string) *Timer {
	return &Timer{phase: phase, start: time.Now(), vec: m.PhaseDuration}
}

// Stop records the elapsed time since StartPhase.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.vec.WithLabelValues(t.phase).Observe(d.Seconds())
	return d
}

// WriteSnapshot renders the registry in Prometheus text exposition
// format to w, for bundling into <report-root>/metrics.txt.
func (m *Registry) WriteSnapshot(w io.Writer) error {
	families, err := m.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
