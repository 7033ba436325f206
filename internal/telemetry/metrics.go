package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GenerationWallTime is published once per completed generation cycle; the Mutation
// Run Experimenter (internal/experimenter) consumes the same measurement internally
// but this histogram makes the adaptive decision observable from outside the process,
// per SPEC_FULL.md §2.2.
var GenerationWallTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "slimgo",
	Subsystem: "cycle",
	Name:      "generation_wall_time_seconds",
	Help:      "Wall-clock duration of a single generation cycle, labeled by mutrun_count.",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
}, []string{"mutrun_count"})

// TreeSeqTableRows tracks the row count of each tree-sequence table after every
// simplification pass, so the ratio-mode auto-simplification cadence (spec §4.5) can
// be inspected in a dashboard alongside the interval it has converged to.
var TreeSeqTableRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "slimgo",
	Subsystem: "treeseq",
	Name:      "table_rows",
	Help:      "Row count of each tree-sequence table after the most recent simplification.",
}, []string{"table"})

// SimplifyInterval reports the current auto-simplification interval (ratio mode).
var SimplifyInterval = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "slimgo",
	Subsystem: "treeseq",
	Name:      "simplify_interval_generations",
	Help:      "Current auto-simplification interval in generations.",
})

// MutrunCount reports the experimenter's live mutrun_count decision.
var MutrunCount = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "slimgo",
	Subsystem: "experimenter",
	Name:      "mutrun_count",
	Help:      "Current chromosome mutation-run count chosen by the experimenter.",
})
