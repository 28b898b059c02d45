package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// --- Graph ---

var ActiveBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "weave_graph_active_blocks",
	Help: "Non-final active blocks in the graph",
})

var PendingBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "weave_graph_pending_blocks",
	Help: "Blocks buffered waiting for parents",
})

var WaitingForSlotBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "weave_graph_waiting_for_slot_blocks",
	Help: "Blocks held until their slot is reached",
})

// --- Cliques ---

var CliqueCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "weave_clique_count",
	Help: "Number of maximal cliques currently tracked",
})

var BlockcliqueFitness = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "weave_blockclique_fitness",
	Help: "Fitness sum of the canonical clique",
})

var BlockcliqueSize = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "weave_blockclique_size",
	Help: "Member count of the canonical clique",
})

// --- Finality ---

var FinalizedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "weave_finalized_blocks_total",
	Help: "Blocks promoted to final",
})

var LatestFinalPeriod = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "weave_latest_final_period",
	Help: "Highest finalized period across threads",
})

// --- Discards ---

var DiscardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "weave_discarded_blocks_total",
	Help: "Blocks discarded, by reason",
}, []string{"reason"})

var PanicTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "weave_panics_recovered_total",
	Help: "Panics recovered from background goroutines",
})

// Register adds every engine metric to the given registry (defaults to the
// global one when nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		ActiveBlocks, PendingBlocks, WaitingForSlotBlocks,
		CliqueCount, BlockcliqueFitness, BlockcliqueSize,
		FinalizedTotal, LatestFinalPeriod, DiscardedTotal, PanicTotal,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
