package bootstrap

import (
	"fmt"

	"weave/config"
	"weave/consensus"
	"weave/logx"
	"weave/slot"
)

// Export takes a point-in-time snapshot of the graph, sufficient for a
// recipient to rebuild identical cliques by replaying the active blocks in
// order. Must be called from within the graph's writer (Worker.WithGraph).
func Export(g *consensus.BlockGraph) *Graph {
	snap := &Graph{
		FinalBlocks:        g.FinalBlocksInOrder(),
		ActiveBlocks:       g.ActiveBlocksInOrder(),
		BlockcliqueFitness: g.BlockcliqueFitness(),
	}
	logx.Info("BOOTSTRAP", fmt.Sprintf("Exported snapshot: %d final, %d active, blockclique fitness %d",
		len(snap.FinalBlocks), len(snap.ActiveBlocks), snap.BlockcliqueFitness))
	return snap
}

// Import replays a snapshot into a fresh graph and returns it. The existing
// local state is untouched on failure: import is all-or-nothing. A snapshot
// is rejected when a block's parents do not precede it in the sequence, or
// when replay converges on a different blockclique fitness than declared.
func Import(cfg *config.ConsensusConfig, deps consensus.Deps, snap *Graph) (*consensus.BlockGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkGenesisPrefix(cfg, snap); err != nil {
		return nil, err
	}

	g := consensus.NewReplayGraph(cfg, deps)
	prev := slot.New(0, 0)
	for i, b := range snap.FinalBlocks {
		s := b.Header.Slot
		if i > 0 && !prev.Before(s) {
			return nil, fmt.Errorf("%w: final blocks out of slot order at %s", consensus.ErrInconsistent, s)
		}
		prev = s
		if err := g.InsertFinal(b); err != nil {
			return nil, err
		}
	}
	for _, b := range snap.ActiveBlocks {
		id, err := g.Submit(b)
		if err != nil {
			return nil, fmt.Errorf("%w: active block %s rejected on replay: %v",
				consensus.ErrInconsistent, id.ShortString(), err)
		}
		if st := g.GetStatus(id); st.State != consensus.ACTIVE {
			return nil, fmt.Errorf("%w: active block %s replayed to status %s",
				consensus.ErrInconsistent, id.ShortString(), st.State)
		}
	}
	if got := g.BlockcliqueFitness(); got != snap.BlockcliqueFitness {
		return nil, fmt.Errorf("%w: replayed blockclique fitness %d, snapshot declares %d",
			consensus.ErrInconsistent, got, snap.BlockcliqueFitness)
	}

	g.EndReplay()
	logx.Info("BOOTSTRAP", fmt.Sprintf("Imported snapshot: %d final, %d active, blockclique fitness %d",
		len(snap.FinalBlocks), len(snap.ActiveBlocks), snap.BlockcliqueFitness))
	return g, nil
}

// checkGenesisPrefix verifies the snapshot opens with one period-0 block per
// thread, in thread order.
func checkGenesisPrefix(cfg *config.ConsensusConfig, snap *Graph) error {
	if len(snap.FinalBlocks) < int(cfg.ThreadCount) {
		return fmt.Errorf("%w: snapshot misses genesis blocks", consensus.ErrInconsistent)
	}
	for t := uint8(0); t < cfg.ThreadCount; t++ {
		h := &snap.FinalBlocks[t].Header
		if h.Slot != slot.New(0, t) || len(h.Parents) != 0 {
			return fmt.Errorf("%w: snapshot block %d is not the thread %d genesis", consensus.ErrInconsistent, t, t)
		}
	}
	return nil
}
