package consensus

import (
	"fmt"
	"sort"

	"weave/block"
	"weave/events"
	"weave/logx"
	"weave/metrics"
	"weave/slot"
)

// updateFinality runs the GHOST-style promotion loop to a fixpoint: cliques
// that fell more than the finality threshold behind the blockclique are
// discarded as stale branches, then blocks contained in every surviving
// clique that matters for their thread are promoted to final.
func (g *BlockGraph) updateFinality() {
	for {
		if g.discardStaleCliques() {
			continue
		}
		ab := g.findFinalizable()
		if ab == nil {
			return
		}
		g.finalizeBlock(ab)
	}
}

// discardStaleCliques drops every active block that only appears in cliques
// lagging the blockclique by more than the finality threshold. Those
// branches can never catch up once the gap is irreversible.
func (g *BlockGraph) discardStaleCliques() bool {
	bcFit := g.cliques[g.blockcliqueIdx].fitness
	inViable := make(map[block.BlockId]struct{})
	for _, c := range g.cliques {
		if bcFit-c.fitness <= g.cfg.FinalityThreshold {
			for id := range c.members {
				inViable[id] = struct{}{}
			}
		}
	}

	var stale []*activeBlock
	g.activeIndex.Ascend(func(e slotEntry) bool {
		if _, ok := inViable[e.id]; !ok {
			stale = append(stale, g.blocks[e.id])
		}
		return true
	})
	if len(stale) == 0 {
		return false
	}

	removed := make(map[block.BlockId]struct{}, len(stale))
	for _, ab := range stale {
		removed[ab.id] = struct{}{}
		g.discardActive(ab, DISCARD_STALE, "branch fell behind the blockclique beyond the finality threshold")
	}
	g.removeFromCliques(removed)
	return true
}

// findFinalizable returns the earliest-slot active block meeting the
// finality rule, or nil.
func (g *BlockGraph) findFinalizable() *activeBlock {
	var found *activeBlock
	g.activeIndex.Ascend(func(e slotEntry) bool {
		ab := g.blocks[e.id]
		if g.isFinalizable(ab) {
			found = ab
			return false
		}
		return true
	})
	return found
}

// isFinalizable applies the finality rule to one block: every clique holding
// a younger active block on its thread must also hold it (and at least one
// such clique must exist), and every clique holding a conflicting block must
// lag the blockclique by more than the threshold.
func (g *BlockGraph) isFinalizable(ab *activeBlock) bool {
	s := ab.slot()
	sawYounger := false
	for _, c := range g.cliques {
		hasYounger := false
		for m := range c.members {
			ms := g.blocks[m].slot()
			if ms.Thread == s.Thread && ms.After(s) {
				hasYounger = true
				break
			}
		}
		if hasYounger {
			sawYounger = true
			if !c.has(ab.id) {
				return false
			}
		}
	}
	if !sawYounger {
		return false
	}

	bcFit := g.cliques[g.blockcliqueIdx].fitness
	for _, c := range g.cliques {
		for m := range c.members {
			if _, bad := ab.incomp[m]; bad {
				if bcFit-c.fitness <= g.cfg.FinalityThreshold {
					return false
				}
				break
			}
		}
	}
	return true
}

// finalizeBlock promotes one block irreversibly, together with any still
// active ancestors: a block cannot be irreversible while something it
// depends on is not.
func (g *BlockGraph) finalizeBlock(ab *activeBlock) {
	var anc []*activeBlock
	for id := range g.ancestors(ab.blk.Header.Parents) {
		if a, ok := g.blocks[id]; ok && a.status == ACTIVE {
			anc = append(anc, a)
		}
	}
	sort.Slice(anc, func(i, j int) bool {
		if c := anc[i].slot().Cmp(anc[j].slot()); c != 0 {
			return c < 0
		}
		return anc[i].id.Less(anc[j].id)
	})
	for _, a := range anc {
		g.finalizeOne(a)
	}
	g.finalizeOne(ab)
}

// finalizeOne performs the promotion of a single block. Conflict losers at
// its slot are discarded, and the block is queued for ordered emission.
func (g *BlockGraph) finalizeOne(ab *activeBlock) {
	s := ab.slot()
	ab.status = FINAL
	g.activeIndex.Delete(slotEntry{slot: s, id: ab.id})
	g.activeCount--
	g.finalIndex.ReplaceOrInsert(slotEntry{slot: s, id: ab.id})
	if s.After(g.latestFinal[s.Thread]) {
		g.latestFinal[s.Thread] = s
		g.latestFinalId[s.Thread] = ab.id
	}

	removed := map[block.BlockId]struct{}{ab.id: {}}
	losers := make([]*activeBlock, 0, len(ab.incomp))
	for lid := range ab.incomp {
		losers = append(losers, g.blocks[lid])
	}
	for _, loser := range losers {
		removed[loser.id] = struct{}{}
		g.discardActive(loser, DISCARD_ALREADY_FINAL, "conflicts with a finalized block")
	}
	ab.incomp = make(map[block.BlockId]struct{})
	g.removeFromCliques(removed)

	metrics.FinalizedTotal.Inc()
	maxPeriod := uint64(0)
	for _, fs := range g.latestFinal {
		if fs.Period > maxPeriod {
			maxPeriod = fs.Period
		}
	}
	metrics.LatestFinalPeriod.Set(float64(maxPeriod))
	logx.Info("FINALITY", fmt.Sprintf("Finalized block %s at %s, discarded %d conflict losers",
		ab.id.ShortString(), s, len(losers)))

	g.queueFinalized(ab)
}

// queueFinalized holds the notification until every thread's final frontier
// caught up, so collaborators observe finalized blocks in strict slot order.
func (g *BlockGraph) queueFinalized(ab *activeBlock) {
	g.emitQueue.ReplaceOrInsert(slotEntry{slot: ab.slot(), id: ab.id})
	g.emitPayload[ab.id] = events.FinalizedEvent{
		Id:         ab.id,
		Header:     &ab.blk.Header,
		Operations: ab.blk.Body.Operations,
	}
}

// flushFinalized emits queued notifications up to the cross-thread final
// frontier. Emission blocks when a collaborator's backlog is full; each
// block is emitted exactly once.
func (g *BlockGraph) flushFinalized() {
	frontier := g.latestFinal[0]
	for _, s := range g.latestFinal[1:] {
		if s.Before(frontier) {
			frontier = s
		}
	}

	var ready []slotEntry
	g.emitQueue.Ascend(func(e slotEntry) bool {
		if e.slot.After(frontier) {
			return false
		}
		ready = append(ready, e)
		return true
	})
	for _, e := range ready {
		g.emitQueue.Delete(e)
		ev := g.emitPayload[e.id]
		delete(g.emitPayload, e.id)
		g.deps.Notifier.PublishFinalized(ev)
		logx.Debug("FINALITY", fmt.Sprintf("Emitted finalized block %s at %s", e.id.ShortString(), e.slot))
	}
}

// LatestFinalSlots returns a copy of the per-thread final frontier.
func (g *BlockGraph) LatestFinalSlots() []slot.Slot {
	return append([]slot.Slot(nil), g.latestFinal...)
}
