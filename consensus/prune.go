package consensus

import (
	"sort"

	"weave/block"
	"weave/logx"
)

// pruneActive enforces the bounded active window: while the non-final count
// exceeds the configured maximum, the lowest-fitness, furthest-behind leaves
// are discarded as stale. Blocks with surviving descendants and blockclique
// members are never pruned, so clique recomputation stays consistent.
func (g *BlockGraph) pruneActive() {
	for g.activeCount > g.cfg.MaxActiveBlocks {
		over := g.activeCount - g.cfg.MaxActiveBlocks
		bc := g.cliques[g.blockcliqueIdx]

		var leaves []*activeBlock
		g.activeIndex.Ascend(func(e slotEntry) bool {
			ab := g.blocks[e.id]
			if len(ab.children) == 0 && !bc.has(ab.id) {
				leaves = append(leaves, ab)
			}
			return true
		})
		if len(leaves) == 0 {
			logx.Warn("PRUNE", "Active window over budget but no prunable leaves")
			return
		}

		sort.Slice(leaves, func(i, j int) bool {
			a, b := leaves[i], leaves[j]
			if a.fitness != b.fitness {
				return a.fitness < b.fitness
			}
			if c := a.slot().Cmp(b.slot()); c != 0 {
				return c < 0
			}
			return a.id.Less(b.id)
		})
		if len(leaves) > over {
			leaves = leaves[:over]
		}

		removed := make(map[block.BlockId]struct{}, len(leaves))
		for _, ab := range leaves {
			removed[ab.id] = struct{}{}
			g.discardActive(ab, DISCARD_STALE, "pruned from the active window")
		}
		g.removeFromCliques(removed)
	}
}
