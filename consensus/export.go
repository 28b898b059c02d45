package consensus

import (
	"weave/block"
)

// FinalBlocksInOrder returns every final block in slot order, genesis first.
func (g *BlockGraph) FinalBlocksInOrder() []*block.Block {
	out := make([]*block.Block, 0, g.finalIndex.Len())
	g.finalIndex.Ascend(func(e slotEntry) bool {
		out = append(out, g.blocks[e.id].blk)
		return true
	})
	return out
}

// ActiveBlocksInOrder returns the active blocks in slot order. Parents have
// strictly earlier slots than children, so this order is topological and
// replaying it rebuilds identical cliques.
func (g *BlockGraph) ActiveBlocksInOrder() []*block.Block {
	out := make([]*block.Block, 0, g.activeIndex.Len())
	g.activeIndex.Ascend(func(e slotEntry) bool {
		out = append(out, g.blocks[e.id].blk)
		return true
	})
	return out
}

// ActiveCount returns the number of non-final active blocks.
func (g *BlockGraph) ActiveCount() int {
	return g.activeCount
}

// BestParents returns, per thread, the tip the next block should reference:
// the latest blockclique member on that thread, falling back to the latest
// final block.
func (g *BlockGraph) BestParents() []block.BlockId {
	out := append([]block.BlockId(nil), g.latestFinalId...)
	bc := g.cliques[g.blockcliqueIdx]
	for id := range bc.members {
		s := g.blocks[id].slot()
		cur, ok := g.blocks[out[s.Thread]]
		if !ok || s.After(cur.slot()) {
			out[s.Thread] = id
		}
	}
	return out
}
