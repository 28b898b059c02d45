package consensus

import (
	"bytes"
	"fmt"
	"sort"

	"weave/block"
	"weave/events"
	"weave/logx"
)

// clique is one maximal set of mutually compatible active blocks.
type clique struct {
	members map[block.BlockId]struct{}
	fitness uint64
}

func newClique() *clique {
	return &clique{members: make(map[block.BlockId]struct{})}
}

func (c *clique) has(id block.BlockId) bool {
	_, ok := c.members[id]
	return ok
}

func (c *clique) sortedMembers() []block.BlockId {
	out := make([]block.BlockId, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (c *clique) isSubsetOf(other *clique) bool {
	if len(c.members) > len(other.members) {
		return false
	}
	for id := range c.members {
		if !other.has(id) {
			return false
		}
	}
	return true
}

// insertIntoCliques updates the maximal-clique set for one new block. Every
// maximal clique containing the new block b is (C ∩ compat(b)) ∪ {b} for
// some previously maximal C, so intersecting each existing clique with b's
// compatibility set and filtering non-maximal candidates is exact.
func (g *BlockGraph) insertIntoCliques(ab *activeBlock) {
	var kept []*clique
	var withNew []*clique
	for _, c := range g.cliques {
		inter := newClique()
		for m := range c.members {
			if _, bad := ab.incomp[m]; !bad {
				inter.members[m] = struct{}{}
			}
		}
		if len(inter.members) != len(c.members) {
			// b does not fit into C; C survives unchanged
			kept = append(kept, c)
		}
		inter.members[ab.id] = struct{}{}
		withNew = append(withNew, inter)
	}
	g.cliques = append(kept, filterMaximal(withNew)...)
	g.refreshCliques()
}

// removeFromCliques drops the given ids (finalized or discarded blocks) from
// every clique and collapses cliques that stopped being maximal.
func (g *BlockGraph) removeFromCliques(ids map[block.BlockId]struct{}) {
	for _, c := range g.cliques {
		for id := range ids {
			delete(c.members, id)
		}
	}
	g.cliques = filterMaximal(g.cliques)
	if len(g.cliques) == 0 {
		g.cliques = []*clique{newClique()}
	}
	g.refreshCliques()
}

// filterMaximal removes duplicates and cliques contained in another clique.
// Larger cliques first so subset tests only look at accepted ones.
func filterMaximal(cs []*clique) []*clique {
	sort.Slice(cs, func(i, j int) bool {
		if len(cs[i].members) != len(cs[j].members) {
			return len(cs[i].members) > len(cs[j].members)
		}
		return lexLess(cs[i].sortedMembers(), cs[j].sortedMembers())
	})
	var out []*clique
	for _, c := range cs {
		redundant := false
		for _, a := range out {
			if c.isSubsetOf(a) {
				redundant = true
				break
			}
		}
		if !redundant {
			out = append(out, c)
		}
	}
	return out
}

// refreshCliques recomputes fitness sums and re-selects the blockclique.
func (g *BlockGraph) refreshCliques() {
	for _, c := range g.cliques {
		c.fitness = 0
		for id := range c.members {
			c.fitness += g.blocks[id].fitness
		}
	}
	best := 0
	for i := 1; i < len(g.cliques); i++ {
		if cliqueBetter(g.cliques[i], g.cliques[best]) {
			best = i
		}
	}
	g.blockcliqueIdx = best
}

// cliqueBetter decides the canonical clique: highest fitness sum, ties
// broken by the lexicographically smallest sorted member sequence.
func cliqueBetter(a, b *clique) bool {
	if a.fitness != b.fitness {
		return a.fitness > b.fitness
	}
	return lexLess(a.sortedMembers(), b.sortedMembers())
}

func lexLess(a, b []block.BlockId) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(a[i][:], b[i][:]); c != 0 {
			return c < 0
		}
	}
	return len(a) < len(b)
}

// Blockclique returns the canonical chain snapshot: the blockclique members
// in slot order.
func (g *BlockGraph) Blockclique() []block.BlockId {
	bc := g.cliques[g.blockcliqueIdx]
	out := bc.sortedMembers()
	sort.Slice(out, func(i, j int) bool {
		si, sj := g.blocks[out[i]].slot(), g.blocks[out[j]].slot()
		if c := si.Cmp(sj); c != 0 {
			return c < 0
		}
		return out[i].Less(out[j])
	})
	return out
}

// BlockcliqueFitness returns the canonical clique's fitness sum.
func (g *BlockGraph) BlockcliqueFitness() uint64 {
	return g.cliques[g.blockcliqueIdx].fitness
}

// CliqueCount returns how many maximal cliques are tracked.
func (g *BlockGraph) CliqueCount() int {
	return len(g.cliques)
}

func (g *BlockGraph) blockcliqueFingerprint() string {
	var buf bytes.Buffer
	for _, id := range g.cliques[g.blockcliqueIdx].sortedMembers() {
		buf.Write(id[:])
	}
	return buf.String()
}

// publishBlockcliqueIfChanged tells the Pool collaborator when the canonical
// clique moved, so operations outside it become available again.
func (g *BlockGraph) publishBlockcliqueIfChanged() {
	key := g.blockcliqueFingerprint()
	if key == g.blockcliqueKey {
		return
	}
	g.blockcliqueKey = key
	members := g.Blockclique()
	g.deps.Notifier.PublishBlockclique(events.BlockcliqueEvent{Members: members})
	logx.Info("CLIQUE", fmt.Sprintf("Blockclique changed: %d members, fitness=%d, cliques=%d",
		len(members), g.BlockcliqueFitness(), len(g.cliques)))
}
