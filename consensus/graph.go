package consensus

import (
	"fmt"
	"time"

	"github.com/google/btree"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"weave/block"
	"weave/config"
	"weave/events"
	"weave/interfaces"
	"weave/logx"
	"weave/metrics"
	"weave/selection"
	"weave/slot"
	"weave/store"
)

// slotEntry orders block ids by slot, then id, inside the btree indexes.
type slotEntry struct {
	slot slot.Slot
	id   block.BlockId
}

func slotEntryLess(a, b slotEntry) bool {
	if c := a.slot.Cmp(b.slot); c != 0 {
		return c < 0
	}
	return a.id.Less(b.id)
}

// activeBlock is the graph's arena record. Parent/child/conflict relations
// are id sets, never pointers, so the DAG has no ownership cycles.
type activeBlock struct {
	blk      *block.Block
	id       block.BlockId
	status   BlockStatus
	fitness  uint64
	parents  map[block.BlockId]struct{}
	children map[block.BlockId]struct{}
	incomp   map[block.BlockId]struct{} // active blocks this one conflicts with
}

func (ab *activeBlock) slot() slot.Slot {
	return ab.blk.Header.Slot
}

// Deps bundles the engine's collaborators. Nil entries get safe defaults
// (accept-all selector, default fitness, subscriber-less notifier).
type Deps struct {
	Selector interfaces.Selector
	Fitness  interfaces.FitnessFunc
	Protocol interfaces.ProtocolNotifier
	Notifier *events.Notifier
	Store    *store.BlockStore
	Now      func() time.Time
}

// BlockGraph owns all consensus state. It is NOT safe for concurrent use:
// every mutation goes through the single writer (see Worker).
type BlockGraph struct {
	cfg  *config.ConsensusConfig
	deps Deps

	blocks      map[block.BlockId]*activeBlock // ACTIVE and FINAL blocks
	activeIndex *btree.BTreeG[slotEntry]
	finalIndex  *btree.BTreeG[slotEntry]
	activeCount int

	cliques        []*clique
	blockcliqueIdx int
	blockcliqueKey string

	latestFinal   []slot.Slot
	latestFinalId []block.BlockId

	pending      *pendingBuffer
	waiting      map[block.BlockId]*block.Block
	waitingIndex *btree.BTreeG[slotEntry]

	rejected *expirable.LRU[block.BlockId, DiscardReason]

	emitQueue   *btree.BTreeG[slotEntry]
	emitPayload map[block.BlockId]events.FinalizedEvent

	resubmit []*pendingBlock
	draining bool

	replay bool
}

func newGraph(cfg *config.ConsensusConfig, deps Deps, replay bool) *BlockGraph {
	if deps.Selector == nil {
		deps.Selector = selection.AnySelector{}
	}
	if deps.Fitness == nil {
		deps.Fitness = selection.DefaultFitness
	}
	if deps.Notifier == nil {
		deps.Notifier = events.NewNotifier(cfg.NotificationBacklog)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	g := &BlockGraph{
		cfg:           cfg,
		deps:          deps,
		blocks:        make(map[block.BlockId]*activeBlock),
		activeIndex:   btree.NewG(8, slotEntryLess),
		finalIndex:    btree.NewG(8, slotEntryLess),
		latestFinal:   make([]slot.Slot, cfg.ThreadCount),
		latestFinalId: make([]block.BlockId, cfg.ThreadCount),
		pending:       newPendingBuffer(),
		waiting:       make(map[block.BlockId]*block.Block),
		waitingIndex:  btree.NewG(8, slotEntryLess),
		emitQueue:     btree.NewG(8, slotEntryLess),
		emitPayload:   make(map[block.BlockId]events.FinalizedEvent),
		replay:        replay,
	}
	g.rejected = expirable.NewLRU[block.BlockId, DiscardReason](
		cfg.RejectionCacheSize, nil, time.Duration(cfg.RejectionCacheTTLMs)*time.Millisecond)
	g.cliques = []*clique{newClique()}
	return g
}

// NewBlockGraph builds a live graph seeded with one final genesis block per
// thread, in thread order.
func NewBlockGraph(cfg *config.ConsensusConfig, deps Deps, genesis []*block.Block) (*BlockGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(genesis) != int(cfg.ThreadCount) {
		return nil, fmt.Errorf("%w: need one genesis block per thread", ErrInvalidBlock)
	}
	g := newGraph(cfg, deps, false)
	for i, b := range genesis {
		if b.Header.Slot != slot.New(0, uint8(i)) || len(b.Header.Parents) != 0 {
			return nil, fmt.Errorf("%w: genesis block %d has wrong slot or parents", ErrInvalidBlock, i)
		}
		if err := g.InsertFinal(b); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// NewReplayGraph builds an empty graph in replay mode: wall-clock and
// producer-eligibility gates are skipped while a bootstrap snapshot is
// replayed into it.
func NewReplayGraph(cfg *config.ConsensusConfig, deps Deps) *BlockGraph {
	return newGraph(cfg, deps, true)
}

// EndReplay switches an imported graph to live validation rules.
func (g *BlockGraph) EndReplay() {
	g.replay = false
}

// InsertFinal registers an already-final block. Parents must be present;
// only period-0 blocks may be parentless. Used for genesis and bootstrap.
func (g *BlockGraph) InsertFinal(b *block.Block) error {
	h := &b.Header
	id := h.ComputeId()
	if _, known := g.blocks[id]; known {
		return nil
	}
	if h.Slot.Thread >= g.cfg.ThreadCount {
		return fmt.Errorf("%w: final block thread out of range", ErrInconsistent)
	}
	isGenesis := h.Slot.Period == 0 && len(h.Parents) == 0
	if !isGenesis {
		if len(h.Parents) != int(g.cfg.ThreadCount) {
			return fmt.Errorf("%w: final block %s has wrong parent count", ErrInconsistent, id.ShortString())
		}
		for _, p := range h.Parents {
			if _, ok := g.blocks[p]; !ok {
				return fmt.Errorf("%w: final block %s references parent %s not seen earlier",
					ErrInconsistent, id.ShortString(), p.ShortString())
			}
		}
	}
	ab := &activeBlock{
		blk:      b,
		id:       id,
		status:   FINAL,
		fitness:  g.deps.Fitness(h),
		parents:  make(map[block.BlockId]struct{}, len(h.Parents)),
		children: make(map[block.BlockId]struct{}),
		incomp:   make(map[block.BlockId]struct{}),
	}
	for _, p := range h.Parents {
		ab.parents[p] = struct{}{}
		g.blocks[p].children[id] = struct{}{}
	}
	g.blocks[id] = ab
	g.finalIndex.ReplaceOrInsert(slotEntry{slot: h.Slot, id: id})
	t := h.Slot.Thread
	if g.latestFinalId[t].IsZero() || h.Slot.After(g.latestFinal[t]) {
		g.latestFinal[t] = h.Slot
		g.latestFinalId[t] = id
	}
	if g.deps.Store != nil {
		if err := g.deps.Store.Put(b); err != nil {
			logx.Error("GRAPH", "Failed to persist final block: ", err)
		}
	}
	return nil
}

// Submit runs one block through the full pipeline: structural and semantic
// checks, dependency resolution, linking, clique update, finality, pruning.
// Resubmitting a known id is an idempotent no-op returning the recorded
// outcome.
func (g *BlockGraph) Submit(b *block.Block) (block.BlockId, error) {
	id := b.Header.ComputeId()
	if _, known := g.blocks[id]; known {
		return id, nil
	}
	if g.pending.contains(id) {
		return id, nil
	}
	if _, ok := g.waiting[id]; ok {
		return id, nil
	}
	if reason, ok := g.rejected.Get(id); ok {
		return id, reasonError(reason)
	}
	blockId, err := g.process(id, b)
	g.drainResubmit()
	g.updateMetrics()
	return blockId, err
}

func (g *BlockGraph) process(id block.BlockId, b *block.Block) (block.BlockId, error) {
	h := &b.Header
	if err := g.checkStructural(b); err != nil {
		g.discardUnlinked(id, DISCARD_INVALID, err.Error())
		return id, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}

	s := h.Slot
	if s.Period == 0 {
		g.discardUnlinked(id, DISCARD_INVALID, "genesis slot occupied")
		return id, fmt.Errorf("%w: genesis slot occupied", ErrInvalidBlock)
	}

	if !g.replay && s.Period > g.slotHorizon() {
		g.waiting[id] = b
		g.waitingIndex.ReplaceOrInsert(slotEntry{slot: s, id: id})
		logx.Info("GRAPH", fmt.Sprintf("Block %s at %s queued until its slot", id.ShortString(), s))
		return id, nil
	}

	if s.Cmp(g.latestFinal[s.Thread]) <= 0 {
		g.discardUnlinked(id, DISCARD_TOO_OLD, "slot at or behind the final frontier")
		return id, ErrStaleBlock
	}

	if !g.replay && !g.deps.Selector.IsEligible(s, h.Creator) {
		g.discardUnlinked(id, DISCARD_INVALID, "creator not eligible for slot")
		if g.deps.Protocol != nil {
			g.deps.Protocol.PenalizeOrigin(id, "ineligible producer")
		}
		return id, fmt.Errorf("%w: creator not eligible for slot", ErrInvalidBlock)
	}

	var missing []block.BlockId
	for _, p := range h.Parents {
		if _, ok := g.blocks[p]; ok {
			continue
		}
		if _, wasRejected := g.rejected.Get(p); wasRejected {
			g.discardUnlinked(id, DISCARD_STALE, "parent was discarded")
			return id, ErrStaleBlock
		}
		missing = append(missing, p)
	}
	if len(missing) > 0 {
		g.pending.add(id, b, missing, g.deps.Now(),
			time.Duration(g.cfg.PendingDeadlineMs)*time.Millisecond,
			time.Duration(g.cfg.MissingGracePeriodMs)*time.Millisecond)
		logx.Info("GRAPH", fmt.Sprintf("Block %s waiting for %d parents", id.ShortString(), len(missing)))
		return id, nil
	}

	if err := g.checkParents(b); err != nil {
		g.discardUnlinked(id, DISCARD_INVALID, err.Error())
		return id, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}

	return id, g.acceptBlock(id, b)
}

// slotHorizon is the highest period accepted right now: the wall-clock
// period plus the configured tolerance.
func (g *BlockGraph) slotHorizon() uint64 {
	latest, ok := slot.LatestAt(g.cfg.ThreadCount,
		time.Duration(g.cfg.T0Ms)*time.Millisecond,
		time.UnixMilli(g.cfg.GenesisTimestampMs), g.deps.Now())
	if !ok {
		return g.cfg.FutureSlotTolerance
	}
	return latest.Period + g.cfg.FutureSlotTolerance
}

func (g *BlockGraph) checkStructural(b *block.Block) error {
	h := &b.Header
	if h.Slot.Thread >= g.cfg.ThreadCount {
		return fmt.Errorf("thread %d out of range", h.Slot.Thread)
	}
	if len(h.Parents) != int(g.cfg.ThreadCount) {
		return fmt.Errorf("expected %d parents, got %d", g.cfg.ThreadCount, len(h.Parents))
	}
	if !h.VerifySignature() {
		return fmt.Errorf("bad creator signature")
	}
	if block.OperationRoot(b.Body.Operations) != h.OperationRoot {
		return fmt.Errorf("operation root does not match body")
	}
	ownParent := h.Parents[h.Slot.Thread]
	for i := range h.Endorsements {
		e := &h.Endorsements[i]
		if !e.VerifySignature() {
			return fmt.Errorf("bad endorsement signature")
		}
		if e.Slot.Thread != h.Slot.Thread || e.EndorsedBlock != ownParent {
			return fmt.Errorf("endorsement does not target the own-thread parent")
		}
	}
	return nil
}

// checkParents runs the stateful parent validation once all parents are in
// the graph.
func (g *BlockGraph) checkParents(b *block.Block) error {
	h := &b.Header
	for t := uint8(0); t < g.cfg.ThreadCount; t++ {
		pab, ok := g.blocks[h.Parents[t]]
		if !ok {
			return fmt.Errorf("parent on thread %d unknown", t)
		}
		ps := pab.slot()
		if ps.Thread != t {
			return fmt.Errorf("parent on thread %d lives on thread %d", t, ps.Thread)
		}
		if !ps.Before(h.Slot) {
			return fmt.Errorf("parent slot %s not before block slot %s", ps, h.Slot)
		}
	}
	for i := uint8(0); i < g.cfg.ThreadCount; i++ {
		for j := i + 1; j < g.cfg.ThreadCount; j++ {
			if _, bad := g.blocks[h.Parents[i]].incomp[h.Parents[j]]; bad {
				return fmt.Errorf("parents on threads %d and %d conflict", i, j)
			}
		}
	}
	ownParent := g.blocks[h.Parents[h.Slot.Thread]].slot()
	for i := range h.Endorsements {
		if h.Endorsements[i].Slot != ownParent {
			return fmt.Errorf("endorsement slot %s does not match the endorsed parent at %s",
				h.Endorsements[i].Slot, ownParent)
		}
	}
	return nil
}

// acceptBlock links a validated block into the graph and runs the clique,
// finality and pruning stages.
func (g *BlockGraph) acceptBlock(id block.BlockId, b *block.Block) error {
	h := &b.Header
	ancestors := g.ancestors(h.Parents)
	t := h.Slot.Thread
	ownParent := g.blocks[h.Parents[t]].slot()

	// Conflict set: every non-ancestor on the own thread whose slot this
	// block occupies or skips (own-parent period exclusive through the own
	// period inclusive), every block that skipped this slot itself, the
	// descendants of those, and everything the parents conflict with.
	// Ancestor-related pairs never conflict.
	conflicts := make(map[block.BlockId]struct{})
	g.activeIndex.AscendGreaterOrEqual(slotEntry{slot: slot.New(ownParent.Period+1, 0)}, func(e slotEntry) bool {
		if e.slot.Thread != t {
			return true
		}
		if e.slot.Period <= h.Slot.Period {
			if _, anc := ancestors[e.id]; anc {
				return true
			}
		} else {
			// e skipped this slot only if its own-thread parent is older
			op, ok := g.blocks[g.blocks[e.id].blk.Header.Parents[t]]
			if ok && op.slot().Period >= h.Slot.Period {
				return true
			}
		}
		conflicts[e.id] = struct{}{}
		// A block whose history contains a conflictor cannot coexist with
		// this block either.
		for d := range g.descendants(e.id) {
			conflicts[d] = struct{}{}
		}
		return true
	})
	for _, p := range h.Parents {
		for c := range g.blocks[p].incomp {
			if _, anc := ancestors[c]; anc {
				g.discardUnlinked(id, DISCARD_INVALID, "block depends on conflicting ancestors")
				return fmt.Errorf("%w: block depends on conflicting ancestors", ErrInvalidBlock)
			}
			conflicts[c] = struct{}{}
		}
	}

	ab := &activeBlock{
		blk:      b,
		id:       id,
		status:   ACTIVE,
		fitness:  g.deps.Fitness(h),
		parents:  make(map[block.BlockId]struct{}, len(h.Parents)),
		children: make(map[block.BlockId]struct{}),
		incomp:   conflicts,
	}
	for _, p := range h.Parents {
		ab.parents[p] = struct{}{}
		g.blocks[p].children[id] = struct{}{}
	}
	for c := range conflicts {
		g.blocks[c].incomp[id] = struct{}{}
	}
	g.blocks[id] = ab
	g.activeIndex.ReplaceOrInsert(slotEntry{slot: h.Slot, id: id})
	g.activeCount++

	g.insertIntoCliques(ab)
	g.updateFinality()
	g.pruneActive()

	if g.deps.Store != nil {
		if err := g.deps.Store.Put(b); err != nil {
			logx.Error("GRAPH", "Failed to persist block: ", err)
		}
	}

	logx.Info("GRAPH", fmt.Sprintf("Accepted block %s at %s fitness=%d conflicts=%d",
		id.ShortString(), h.Slot, ab.fitness, len(conflicts)))

	g.publishBlockcliqueIfChanged()
	g.flushFinalized()
	g.wake(id)
	return nil
}

// descendants walks the child closure of one id, excluding the id itself.
func (g *BlockGraph) descendants(id block.BlockId) map[block.BlockId]struct{} {
	out := make(map[block.BlockId]struct{})
	stack := []block.BlockId{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ab, ok := g.blocks[cur]
		if !ok {
			continue
		}
		for c := range ab.children {
			if _, seen := out[c]; !seen {
				out[c] = struct{}{}
				stack = append(stack, c)
			}
		}
	}
	return out
}

// ancestors walks the parent closure of the given ids.
func (g *BlockGraph) ancestors(parents []block.BlockId) map[block.BlockId]struct{} {
	out := make(map[block.BlockId]struct{})
	stack := append([]block.BlockId(nil), parents...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := out[id]; seen {
			continue
		}
		ab, ok := g.blocks[id]
		if !ok {
			continue
		}
		out[id] = struct{}{}
		for p := range ab.parents {
			stack = append(stack, p)
		}
	}
	return out
}

// discardUnlinked records a rejection for a block that was never linked into
// the graph.
func (g *BlockGraph) discardUnlinked(id block.BlockId, reason DiscardReason, why string) {
	g.rejected.Add(id, reason)
	metrics.DiscardedTotal.WithLabelValues(reason.String()).Inc()
	logx.Warn("GRAPH", fmt.Sprintf("Discarded block %s (%s): %s", id.ShortString(), reason, why))
	g.wake(id)
}

// discardActive unlinks an active block. The caller is responsible for
// removing it from the clique set afterwards.
func (g *BlockGraph) discardActive(ab *activeBlock, reason DiscardReason, why string) {
	ab.status = DISCARDED
	g.activeIndex.Delete(slotEntry{slot: ab.slot(), id: ab.id})
	g.activeCount--
	for p := range ab.parents {
		if pab, ok := g.blocks[p]; ok {
			delete(pab.children, ab.id)
		}
	}
	for c := range ab.incomp {
		if cab, ok := g.blocks[c]; ok {
			delete(cab.incomp, ab.id)
		}
	}
	delete(g.blocks, ab.id)
	g.rejected.Add(ab.id, reason)
	if g.deps.Store != nil {
		if err := g.deps.Store.Delete(ab.id); err != nil {
			logx.Error("GRAPH", "Failed to delete discarded block: ", err)
		}
	}
	metrics.DiscardedTotal.WithLabelValues(reason.String()).Inc()
	logx.Info("GRAPH", fmt.Sprintf("Discarded block %s at %s (%s): %s",
		ab.id.ShortString(), ab.slot(), reason, why))
	g.wake(ab.id)
}

// wake queues the pending blocks unblocked by the arrival or discard of id.
// They are re-evaluated once, FIFO, when the current pass completes.
func (g *BlockGraph) wake(id block.BlockId) {
	g.resubmit = append(g.resubmit, g.pending.resolve(id)...)
}

func (g *BlockGraph) drainResubmit() {
	if g.draining {
		return
	}
	g.draining = true
	for len(g.resubmit) > 0 {
		p := g.resubmit[0]
		g.resubmit = g.resubmit[1:]
		if _, err := g.process(p.id, p.blk); err != nil {
			logx.Debug("GRAPH", fmt.Sprintf("Re-evaluated block %s rejected: %v", p.id.ShortString(), err))
		}
	}
	g.draining = false
}

// Tick advances the clock-driven parts of the graph: slot-queue promotion,
// pending deadlines, and missing-parent requests.
func (g *BlockGraph) Tick(now time.Time) {
	horizon := g.slotHorizon()
	var promote []*block.Block
	g.waitingIndex.Ascend(func(e slotEntry) bool {
		if e.slot.Period > horizon {
			return false
		}
		promote = append(promote, g.waiting[e.id])
		return true
	})
	for _, b := range promote {
		id := b.Header.ComputeId()
		delete(g.waiting, id)
		g.waitingIndex.Delete(slotEntry{slot: b.Header.Slot, id: id})
	}
	for _, b := range promote {
		if _, err := g.process(b.Header.ComputeId(), b); err != nil {
			logx.Debug("GRAPH", "Promoted block rejected: ", err)
		}
	}

	for _, p := range g.pending.expire(now) {
		g.rejected.Add(p.id, DISCARD_STALE)
		metrics.DiscardedTotal.WithLabelValues(DISCARD_STALE.String()).Inc()
		logx.Warn("GRAPH", fmt.Sprintf("Pending block %s expired waiting for parents", p.id.ShortString()))
		g.wake(p.id)
	}

	if ids := g.pending.missingToRequest(now); len(ids) > 0 && g.deps.Protocol != nil {
		g.deps.Protocol.RequestMissing(ids)
	}

	g.drainResubmit()
	g.publishBlockcliqueIfChanged()
	g.flushFinalized()
	g.updateMetrics()
}

// GetStatus reports the lifecycle state of any id the engine remembers.
func (g *BlockGraph) GetStatus(id block.BlockId) Status {
	if ab, ok := g.blocks[id]; ok {
		return Status{State: ab.status}
	}
	if g.pending.contains(id) {
		return Status{State: WAITING_FOR_PARENTS}
	}
	if _, ok := g.waiting[id]; ok {
		return Status{State: WAITING_FOR_SLOT}
	}
	if reason, ok := g.rejected.Get(id); ok {
		return Status{State: DISCARDED, Reason: reason}
	}
	return Status{State: UNKNOWN}
}

func (g *BlockGraph) updateMetrics() {
	metrics.ActiveBlocks.Set(float64(g.activeCount))
	metrics.PendingBlocks.Set(float64(g.pending.len()))
	metrics.WaitingForSlotBlocks.Set(float64(len(g.waiting)))
	metrics.CliqueCount.Set(float64(len(g.cliques)))
	bc := g.cliques[g.blockcliqueIdx]
	metrics.BlockcliqueFitness.Set(float64(bc.fitness))
	metrics.BlockcliqueSize.Set(float64(len(bc.members)))
}
