package consensus

import (
	"time"

	"weave/block"
)

// pendingBlock is a structurally valid block buffered until its missing
// parents arrive or its deadline expires.
type pendingBlock struct {
	blk       *block.Block
	id        block.BlockId
	missing   map[block.BlockId]struct{}
	deadline  time.Time
	requestAt time.Time
	requested bool
	seq       uint64
}

// pendingBuffer keys buffered blocks by each missing parent id. Waiters are
// re-evaluated once per resolved parent, in FIFO arrival order.
type pendingBuffer struct {
	byId    map[block.BlockId]*pendingBlock
	waiters map[block.BlockId][]block.BlockId // missing parent -> arrival-ordered waiter ids
	nextSeq uint64
}

func newPendingBuffer() *pendingBuffer {
	return &pendingBuffer{
		byId:    make(map[block.BlockId]*pendingBlock),
		waiters: make(map[block.BlockId][]block.BlockId),
	}
}

func (pb *pendingBuffer) len() int {
	return len(pb.byId)
}

func (pb *pendingBuffer) contains(id block.BlockId) bool {
	_, ok := pb.byId[id]
	return ok
}

func (pb *pendingBuffer) add(id block.BlockId, blk *block.Block, missing []block.BlockId, now time.Time, deadline, grace time.Duration) {
	p := &pendingBlock{
		blk:       blk,
		id:        id,
		missing:   make(map[block.BlockId]struct{}, len(missing)),
		deadline:  now.Add(deadline),
		requestAt: now.Add(grace),
		seq:       pb.nextSeq,
	}
	pb.nextSeq++
	for _, m := range missing {
		p.missing[m] = struct{}{}
		pb.waiters[m] = append(pb.waiters[m], id)
	}
	pb.byId[id] = p
}

func (pb *pendingBuffer) remove(id block.BlockId) {
	p, ok := pb.byId[id]
	if !ok {
		return
	}
	delete(pb.byId, id)
	for m := range p.missing {
		ids := pb.waiters[m]
		for i, wid := range ids {
			if wid == id {
				pb.waiters[m] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(pb.waiters[m]) == 0 {
			delete(pb.waiters, m)
		}
	}
}

// resolve marks one missing parent as settled (accepted or discarded) and
// returns the blocks that have no missing parents left, FIFO.
func (pb *pendingBuffer) resolve(parent block.BlockId) []*pendingBlock {
	ids := pb.waiters[parent]
	if len(ids) == 0 {
		return nil
	}
	delete(pb.waiters, parent)

	var ready []*pendingBlock
	for _, id := range ids {
		p, ok := pb.byId[id]
		if !ok {
			continue
		}
		delete(p.missing, parent)
		if len(p.missing) == 0 {
			delete(pb.byId, id)
			ready = append(ready, p)
		}
	}
	return ready
}

// expire removes and returns every pending block past its deadline.
func (pb *pendingBuffer) expire(now time.Time) []*pendingBlock {
	var expired []*pendingBlock
	for _, p := range pb.byId {
		if now.After(p.deadline) {
			expired = append(expired, p)
		}
	}
	for _, p := range expired {
		pb.remove(p.id)
	}
	return expired
}

// missingToRequest returns the parent ids whose waiters have been pending
// past the grace period and were not requested from peers yet.
func (pb *pendingBuffer) missingToRequest(now time.Time) []block.BlockId {
	var out []block.BlockId
	seen := make(map[block.BlockId]struct{})
	for _, p := range pb.byId {
		if p.requested || now.Before(p.requestAt) {
			continue
		}
		p.requested = true
		for m := range p.missing {
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	return out
}
