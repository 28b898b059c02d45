package consensus

import (
	"sync"
	"time"

	"weave/block"
	"weave/exception"
	"weave/logx"
)

// Worker is the single writer that owns a BlockGraph. Blocks arrive through
// a bounded intake queue; everything else (queries, bootstrap export) runs
// as a closure inside the same loop, so no graph state is ever observed
// mid-update.
type Worker struct {
	graph   *BlockGraph
	intake  chan *block.Block
	cmds    chan func(*BlockGraph)
	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func NewWorker(g *BlockGraph) *Worker {
	return &Worker{
		graph:  g,
		intake: make(chan *block.Block, g.cfg.IntakeQueueSize),
		cmds:   make(chan func(*BlockGraph)),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (w *Worker) Start() {
	exception.SafeGo("consensus-worker", w.run)
	logx.Info("WORKER", "Consensus worker started")
}

func (w *Worker) run() {
	defer close(w.done)
	ticker := time.NewTicker(time.Duration(w.graph.cfg.TickIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		select {
		case <-w.stop:
			return
		case b := <-w.intake:
			if _, err := w.graph.Submit(b); err != nil {
				logx.Debug("WORKER", "Block rejected: ", err)
			}
		case fn := <-w.cmds:
			fn(w.graph)
		case <-ticker.C:
			w.graph.Tick(w.graph.deps.Now())
		}
	}
}

// Stop shuts intake down, lets the in-flight block finish its pass through
// all stages, and returns once the loop exited.
func (w *Worker) Stop() {
	w.stopped.Do(func() {
		close(w.stop)
	})
	<-w.done
	logx.Info("WORKER", "Consensus worker stopped")
}

// Submit enqueues a block for processing. A full queue is reported to the
// caller so the peer layer can re-request the block later; arrivals are
// never reordered.
func (w *Worker) Submit(b *block.Block) error {
	select {
	case <-w.stop:
		return ErrShutdown
	default:
	}
	select {
	case w.intake <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait runs a block through the pipeline synchronously and returns
// the graph's verdict. Used by local block production and tests.
func (w *Worker) SubmitAndWait(b *block.Block) (block.BlockId, error) {
	var id block.BlockId
	var err error
	if werr := w.withGraph(func(g *BlockGraph) {
		id, err = g.Submit(b)
	}); werr != nil {
		return b.Header.ComputeId(), werr
	}
	return id, err
}

func (w *Worker) withGraph(fn func(*BlockGraph)) error {
	reply := make(chan struct{})
	wrapped := func(g *BlockGraph) {
		fn(g)
		close(reply)
	}
	select {
	case <-w.stop:
		return ErrShutdown
	case w.cmds <- wrapped:
	}
	select {
	case <-w.done:
		return ErrShutdown
	case <-reply:
		return nil
	}
}

// WithGraph runs fn inside the writer loop against a quiescent graph.
func (w *Worker) WithGraph(fn func(*BlockGraph)) error {
	return w.withGraph(fn)
}

// GetStatus returns the point-in-time lifecycle state of a block id.
func (w *Worker) GetStatus(id block.BlockId) Status {
	out := Status{State: UNKNOWN}
	_ = w.withGraph(func(g *BlockGraph) {
		out = g.GetStatus(id)
	})
	return out
}

// GetBlockclique returns the canonical chain snapshot in slot order.
func (w *Worker) GetBlockclique() []block.BlockId {
	var out []block.BlockId
	_ = w.withGraph(func(g *BlockGraph) {
		out = g.Blockclique()
	})
	return out
}

// BestParents returns the per-thread tips a block factory should build on.
func (w *Worker) BestParents() []block.BlockId {
	var out []block.BlockId
	_ = w.withGraph(func(g *BlockGraph) {
		out = g.BestParents()
	})
	return out
}
