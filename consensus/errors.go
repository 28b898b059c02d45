package consensus

import "errors"

var (
	// ErrInvalidBlock covers structural and semantic rejections.
	ErrInvalidBlock = errors.New("invalid block")
	// ErrStaleBlock covers blocks behind the final frontier, expired
	// dependency waits and pruned branches.
	ErrStaleBlock = errors.New("stale block")
	// ErrQueueFull is returned when the bounded intake queue is full; the
	// peer layer must re-request the block later.
	ErrQueueFull = errors.New("intake queue full")
	// ErrShutdown is returned once the worker stopped accepting work.
	ErrShutdown = errors.New("consensus worker shut down")
	// ErrInconsistent signals a bootstrap snapshot that does not replay to
	// its declared state.
	ErrInconsistent = errors.New("inconsistent bootstrap graph")
)

func reasonError(r DiscardReason) error {
	if r == DISCARD_INVALID {
		return ErrInvalidBlock
	}
	return ErrStaleBlock
}
