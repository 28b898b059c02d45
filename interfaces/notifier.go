package interfaces

import "weave/block"

// ProtocolNotifier is the outbound surface toward the network collaborator.
type ProtocolNotifier interface {
	// RequestMissing asks peers for block headers the graph is waiting on
	RequestMissing(ids []block.BlockId)
	// PenalizeOrigin signals that a received block failed semantic checks
	PenalizeOrigin(id block.BlockId, reason string)
}

// FinalizedListener receives finalized-block notifications in strict slot
// order, exactly once per block. Both Execution and Pool subscribe.
type FinalizedListener interface {
	OnFinalized(header *block.BlockHeader, operations []block.OperationId)
}

// PoolNotifier additionally learns about blockclique changes so operations
// outside the canonical chain become available for re-inclusion.
type PoolNotifier interface {
	FinalizedListener
	OnBlockcliqueChanged(members []block.BlockId)
}
