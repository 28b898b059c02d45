package events

import "weave/block"

// FinalizedEvent carries one irreversibly finalized block: its header and
// the ids of the operations it contains. Delivered in strict slot order.
type FinalizedEvent struct {
	Id         block.BlockId
	Header     *block.BlockHeader
	Operations []block.OperationId
}

// BlockcliqueEvent announces that the canonical clique changed.
type BlockcliqueEvent struct {
	Members []block.BlockId
}
