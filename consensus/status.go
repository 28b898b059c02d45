package consensus

// BlockStatus is the closed set of graph-side block states. Transitions:
// WAITING_FOR_SLOT/WAITING_FOR_PARENTS -> ACTIVE -> FINAL or DISCARDED,
// both terminal.
type BlockStatus int

const (
	UNKNOWN BlockStatus = iota
	WAITING_FOR_PARENTS
	WAITING_FOR_SLOT
	ACTIVE
	FINAL
	DISCARDED
)

func (s BlockStatus) String() string {
	switch s {
	case WAITING_FOR_PARENTS:
		return "waiting_for_parents"
	case WAITING_FOR_SLOT:
		return "waiting_for_slot"
	case ACTIVE:
		return "active"
	case FINAL:
		return "final"
	case DISCARDED:
		return "discarded"
	default:
		return "unknown"
	}
}

// DiscardReason is attached once when a block is discarded and never changes.
type DiscardReason int

const (
	DISCARD_INVALID DiscardReason = iota
	DISCARD_STALE
	DISCARD_TOO_OLD
	DISCARD_ALREADY_FINAL
)

func (r DiscardReason) String() string {
	switch r {
	case DISCARD_INVALID:
		return "invalid"
	case DISCARD_STALE:
		return "stale"
	case DISCARD_TOO_OLD:
		return "too_old"
	case DISCARD_ALREADY_FINAL:
		return "already_final"
	default:
		return "unknown"
	}
}

// Status is the read-only view served to other components.
type Status struct {
	State  BlockStatus
	Reason DiscardReason // meaningful only when State == DISCARDED
}
