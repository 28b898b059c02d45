package interfaces

import (
	"crypto/ed25519"

	"weave/block"
	"weave/slot"
)

// Selector is the proof-of-stake producer-selection oracle. The engine only
// consumes eligibility decisions; how they are computed is the staking
// collaborator's business.
type Selector interface {
	// IsEligible reports whether creator is the designated producer for slot
	IsEligible(s slot.Slot, creator ed25519.PublicKey) bool
	// Weight returns the producer weight used by the fitness formula
	Weight(creator ed25519.PublicKey) uint64
}

// FitnessFunc assigns the deterministic weight used to rank competing
// cliques. Must be monotonic in endorsement count, integer-only.
type FitnessFunc func(h *block.BlockHeader) uint64
