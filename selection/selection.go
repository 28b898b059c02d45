package selection

import (
	"crypto/ed25519"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"weave/block"
	"weave/interfaces"
	"weave/slot"
)

// StakeSelector is a deterministic stake-table implementation of the
// selection oracle: the producer for a slot is drawn by hashing the slot
// coordinates against the cumulative stake distribution. Real deployments
// inject the staking collaborator's selector instead.
type StakeSelector struct {
	stakers []staker
	total   uint64
}

type staker struct {
	pub    string
	key    ed25519.PublicKey
	weight uint64
}

func NewStakeSelector() *StakeSelector {
	return &StakeSelector{}
}

// AddStaker registers a producer with its stake weight. Registration order
// is significant: selection walks the table in insertion order.
func (ss *StakeSelector) AddStaker(pub ed25519.PublicKey, weight uint64) {
	ss.stakers = append(ss.stakers, staker{pub: string(pub), key: pub, weight: weight})
	ss.total += weight
}

// DrawAt returns the designated producer for a slot.
func (ss *StakeSelector) DrawAt(s slot.Slot) ed25519.PublicKey {
	if ss.total == 0 {
		return nil
	}
	var seed [9]byte
	binary.BigEndian.PutUint64(seed[:8], s.Period)
	seed[8] = s.Thread
	h := blake2b.Sum256(seed[:])
	ticket := binary.BigEndian.Uint64(h[:8]) % ss.total
	var acc uint64
	for _, st := range ss.stakers {
		acc += st.weight
		if ticket < acc {
			return st.key
		}
	}
	return ss.stakers[len(ss.stakers)-1].key
}

func (ss *StakeSelector) IsEligible(s slot.Slot, creator ed25519.PublicKey) bool {
	drawn := ss.DrawAt(s)
	return drawn != nil && string(drawn) == string(creator)
}

func (ss *StakeSelector) Weight(creator ed25519.PublicKey) uint64 {
	for _, st := range ss.stakers {
		if st.pub == string(creator) {
			return st.weight
		}
	}
	return 0
}

// AnySelector accepts every producer with unit weight. Used by tests and by
// bootstrap replay, where eligibility was already checked upstream.
type AnySelector struct{}

func (AnySelector) IsEligible(slot.Slot, ed25519.PublicKey) bool { return true }
func (AnySelector) Weight(ed25519.PublicKey) uint64              { return 1 }

// DefaultFitness is the fixed fitness formula: one base point per block plus
// one per endorsement. Integer-only, monotonic in endorsement count.
func DefaultFitness(h *block.BlockHeader) uint64 {
	return 1 + uint64(len(h.Endorsements))
}

// WeightedFitness folds the producer weight from the selector into the base
// formula.
func WeightedFitness(sel interfaces.Selector) interfaces.FitnessFunc {
	return func(h *block.BlockHeader) uint64 {
		return DefaultFitness(h) + sel.Weight(h.Creator)
	}
}
