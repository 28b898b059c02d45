package block

import (
	"crypto/ed25519"
	"encoding/binary"

	"weave/slot"
)

// Endorsement is a producer-side vote that strengthens the fitness of the
// block including it. It endorses the block occupying the previous slot on
// the endorsement's thread.
type Endorsement struct {
	Slot          slot.Slot
	EndorsedBlock BlockId
	Endorser      ed25519.PublicKey
	Signature     []byte
}

func (e *Endorsement) signingBytes() []byte {
	buf := make([]byte, 0, 8+1+32+ed25519.PublicKeySize)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], e.Slot.Period)
	buf = append(buf, u64[:]...)
	buf = append(buf, e.Slot.Thread)
	buf = append(buf, e.EndorsedBlock[:]...)
	buf = append(buf, e.Endorser...)
	return buf
}

func (e *Endorsement) Sign(privKey ed25519.PrivateKey) {
	e.Endorser = privKey.Public().(ed25519.PublicKey)
	e.Signature = ed25519.Sign(privKey, e.signingBytes())
}

func (e *Endorsement) VerifySignature() bool {
	if len(e.Endorser) != ed25519.PublicKeySize || len(e.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(e.Endorser, e.signingBytes(), e.Signature)
}
