package block

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"weave/slot"
)

// BlockId is the blake2b-256 digest of the canonical header encoding. It is
// the graph's vertex key.
type BlockId [32]byte

func (id BlockId) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString returns the first 8 hex chars, for logs.
func (id BlockId) ShortString() string {
	return hex.EncodeToString(id[:4])
}

func (id BlockId) Less(other BlockId) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id BlockId) IsZero() bool {
	return id == BlockId{}
}

// OperationId identifies one operation contained in a block body.
type OperationId [32]byte

func (id OperationId) String() string {
	return hex.EncodeToString(id[:])
}

type BlockHeader struct {
	Slot          slot.Slot
	Parents       []BlockId // one per thread, empty for genesis
	OperationRoot [32]byte
	Endorsements  []Endorsement
	Creator       ed25519.PublicKey
	Signature     []byte
}

type Body struct {
	Operations []OperationId
}

type Block struct {
	Header BlockHeader
	Body   Body
}

// ComputeId hashes the unsigned header fields. The signature covers the id,
// so the id itself is signature-independent.
func (h *BlockHeader) ComputeId() BlockId {
	d, _ := blake2b.New256(nil)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h.Slot.Period)
	d.Write(buf)
	d.Write([]byte{h.Slot.Thread})
	d.Write([]byte{uint8(len(h.Parents))})
	for _, p := range h.Parents {
		d.Write(p[:])
	}
	d.Write(h.OperationRoot[:])
	binary.BigEndian.PutUint32(buf[:4], uint32(len(h.Endorsements)))
	d.Write(buf[:4])
	for i := range h.Endorsements {
		d.Write(h.Endorsements[i].signingBytes())
		d.Write(h.Endorsements[i].Signature)
	}
	d.Write(h.Creator)
	var id BlockId
	copy(id[:], d.Sum(nil))
	return id
}

func (h *BlockHeader) Sign(privKey ed25519.PrivateKey) {
	id := h.ComputeId()
	h.Signature = ed25519.Sign(privKey, id[:])
}

func (h *BlockHeader) VerifySignature() bool {
	if len(h.Creator) != ed25519.PublicKeySize || len(h.Signature) != ed25519.SignatureSize {
		return false
	}
	id := h.ComputeId()
	return ed25519.Verify(h.Creator, id[:], h.Signature)
}

// Assemble builds and signs a block over the given body.
func Assemble(s slot.Slot, parents []BlockId, body Body, endorsements []Endorsement, privKey ed25519.PrivateKey) *Block {
	h := BlockHeader{
		Slot:          s,
		Parents:       append([]BlockId(nil), parents...),
		OperationRoot: OperationRoot(body.Operations),
		Endorsements:  append([]Endorsement(nil), endorsements...),
		Creator:       privKey.Public().(ed25519.PublicKey),
	}
	h.Sign(privKey)
	return &Block{Header: h, Body: body}
}

// Genesis builds the per-thread genesis block. Genesis blocks have no parents
// and sit at period 0 of their thread.
func Genesis(thread uint8, privKey ed25519.PrivateKey) *Block {
	return Assemble(slot.New(0, thread), nil, Body{}, nil, privKey)
}
