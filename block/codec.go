package block

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"weave/slot"
)

// Deterministic binary codec for blocks. Fixed-width big-endian integers,
// count-prefixed repeated fields. Round-trips byte-exact; used by the
// persistent store and the bootstrap snapshot.

var ErrCorruptEncoding = errors.New("corrupt block encoding")

func appendUint64(buf []byte, v uint64) []byte {
	var u [8]byte
	binary.BigEndian.PutUint64(u[:], v)
	return append(buf, u[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var u [4]byte
	binary.BigEndian.PutUint32(u[:], v)
	return append(buf, u[:]...)
}

func (b *Block) Marshal() []byte {
	h := &b.Header
	buf := make([]byte, 0, 256)
	buf = appendUint64(buf, h.Slot.Period)
	buf = append(buf, h.Slot.Thread)
	buf = append(buf, uint8(len(h.Parents)))
	for _, p := range h.Parents {
		buf = append(buf, p[:]...)
	}
	buf = append(buf, h.OperationRoot[:]...)
	buf = appendUint32(buf, uint32(len(h.Endorsements)))
	for i := range h.Endorsements {
		e := &h.Endorsements[i]
		buf = appendUint64(buf, e.Slot.Period)
		buf = append(buf, e.Slot.Thread)
		buf = append(buf, e.EndorsedBlock[:]...)
		buf = append(buf, e.Endorser...)
		buf = append(buf, e.Signature...)
	}
	buf = append(buf, h.Creator...)
	buf = append(buf, h.Signature...)
	buf = appendUint32(buf, uint32(len(b.Body.Operations)))
	for _, op := range b.Body.Operations {
		buf = append(buf, op[:]...)
	}
	return buf
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, ErrCorruptEncoding
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) hash32() ([32]byte, error) {
	var out [32]byte
	b, err := r.take(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func Unmarshal(data []byte) (*Block, error) {
	r := &reader{buf: data}
	var b Block
	h := &b.Header

	period, err := r.uint64()
	if err != nil {
		return nil, err
	}
	thread, err := r.byte()
	if err != nil {
		return nil, err
	}
	h.Slot = slot.New(period, thread)

	parentCount, err := r.byte()
	if err != nil {
		return nil, err
	}
	h.Parents = make([]BlockId, parentCount)
	for i := range h.Parents {
		hash, err := r.hash32()
		if err != nil {
			return nil, err
		}
		h.Parents[i] = BlockId(hash)
	}

	if h.OperationRoot, err = r.hash32(); err != nil {
		return nil, err
	}

	endoCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	h.Endorsements = make([]Endorsement, 0, endoCount)
	for i := uint32(0); i < endoCount; i++ {
		var e Endorsement
		p, err := r.uint64()
		if err != nil {
			return nil, err
		}
		t, err := r.byte()
		if err != nil {
			return nil, err
		}
		e.Slot = slot.New(p, t)
		endorsed, err := r.hash32()
		if err != nil {
			return nil, err
		}
		e.EndorsedBlock = BlockId(endorsed)
		pub, err := r.take(ed25519.PublicKeySize)
		if err != nil {
			return nil, err
		}
		e.Endorser = append(ed25519.PublicKey(nil), pub...)
		sig, err := r.take(ed25519.SignatureSize)
		if err != nil {
			return nil, err
		}
		e.Signature = append([]byte(nil), sig...)
		h.Endorsements = append(h.Endorsements, e)
	}

	creator, err := r.take(ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	h.Creator = append(ed25519.PublicKey(nil), creator...)
	sig, err := r.take(ed25519.SignatureSize)
	if err != nil {
		return nil, err
	}
	h.Signature = append([]byte(nil), sig...)

	opCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	b.Body.Operations = make([]OperationId, 0, opCount)
	for i := uint32(0); i < opCount; i++ {
		op, err := r.hash32()
		if err != nil {
			return nil, err
		}
		b.Body.Operations = append(b.Body.Operations, OperationId(op))
	}

	if r.off != len(data) {
		return nil, ErrCorruptEncoding
	}
	return &b, nil
}
