package block

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/slot"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func opId(b byte) OperationId {
	var id OperationId
	id[0] = b
	return id
}

func TestComputeIdDeterministic(t *testing.T) {
	priv := testKey(t)
	parents := []BlockId{{1}, {2}}
	b1 := Assemble(slot.New(3, 1), parents, Body{Operations: []OperationId{opId(9)}}, nil, priv)
	b2 := Assemble(slot.New(3, 1), parents, Body{Operations: []OperationId{opId(9)}}, nil, priv)
	assert.Equal(t, b1.Header.ComputeId(), b2.Header.ComputeId())

	b3 := Assemble(slot.New(3, 0), parents, Body{Operations: []OperationId{opId(9)}}, nil, priv)
	assert.NotEqual(t, b1.Header.ComputeId(), b3.Header.ComputeId())

	b4 := Assemble(slot.New(3, 1), []BlockId{{1}, {3}}, Body{Operations: []OperationId{opId(9)}}, nil, priv)
	assert.NotEqual(t, b1.Header.ComputeId(), b4.Header.ComputeId())
}

func TestIdIgnoresSignature(t *testing.T) {
	priv := testKey(t)
	b := Assemble(slot.New(1, 0), []BlockId{{1}, {2}}, Body{}, nil, priv)
	id := b.Header.ComputeId()
	b.Header.Signature[0] ^= 0xff
	assert.Equal(t, id, b.Header.ComputeId())
}

func TestSignVerify(t *testing.T) {
	priv := testKey(t)
	b := Assemble(slot.New(2, 1), []BlockId{{1}, {2}}, Body{}, nil, priv)
	assert.True(t, b.Header.VerifySignature())

	b.Header.Signature[10] ^= 0x01
	assert.False(t, b.Header.VerifySignature())

	other := testKey(t)
	b.Header.Sign(priv)
	b.Header.Creator = other.Public().(ed25519.PublicKey)
	assert.False(t, b.Header.VerifySignature())
}

func TestEndorsementSignVerify(t *testing.T) {
	priv := testKey(t)
	e := Endorsement{Slot: slot.New(4, 0), EndorsedBlock: BlockId{7}}
	e.Sign(priv)
	assert.True(t, e.VerifySignature())

	e.EndorsedBlock[0] = 8
	assert.False(t, e.VerifySignature())
}

func TestOperationRoot(t *testing.T) {
	assert.Equal(t, [32]byte{}, OperationRoot(nil))

	one := OperationRoot([]OperationId{opId(1)})
	assert.NotEqual(t, [32]byte{}, one)

	// order matters
	ab := OperationRoot([]OperationId{opId(1), opId(2)})
	ba := OperationRoot([]OperationId{opId(2), opId(1)})
	assert.NotEqual(t, ab, ba)

	// odd count duplicates the tail rather than truncating
	three := OperationRoot([]OperationId{opId(1), opId(2), opId(3)})
	assert.NotEqual(t, ab, three)
	assert.Equal(t, three, OperationRoot([]OperationId{opId(1), opId(2), opId(3)}))
}

func TestGenesis(t *testing.T) {
	priv := testKey(t)
	g := Genesis(3, priv)
	assert.Equal(t, slot.New(0, 3), g.Header.Slot)
	assert.Empty(t, g.Header.Parents)
	assert.True(t, g.Header.VerifySignature())
}

func TestCodecRoundTrip(t *testing.T) {
	priv := testKey(t)
	endorser := testKey(t)
	parents := []BlockId{{0xaa}, {0xbb}}
	e := Endorsement{Slot: slot.New(4, 1), EndorsedBlock: parents[1]}
	e.Sign(endorser)
	b := Assemble(slot.New(5, 1), parents,
		Body{Operations: []OperationId{opId(1), opId(2), opId(3)}},
		[]Endorsement{e}, priv)

	enc := b.Marshal()
	got, err := Unmarshal(enc)
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.Equal(t, b.Header.ComputeId(), got.Header.ComputeId())
	assert.True(t, got.Header.VerifySignature())
	assert.Equal(t, enc, got.Marshal())
}

func TestUnmarshalCorrupt(t *testing.T) {
	priv := testKey(t)
	b := Assemble(slot.New(1, 0), []BlockId{{1}, {2}}, Body{}, nil, priv)
	enc := b.Marshal()

	_, err := Unmarshal(enc[:len(enc)-3])
	assert.ErrorIs(t, err, ErrCorruptEncoding)

	_, err = Unmarshal(append(enc, 0x00))
	assert.ErrorIs(t, err, ErrCorruptEncoding)

	_, err = Unmarshal(nil)
	assert.ErrorIs(t, err, ErrCorruptEncoding)
}
