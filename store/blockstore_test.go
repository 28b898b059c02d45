package store

import (
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/block"
	"weave/slot"
)

func openTestStore(t *testing.T) *BlockStore {
	t.Helper()
	bs, err := Open(filepath.Join(t.TempDir(), "blocks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return bs
}

func testBlock(t *testing.T, period uint64) *block.Block {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return block.Assemble(slot.New(period, 0), []block.BlockId{{1}, {2}}, block.Body{}, nil, priv)
}

func TestPutGetRoundTrip(t *testing.T) {
	bs := openTestStore(t)
	b := testBlock(t, 1)
	id := b.Header.ComputeId()

	require.NoError(t, bs.Put(b))
	got, err := bs.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.Header.ComputeId())
	assert.True(t, got.Header.VerifySignature())
}

func TestGetUnknownReturnsNil(t *testing.T) {
	bs := openTestStore(t)
	got, err := bs.Get(block.BlockId{9})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHasAndDelete(t *testing.T) {
	bs := openTestStore(t)
	b := testBlock(t, 1)
	id := b.Header.ComputeId()

	ok, err := bs.Has(id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bs.Put(b))
	ok, err = bs.Has(id)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, bs.Delete(id))
	ok, err = bs.Has(id)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting an absent id is a no-op
	require.NoError(t, bs.Delete(id))
}

func TestCount(t *testing.T) {
	bs := openTestStore(t)
	n, err := bs.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, bs.Put(testBlock(t, i)))
	}
	n, err = bs.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPutOverwriteIdempotent(t *testing.T) {
	bs := openTestStore(t)
	b := testBlock(t, 1)
	require.NoError(t, bs.Put(b))
	require.NoError(t, bs.Put(b))
	n, err := bs.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
