package bootstrap

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/block"
	"weave/config"
	"weave/consensus"
	"weave/slot"
)

type fixture struct {
	cfg   *config.ConsensusConfig
	key   ed25519.PrivateKey
	gen   []block.BlockId
	graph *consensus.BlockGraph
	now   func() time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := config.DefaultConsensusConfig()
	cfg.ThreadCount = 2
	cfg.T0Ms = 16000
	cfg.GenesisTimestampMs = 0
	cfg.FinalityThreshold = 0

	now := func() time.Time { return time.UnixMilli(int64(cfg.T0Ms) * 500) }

	genesis := []*block.Block{block.Genesis(0, key), block.Genesis(1, key)}
	gen := []block.BlockId{genesis[0].Header.ComputeId(), genesis[1].Header.ComputeId()}
	g, err := consensus.NewBlockGraph(cfg, consensus.Deps{Now: now}, genesis)
	require.NoError(t, err)

	return &fixture{cfg: cfg, key: key, gen: gen, graph: g, now: now}
}

func (f *fixture) build(s slot.Slot, parents []block.BlockId) *block.Block {
	return block.Assemble(s, parents, block.Body{}, nil, f.key)
}

func (f *fixture) submit(t *testing.T, b *block.Block) block.BlockId {
	t.Helper()
	id, err := f.graph.Submit(b)
	require.NoError(t, err)
	return id
}

// grow extends the graph far enough that some blocks finalized and some are
// still active.
func (f *fixture) grow(t *testing.T) {
	b1 := f.submit(t, f.build(slot.New(1, 0), f.gen))
	b2 := f.submit(t, f.build(slot.New(1, 1), []block.BlockId{b1, f.gen[1]}))
	b3 := f.submit(t, f.build(slot.New(2, 0), []block.BlockId{b1, b2}))
	b4 := f.submit(t, f.build(slot.New(2, 1), []block.BlockId{b3, b2}))
	f.submit(t, f.build(slot.New(3, 0), []block.BlockId{b3, b4}))

	require.Equal(t, consensus.FINAL, f.graph.GetStatus(b1).State)
	require.Equal(t, consensus.ACTIVE, f.graph.GetStatus(b4).State)
}

func TestSnapshotCodecRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.grow(t)

	snap := Export(f.graph)
	got, err := Unmarshal(snap.Marshal())
	require.NoError(t, err)
	assert.Equal(t, snap.BlockcliqueFitness, got.BlockcliqueFitness)
	require.Len(t, got.FinalBlocks, len(snap.FinalBlocks))
	require.Len(t, got.ActiveBlocks, len(snap.ActiveBlocks))
	for i := range snap.FinalBlocks {
		assert.Equal(t, snap.FinalBlocks[i].Header.ComputeId(), got.FinalBlocks[i].Header.ComputeId())
	}
	for i := range snap.ActiveBlocks {
		assert.Equal(t, snap.ActiveBlocks[i].Header.ComputeId(), got.ActiveBlocks[i].Header.ComputeId())
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	f := newFixture(t)
	f.grow(t)
	enc := Export(f.graph).Marshal()

	_, err := Unmarshal(enc[:len(enc)-1])
	assert.Error(t, err)
	_, err = Unmarshal(append(enc, 0))
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
	_, err = Unmarshal(nil)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestImportRebuildsIdenticalState(t *testing.T) {
	f := newFixture(t)
	f.grow(t)
	snap := Export(f.graph)

	imported, err := Import(f.cfg, consensus.Deps{Now: f.now}, snap)
	require.NoError(t, err)

	assert.Equal(t, f.graph.Blockclique(), imported.Blockclique())
	assert.Equal(t, f.graph.BlockcliqueFitness(), imported.BlockcliqueFitness())
	assert.Equal(t, f.graph.CliqueCount(), imported.CliqueCount())
	assert.Equal(t, f.graph.LatestFinalSlots(), imported.LatestFinalSlots())
	assert.Equal(t, f.graph.ActiveCount(), imported.ActiveCount())

	for _, b := range snap.FinalBlocks {
		assert.Equal(t, consensus.FINAL, imported.GetStatus(b.Header.ComputeId()).State)
	}
	for _, b := range snap.ActiveBlocks {
		assert.Equal(t, consensus.ACTIVE, imported.GetStatus(b.Header.ComputeId()).State)
	}
}

func TestImportRejectsWrongFitness(t *testing.T) {
	f := newFixture(t)
	f.grow(t)
	snap := Export(f.graph)
	snap.BlockcliqueFitness++

	_, err := Import(f.cfg, consensus.Deps{Now: f.now}, snap)
	assert.ErrorIs(t, err, consensus.ErrInconsistent)
}

func TestImportRejectsMissingGenesis(t *testing.T) {
	f := newFixture(t)
	f.grow(t)
	snap := Export(f.graph)
	snap.FinalBlocks = snap.FinalBlocks[1:]

	_, err := Import(f.cfg, consensus.Deps{Now: f.now}, snap)
	assert.ErrorIs(t, err, consensus.ErrInconsistent)
}

func TestImportRejectsOutOfOrderFinals(t *testing.T) {
	f := newFixture(t)
	f.grow(t)
	snap := Export(f.graph)
	n := len(snap.FinalBlocks)
	require.GreaterOrEqual(t, n, 4)
	snap.FinalBlocks[n-1], snap.FinalBlocks[n-2] = snap.FinalBlocks[n-2], snap.FinalBlocks[n-1]

	_, err := Import(f.cfg, consensus.Deps{Now: f.now}, snap)
	assert.ErrorIs(t, err, consensus.ErrInconsistent)
}

func TestImportRejectsDanglingActive(t *testing.T) {
	f := newFixture(t)
	f.grow(t)
	snap := Export(f.graph)
	// drop the first active block: its child cannot replay to ACTIVE
	require.GreaterOrEqual(t, len(snap.ActiveBlocks), 2)
	snap.ActiveBlocks = snap.ActiveBlocks[1:]

	_, err := Import(f.cfg, consensus.Deps{Now: f.now}, snap)
	assert.ErrorIs(t, err, consensus.ErrInconsistent)
}
