package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/block"
	"weave/events"
	"weave/slot"
)

func drainFinalized(ch chan events.FinalizedEvent) []block.BlockId {
	var out []block.BlockId
	for len(ch) > 0 {
		out = append(out, (<-ch).Id)
	}
	return out
}

func TestLinearChainFinality(t *testing.T) {
	cfg := testConfig(2)
	cfg.FinalityThreshold = 0
	e := newTestEnv(t, cfg)
	_, ch := e.g.deps.Notifier.SubscribeFinalized()

	b1 := e.submit(e.build(slot.New(1, 0), e.gen))
	b2 := e.submit(e.build(slot.New(1, 1), []block.BlockId{b1, e.gen[1]}))
	assert.Equal(t, ACTIVE, e.state(b1))

	// a younger thread-0 block in every clique makes b1 irreversible
	b3 := e.submit(e.build(slot.New(2, 0), []block.BlockId{b1, b2}))
	assert.Equal(t, FINAL, e.state(b1))
	assert.Equal(t, ACTIVE, e.state(b2))
	// thread 1 has not advanced: the notification is held back
	assert.Empty(t, drainFinalized(ch))

	b4 := e.submit(e.build(slot.New(2, 1), []block.BlockId{b3, b2}))
	assert.Equal(t, FINAL, e.state(b2))
	assert.Equal(t, []block.BlockId{b1}, drainFinalized(ch))

	b5 := e.submit(e.build(slot.New(3, 0), []block.BlockId{b3, b4}))
	assert.Equal(t, FINAL, e.state(b3))
	assert.Equal(t, []block.BlockId{b2}, drainFinalized(ch))

	assert.Equal(t, ACTIVE, e.state(b4))
	assert.Equal(t, ACTIVE, e.state(b5))
	assert.Equal(t, []slot.Slot{slot.New(2, 0), slot.New(1, 1)}, e.g.LatestFinalSlots())
}

func TestFinalityPromotesActiveAncestors(t *testing.T) {
	cfg := testConfig(2)
	cfg.FinalityThreshold = 0
	e := newTestEnv(t, cfg)
	_, ch := e.g.deps.Notifier.SubscribeFinalized()

	b1 := e.submit(e.build(slot.New(1, 0), e.gen))
	b2 := e.submit(e.build(slot.New(1, 1), []block.BlockId{b1, e.gen[1]}))

	// b2 meets the finality rule before b1 does; b1 is promoted alongside
	// because b2 depends on it
	e.submit(e.build(slot.New(2, 1), []block.BlockId{b1, b2}))
	assert.Equal(t, FINAL, e.state(b1))
	assert.Equal(t, FINAL, e.state(b2))
	assert.Equal(t, []block.BlockId{b1}, drainFinalized(ch))
}

func TestStaleBranchDiscardedBeforeFinality(t *testing.T) {
	cfg := testConfig(2)
	cfg.FinalityThreshold = 2
	e := newTestEnv(t, cfg)

	a := e.submit(e.build(slot.New(1, 0), e.gen, 1))
	rival := e.submit(e.build(slot.New(1, 0), e.gen, 2))

	c1 := e.submit(e.build(slot.New(2, 0), []block.BlockId{a, e.gen[1]}))
	c2 := e.submit(e.build(slot.New(3, 0), []block.BlockId{c1, e.gen[1]}))

	// gap of 2 equals the threshold: the rival branch is still viable, so
	// nothing that conflicts with it may finalize
	assert.Equal(t, ACTIVE, e.state(a))
	assert.Equal(t, ACTIVE, e.state(rival))

	c3 := e.submit(e.build(slot.New(4, 0), []block.BlockId{c2, e.gen[1]}))

	st := e.g.GetStatus(rival)
	assert.Equal(t, DISCARDED, st.State)
	assert.Equal(t, DISCARD_STALE, st.Reason)
	assert.Equal(t, FINAL, e.state(a))
	assert.Equal(t, FINAL, e.state(c1))
	assert.Equal(t, FINAL, e.state(c2))
	assert.Equal(t, ACTIVE, e.state(c3))
	assert.Equal(t, 1, e.g.CliqueCount())
}

func TestFinalityDiscardsSameSlotLosers(t *testing.T) {
	cfg := testConfig(2)
	cfg.FinalityThreshold = 0
	e := newTestEnv(t, cfg)

	a := e.submit(e.build(slot.New(1, 0), e.gen, 1))
	rival := e.submit(e.build(slot.New(1, 0), e.gen, 2))
	require.Equal(t, 2, e.g.CliqueCount())

	// extending a makes its clique strictly fitter, the rival clique lags by
	// more than the zero threshold and a finalizes
	e.submit(e.build(slot.New(2, 0), []block.BlockId{a, e.gen[1]}))
	assert.Equal(t, FINAL, e.state(a))

	st := e.g.GetStatus(rival)
	assert.Equal(t, DISCARDED, st.State)
}

func TestFinalFrontierMonotonic(t *testing.T) {
	cfg := testConfig(2)
	cfg.FinalityThreshold = 0
	e := newTestEnv(t, cfg)

	prev := e.g.LatestFinalSlots()
	parents := e.gen
	for period := uint64(1); period <= 5; period++ {
		b0 := e.submit(e.build(slot.New(period, 0), parents))
		b1 := e.submit(e.build(slot.New(period, 1), []block.BlockId{b0, parents[1]}))
		parents = []block.BlockId{b0, b1}

		cur := e.g.LatestFinalSlots()
		for th := range cur {
			assert.False(t, cur[th].Before(prev[th]))
		}
		prev = cur
	}
	assert.True(t, prev[0].After(slot.New(0, 0)))
	assert.True(t, prev[1].After(slot.New(0, 1)))
}
