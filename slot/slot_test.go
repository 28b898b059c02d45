package slot

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotOrdering(t *testing.T) {
	assert.Equal(t, 0, New(3, 1).Cmp(New(3, 1)))
	assert.True(t, New(3, 1).Before(New(4, 0)))
	assert.True(t, New(3, 1).Before(New(3, 2)))
	assert.True(t, New(4, 0).After(New(3, 7)))
	assert.False(t, New(3, 1).Before(New(3, 1)))
}

func TestSlotNext(t *testing.T) {
	s, err := New(3, 0).Next(2)
	require.NoError(t, err)
	assert.Equal(t, New(3, 1), s)

	s, err = New(3, 1).Next(2)
	require.NoError(t, err)
	assert.Equal(t, New(4, 0), s)

	_, err = New(3, 2).Next(2)
	assert.ErrorIs(t, err, ErrThreadOutOfRange)

	_, err = New(^uint64(0), 1).Next(2)
	assert.ErrorIs(t, err, ErrTimeOverflow)
}

func TestSlotTimestamp(t *testing.T) {
	genesis := time.UnixMilli(1_000_000)
	t0 := 16 * time.Second

	ts, err := Timestamp(2, t0, genesis, New(0, 0))
	require.NoError(t, err)
	assert.Equal(t, genesis, ts)

	ts, err = Timestamp(2, t0, genesis, New(0, 1))
	require.NoError(t, err)
	assert.Equal(t, genesis.Add(8*time.Second), ts)

	ts, err = Timestamp(2, t0, genesis, New(3, 1))
	require.NoError(t, err)
	assert.Equal(t, genesis.Add(3*t0+8*time.Second), ts)

	_, err = Timestamp(2, t0, genesis, New(0, 2))
	assert.ErrorIs(t, err, ErrThreadOutOfRange)
}

func TestSlotTimestampOverflow(t *testing.T) {
	genesis := time.UnixMilli(0)
	t0 := 16 * time.Second

	// the period shift is signed 64-bit math: periods past MaxInt64/t0
	// overflow even though they fit the unsigned bound
	limit := uint64(math.MaxInt64) / uint64(t0)
	_, err := Timestamp(2, t0, genesis, New(limit, 0))
	require.NoError(t, err)

	_, err = Timestamp(2, t0, genesis, New(limit+1, 0))
	assert.ErrorIs(t, err, ErrTimeOverflow)

	_, err = Timestamp(2, t0, genesis, New(^uint64(0), 0))
	assert.ErrorIs(t, err, ErrTimeOverflow)
}

func TestLatestAt(t *testing.T) {
	genesis := time.UnixMilli(0)
	t0 := 16 * time.Second

	_, ok := LatestAt(2, t0, genesis, genesis.Add(-time.Second))
	assert.False(t, ok)

	s, ok := LatestAt(2, t0, genesis, genesis)
	require.True(t, ok)
	assert.Equal(t, New(0, 0), s)

	s, ok = LatestAt(2, t0, genesis, genesis.Add(8*time.Second))
	require.True(t, ok)
	assert.Equal(t, New(0, 1), s)

	// one tick before the next slot still maps to the previous one
	s, ok = LatestAt(2, t0, genesis, genesis.Add(8*time.Second-time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, New(0, 0), s)

	s, ok = LatestAt(2, t0, genesis, genesis.Add(5*t0+12*time.Second))
	require.True(t, ok)
	assert.Equal(t, New(5, 1), s)
}

func TestTimestampLatestAtRoundTrip(t *testing.T) {
	genesis := time.UnixMilli(42_000)
	t0 := 32 * time.Second
	for period := uint64(0); period < 4; period++ {
		for thread := uint8(0); thread < 4; thread++ {
			s := New(period, thread)
			ts, err := Timestamp(4, t0, genesis, s)
			require.NoError(t, err)
			got, ok := LatestAt(4, t0, genesis, ts)
			require.True(t, ok)
			assert.Equal(t, s, got)
		}
	}
}
