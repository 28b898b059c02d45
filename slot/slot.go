package slot

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrThreadOutOfRange = errors.New("thread out of range")
	ErrTimeOverflow     = errors.New("slot time overflow")
)

// Slot is one block-production opportunity: a period counter shared by all
// threads plus the thread index inside that period.
type Slot struct {
	Period uint64 `yaml:"period"`
	Thread uint8  `yaml:"thread"`
}

func New(period uint64, thread uint8) Slot {
	return Slot{Period: period, Thread: thread}
}

// Cmp gives the total order over slots: period first, then thread.
func (s Slot) Cmp(other Slot) int {
	if s.Period != other.Period {
		if s.Period < other.Period {
			return -1
		}
		return 1
	}
	if s.Thread != other.Thread {
		if s.Thread < other.Thread {
			return -1
		}
		return 1
	}
	return 0
}

func (s Slot) Before(other Slot) bool {
	return s.Cmp(other) < 0
}

func (s Slot) After(other Slot) bool {
	return s.Cmp(other) > 0
}

// Next returns the slot immediately following s given the thread count.
func (s Slot) Next(threadCount uint8) (Slot, error) {
	if s.Thread >= threadCount {
		return Slot{}, ErrThreadOutOfRange
	}
	if s.Thread == threadCount-1 {
		if s.Period == ^uint64(0) {
			return Slot{}, ErrTimeOverflow
		}
		return Slot{Period: s.Period + 1, Thread: 0}, nil
	}
	return Slot{Period: s.Period, Thread: s.Thread + 1}, nil
}

func (s Slot) String() string {
	return fmt.Sprintf("(%d,%d)", s.Period, s.Thread)
}

// Timestamp returns the wall-clock time of a slot. Threads are evenly offset
// inside one period of length t0: genesis + t0/threadCount*thread + t0*period.
// Assumes threadCount >= 1 and t0 divisible by threadCount.
func Timestamp(threadCount uint8, t0 time.Duration, genesis time.Time, s Slot) (time.Time, error) {
	if s.Thread >= threadCount {
		return time.Time{}, ErrThreadOutOfRange
	}
	base := t0 / time.Duration(threadCount) * time.Duration(s.Thread)
	// the shift below is int64 arithmetic, so the bound is MaxInt64, not MaxUint64
	if s.Period > uint64(math.MaxInt64)/uint64(t0) {
		return time.Time{}, ErrTimeOverflow
	}
	shift := t0 * time.Duration(s.Period)
	return genesis.Add(base).Add(shift), nil
}

// LatestAt returns the latest slot whose timestamp is not after now, or false
// if now is before genesis.
func LatestAt(threadCount uint8, t0 time.Duration, genesis time.Time, now time.Time) (Slot, bool) {
	if now.Before(genesis) {
		return Slot{}, false
	}
	elapsed := now.Sub(genesis)
	period := uint64(elapsed / t0)
	thread := uint8((elapsed % t0) / (t0 / time.Duration(threadCount)))
	if thread >= threadCount {
		thread = threadCount - 1
	}
	return Slot{Period: period, Thread: thread}, true
}
