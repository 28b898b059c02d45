package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weave/block"
)

func TestSubscribeAndPublishFinalized(t *testing.T) {
	n := NewNotifier(4)
	id1, ch1 := n.SubscribeFinalized()
	id2, ch2 := n.SubscribeFinalized()
	assert.NotEqual(t, id1, id2)

	ev := FinalizedEvent{Id: block.BlockId{7}}
	n.PublishFinalized(ev)

	assert.Equal(t, ev.Id, (<-ch1).Id)
	assert.Equal(t, ev.Id, (<-ch2).Id)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(4)
	id, ch := n.SubscribeFinalized()

	assert.True(t, n.Unsubscribe(id))
	_, open := <-ch
	assert.False(t, open)

	assert.False(t, n.Unsubscribe(id))
	assert.False(t, n.Unsubscribe(SubscriberID("nope")))
}

func TestPublishFinalizedBlocksWhenBacklogFull(t *testing.T) {
	n := NewNotifier(1)
	_, ch := n.SubscribeFinalized()
	n.PublishFinalized(FinalizedEvent{Id: block.BlockId{1}})

	done := make(chan struct{})
	go func() {
		n.PublishFinalized(FinalizedEvent{Id: block.BlockId{2}})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("publish should block while the backlog is full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, block.BlockId{1}, (<-ch).Id)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not resume after the backlog drained")
	}
	assert.Equal(t, block.BlockId{2}, (<-ch).Id)
}

func TestUnsubscribeWhilePublishBlocked(t *testing.T) {
	n := NewNotifier(1)
	id, ch := n.SubscribeFinalized()
	n.PublishFinalized(FinalizedEvent{Id: block.BlockId{1}})

	done := make(chan struct{})
	go func() {
		n.PublishFinalized(FinalizedEvent{Id: block.BlockId{2}})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("publish should block while the backlog is full")
	case <-time.After(50 * time.Millisecond):
	}

	// unsubscribing must release the blocked publisher, not crash it
	assert.True(t, n.Unsubscribe(id))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not return after unsubscribe")
	}

	// the queued event is still delivered, then the channel closes
	assert.Equal(t, block.BlockId{1}, (<-ch).Id)
	_, open := <-ch
	assert.False(t, open)
}

func TestPublishBlockcliqueDropsWhenFull(t *testing.T) {
	n := NewNotifier(1)
	_, ch := n.SubscribeBlockclique()

	n.PublishBlockclique(BlockcliqueEvent{Members: []block.BlockId{{1}}})
	// does not block; the second event is dropped
	n.PublishBlockclique(BlockcliqueEvent{Members: []block.BlockId{{2}}})

	ev := <-ch
	require.Len(t, ev.Members, 1)
	assert.Equal(t, block.BlockId{1}, ev.Members[0])
	assert.Empty(t, ch)
}

type recordingListener struct {
	mu   sync.Mutex
	seen []block.BlockId
}

func (r *recordingListener) OnFinalized(h *block.BlockHeader, ops []block.OperationId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, h.ComputeId())
}

func TestForwardFinalized(t *testing.T) {
	n := NewNotifier(4)
	l := &recordingListener{}
	id := n.ForwardFinalized(l)

	hdr := &block.BlockHeader{}
	n.PublishFinalized(FinalizedEvent{Id: hdr.ComputeId(), Header: hdr})

	deadline := time.Now().Add(5 * time.Second)
	for {
		l.mu.Lock()
		done := len(l.seen) == 1
		l.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("listener never saw the event")
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, n.Unsubscribe(id))
}

func TestFinalizedBacklogRoom(t *testing.T) {
	n := NewNotifier(2)
	assert.Equal(t, 2, n.FinalizedBacklogRoom())

	_, ch := n.SubscribeFinalized()
	assert.Equal(t, 2, n.FinalizedBacklogRoom())

	n.PublishFinalized(FinalizedEvent{})
	assert.Equal(t, 1, n.FinalizedBacklogRoom())

	<-ch
	assert.Equal(t, 2, n.FinalizedBacklogRoom())
}
