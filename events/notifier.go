package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"weave/logx"
)

type SubscriberID string

type finalizedSub struct {
	ID      SubscriberID
	Channel chan FinalizedEvent
	done    chan struct{}
	senders sync.WaitGroup
}

type blockcliqueSub struct {
	ID      SubscriberID
	Channel chan BlockcliqueEvent
}

// Notifier fans consensus events out to the Execution and Pool
// collaborators. Finalized events use bounded blocking channels: if a
// subscriber falls more than `backlog` events behind, PublishFinalized
// blocks, which stalls further finalizations upstream. Blockclique events
// are best-effort.
type Notifier struct {
	backlog     int
	finalized   map[SubscriberID]*finalizedSub
	blockclique map[SubscriberID]*blockcliqueSub
	mu          sync.RWMutex
}

func NewNotifier(backlog int) *Notifier {
	if backlog <= 0 {
		backlog = 1
	}
	return &Notifier{
		backlog:     backlog,
		finalized:   make(map[SubscriberID]*finalizedSub),
		blockclique: make(map[SubscriberID]*blockcliqueSub),
	}
}

func (n *Notifier) generateID() SubscriberID {
	id := uuid.Must(uuid.NewV7())
	return SubscriberID(id.String())
}

func (n *Notifier) SubscribeFinalized() (SubscriberID, chan FinalizedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.generateID()
	ch := make(chan FinalizedEvent, n.backlog)
	n.finalized[id] = &finalizedSub{ID: id, Channel: ch, done: make(chan struct{})}

	logx.Info("NOTIFIER", fmt.Sprintf("Finalized subscriber added | subscriber_id=%s | total=%d", id, len(n.finalized)))
	return id, ch
}

func (n *Notifier) SubscribeBlockclique() (SubscriberID, chan BlockcliqueEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.generateID()
	ch := make(chan BlockcliqueEvent, n.backlog)
	n.blockclique[id] = &blockcliqueSub{ID: id, Channel: ch}

	logx.Info("NOTIFIER", fmt.Sprintf("Blockclique subscriber added | subscriber_id=%s | total=%d", id, len(n.blockclique)))
	return id, ch
}

// Unsubscribe removes a subscription by ID
func (n *Notifier) Unsubscribe(id SubscriberID) bool {
	n.mu.Lock()
	if sub, exists := n.finalized[id]; exists {
		delete(n.finalized, id)
		n.mu.Unlock()
		// release any publisher blocked on this backlog, then close the
		// channel once no sender can still reach it
		close(sub.done)
		sub.senders.Wait()
		close(sub.Channel)
		return true
	}
	if sub, exists := n.blockclique[id]; exists {
		delete(n.blockclique, id)
		n.mu.Unlock()
		close(sub.Channel)
		return true
	}
	n.mu.Unlock()
	logx.Warn("NOTIFIER", fmt.Sprintf("Attempted to unsubscribe non-existent subscriber | subscriber_id=%s", id))
	return false
}

// PublishFinalized delivers one finalized block to every subscriber. Blocks
// until each subscriber has queue room: this is the engine's finalization
// backpressure, never unbounded buffering. A subscriber removed mid-publish
// is skipped.
func (n *Notifier) PublishFinalized(event FinalizedEvent) {
	n.mu.RLock()
	subs := make([]*finalizedSub, 0, len(n.finalized))
	for _, sub := range n.finalized {
		sub.senders.Add(1)
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- event:
		case <-sub.done:
		}
		sub.senders.Done()
	}
}

// PublishBlockclique delivers a blockclique change, dropping for subscribers
// whose queue is full.
func (n *Notifier) PublishBlockclique(event BlockcliqueEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for id, sub := range n.blockclique {
		select {
		case sub.Channel <- event:
		default:
			logx.Warn("NOTIFIER", fmt.Sprintf("Blockclique subscriber channel full | subscriber_id=%s", id))
		}
	}
}

// FinalizedBacklogRoom reports the minimum free queue room across finalized
// subscribers: how many more finalized events can go out before
// PublishFinalized would block on the slowest consumer.
func (n *Notifier) FinalizedBacklogRoom() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	room := n.backlog
	for _, sub := range n.finalized {
		if free := cap(sub.Channel) - len(sub.Channel); free < room {
			room = free
		}
	}
	return room
}
