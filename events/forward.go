package events

import (
	"weave/exception"
	"weave/interfaces"
)

// ForwardFinalized bridges a channel subscription to a FinalizedListener
// callback. The pump exits when the subscription is removed.
func (n *Notifier) ForwardFinalized(l interfaces.FinalizedListener) SubscriberID {
	id, ch := n.SubscribeFinalized()
	exception.SafeGo("finalized-forwarder", func() {
		for ev := range ch {
			l.OnFinalized(ev.Header, ev.Operations)
		}
	})
	return id
}

// ForwardPool delivers finalized blocks and blockclique changes to a Pool
// collaborator.
func (n *Notifier) ForwardPool(p interfaces.PoolNotifier) []SubscriberID {
	fid := n.ForwardFinalized(p)
	bid, ch := n.SubscribeBlockclique()
	exception.SafeGo("blockclique-forwarder", func() {
		for ev := range ch {
			p.OnBlockcliqueChanged(ev.Members)
		}
	})
	return []SubscriberID{fid, bid}
}
