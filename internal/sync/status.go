package sync

import (
	gosync "sync"
	"sync/atomic"
	"time"
)

// SyncStatus is the derived, unpersisted view broadcast to subscribers.
type SyncStatus struct {
	IsOnline          bool       `json:"is_online"`
	IsSyncing         bool       `json:"is_syncing"`
	LastSyncTime      *time.Time `json:"last_sync_time"`
	PendingOperations int        `json:"pending_operations"`
}

// Connectivity holds the in-memory reachability flag shared by the engine
// and the connectivity monitor.
type Connectivity struct {
	online atomic.Bool
}

// NewConnectivity creates a Connectivity with the given initial state.
func NewConnectivity(online bool) *Connectivity {
	c := &Connectivity{}
	c.online.Store(online)
	return c
}

// IsOnline reports the last known reachability.
func (c *Connectivity) IsOnline() bool {
	return c.online.Load()
}

// Set records reachability and returns the previous value.
func (c *Connectivity) Set(online bool) (was bool) {
	return c.online.Swap(online)
}

// Notifier delivers SyncStatus values to subscribers synchronously and in
// subscription order. Publications are serialized, so no two callbacks run at
// the same time. Callbacks must not call Publish.
type Notifier struct {
	mu   gosync.Mutex
	subs []*subscription
	next int

	deliver gosync.Mutex
}

type subscription struct {
	id int
	fn func(SyncStatus)
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function may be called any number of times.
func (n *Notifier) Subscribe(fn func(SyncStatus)) (unsubscribe func()) {
	n.mu.Lock()
	n.next++
	id := n.next
	n.subs = append(n.subs, &subscription{id: id, fn: fn})
	n.mu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.subs {
				if s.id == id {
					n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers status to every current subscriber.
func (n *Notifier) Publish(status SyncStatus) {
	n.deliver.Lock()
	defer n.deliver.Unlock()

	n.mu.Lock()
	subs := make([]*subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		s.fn(status)
	}
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
