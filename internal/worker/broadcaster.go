package worker

import (
	"sync"

	"poscore/pkg/contracts/events"
)

// StatusBroadcaster fans worker status out to subscribers and keeps the
// latest value for polling callers. Slow subscribers only ever miss
// intermediate values; the newest status always replaces a queued one.
type StatusBroadcaster struct {
	mu     sync.RWMutex
	latest events.SyncStatus
	subs   map[chan events.SyncStatus]struct{}
}

// NewStatusBroadcaster creates an empty broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{subs: make(map[chan events.SyncStatus]struct{})}
}

// Subscribe returns a channel of status updates and a function that
// unsubscribes and closes it.
func (b *StatusBroadcaster) Subscribe() (<-chan events.SyncStatus, func()) {
	ch := make(chan events.SyncStatus, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish records s as the latest status and delivers it to every
// subscriber without blocking.
func (b *StatusBroadcaster) Publish(s events.SyncStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = s
	for ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Latest returns the most recently published status.
func (b *StatusBroadcaster) Latest() events.SyncStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}
