package engine

import (
	"sync"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
)

// UnreadCounter aggregates unread messages across conversations for the
// global badge. It listens for UnreadReset and publishes UnreadTotal.
type UnreadCounter struct {
	bus *bus.Bus

	mu     sync.Mutex
	counts map[string]int
	total  int

	unsubscribe func()
}

func NewUnreadCounter(b *bus.Bus) *UnreadCounter {
	u := &UnreadCounter{bus: b, counts: make(map[string]int)}
	u.unsubscribe = b.UnreadReset.Subscribe(func(ev bus.UnreadReset) {
		u.Reset(ev.ConvID)
	})
	return u
}

// Seed initializes the counts from a freshly fetched list.
func (u *UnreadCounter) Seed(list []domain.Conversation) {
	u.mu.Lock()
	u.counts = make(map[string]int, len(list))
	u.total = 0
	for _, c := range list {
		n := c.UnreadCount
		if n == 0 && c.IsUnread {
			n = 1
		}
		if n > 0 {
			u.counts[c.ID] = n
			u.total += n
		}
	}
	total := u.total
	u.mu.Unlock()

	u.bus.UnreadTotal.Publish(bus.UnreadTotal{Total: total})
}

// Add counts one inbound message for convID.
func (u *UnreadCounter) Add(convID string) {
	u.mu.Lock()
	u.counts[convID]++
	u.total++
	total := u.total
	u.mu.Unlock()

	u.bus.UnreadTotal.Publish(bus.UnreadTotal{Total: total})
}

// Reset drops the count of convID.
func (u *UnreadCounter) Reset(convID string) {
	u.mu.Lock()
	n, ok := u.counts[convID]
	if !ok {
		u.mu.Unlock()
		return
	}
	delete(u.counts, convID)
	u.total -= n
	total := u.total
	u.mu.Unlock()

	u.bus.UnreadTotal.Publish(bus.UnreadTotal{Total: total})
}

// Total returns the aggregate count.
func (u *UnreadCounter) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}

// Close stops listening on the bus.
func (u *UnreadCounter) Close() {
	if u.unsubscribe != nil {
		u.unsubscribe()
		u.unsubscribe = nil
	}
}
