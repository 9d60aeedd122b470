package engine

import (
	"chatsync/internal/bus"
)

// ReadTracker turns read triggers into exactly one local clear, one
// UnreadReset signal and one remote acknowledgement per unread→read
// transition.
type ReadTracker struct {
	index *Index
	bus   *bus.Bus
	ack   func(convID string)
}

func NewReadTracker(index *Index, b *bus.Bus, ack func(convID string)) *ReadTracker {
	return &ReadTracker{index: index, bus: b, ack: ack}
}

// Trigger marks convID read. It is a no-op when the conversation is already
// read.
func (r *ReadTracker) Trigger(convID string) bool {
	if !r.index.MarkRead(convID) {
		return false
	}
	r.bus.UnreadReset.Publish(bus.UnreadReset{ConvID: convID})
	r.ack(convID)
	return true
}

// Inbound records an inbound message for convID. open is whether the
// conversation is the selected one, atBottom whether its viewport shows the
// latest message. It returns true when the operator should be alerted.
func (r *ReadTracker) Inbound(convID string, open, atBottom bool) (alert bool) {
	if !r.index.MarkUnread(convID) {
		return false
	}
	if open && atBottom {
		r.Trigger(convID)
		return false
	}
	return !open
}
