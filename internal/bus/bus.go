// Package bus is the in-process publish/subscribe channel between the engine
// and whatever renders it.
package bus

import (
	"sync"
	"time"

	"chatsync/internal/domain"
)

// Topic delivers values of one type to its subscribers synchronously, in
// subscription order.
type Topic[T any] struct {
	mu   sync.RWMutex
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish hands v to every current subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	subs := make([]subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// ToastLevel grades a user-facing notice.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// Toast is a transient notice for the operator.
type Toast struct {
	Level ToastLevel `json:"level"`
	Text  string     `json:"text"`
}

// ConversationsChanged signals that the sidebar list or filter output changed.
type ConversationsChanged struct {
	Selected string `json:"selected,omitempty"`
}

// TimelineChanged signals a change to the open conversation's messages.
type TimelineChanged struct {
	ConvID string `json:"conv_id"`
	// Prepended is set when older history was inserted above; the renderer
	// keeps the visible message in place with AnchorScrollTop.
	Prepended      int  `json:"prepended,omitempty"`
	AutoScroll     bool `json:"auto_scroll,omitempty"`
	NewMessageHint bool `json:"new_message_hint,omitempty"`
}

// Alert asks the shell to get the operator's attention.
type Alert struct {
	ConvID string `json:"conv_id"`
	Sound  bool   `json:"sound"`
}

// AccessRequested is raised when another operator asks for a conversation
// this account is handling.
type AccessRequested struct {
	ConvID        string `json:"conv_id"`
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`
}

// UnreadReset tells listeners a conversation was read.
type UnreadReset struct {
	ConvID string `json:"conv_id"`
}

// UnreadTotal carries the aggregate unread count.
type UnreadTotal struct {
	Total int `json:"total"`
}

// ConversationUpdated carries a locally applied summary change.
type ConversationUpdated struct {
	Conversation domain.Conversation `json:"conversation"`
}

// ConnectionState reports the push channel status.
type ConnectionState struct {
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// Bus groups the topics a session publishes on.
type Bus struct {
	ConversationsChanged Topic[ConversationsChanged]
	TimelineChanged      Topic[TimelineChanged]
	Toast                Topic[Toast]
	Alert                Topic[Alert]
	AccessRequested      Topic[AccessRequested]
	UnreadReset          Topic[UnreadReset]
	UnreadTotal          Topic[UnreadTotal]
	ConversationUpdated  Topic[ConversationUpdated]
	ConnectionState      Topic[ConnectionState]
}

func New() *Bus {
	return &Bus{}
}
