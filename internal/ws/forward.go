package ws

import (
	"chatsync/internal/bus"
)

// Event is one frame pushed to bridge clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Forward relays every bus topic to the account's bridge connections and
// returns a function that stops relaying.
func Forward(b *bus.Bus, hub *Hub, accountID string) func() {
	send := func(kind string, v any) { _ = hub.Broadcast(accountID, Event{Type: kind, Data: v}) }
	unsubs := []func(){
		b.ConversationsChanged.Subscribe(func(v bus.ConversationsChanged) { send("conversations_changed", v) }),
		b.TimelineChanged.Subscribe(func(v bus.TimelineChanged) { send("timeline_changed", v) }),
		b.Toast.Subscribe(func(v bus.Toast) { send("toast", v) }),
		b.Alert.Subscribe(func(v bus.Alert) { send("alert", v) }),
		b.AccessRequested.Subscribe(func(v bus.AccessRequested) { send("access_requested", v) }),
		b.UnreadReset.Subscribe(func(v bus.UnreadReset) { send("unread_reset", v) }),
		b.UnreadTotal.Subscribe(func(v bus.UnreadTotal) { send("unread_total", v) }),
		b.ConversationUpdated.Subscribe(func(v bus.ConversationUpdated) { send("conversation_updated", v) }),
		b.ConnectionState.Subscribe(func(v bus.ConnectionState) { send("connection_state", v) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
