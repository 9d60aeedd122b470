package push

import (
	"encoding/json"
	"fmt"
	"time"

	"chatsync/internal/domain"
	"chatsync/internal/wire"
)

// Server-to-client events.
const (
	EventNewMessage           = "new-message"
	EventConversationLocked   = "conversation-locked"
	EventConversationUnlocked = "conversation-unlocked"
	EventRequestAccess        = "request-access"
	EventUpdateConversation   = "update-conversation"
)

// Client-to-server events.
const (
	EventStartTyping = "start-typing"
	EventStopTyping  = "stop-typing"
)

// NewMessage is emitted for every inbound message and every outbound send
// (operator, bot or another tab).
type NewMessage struct {
	ConvID           string           `json:"conv_id"`
	ConversationID   string           `json:"conversation_id,omitempty"`
	Platform         string           `json:"platform"`
	OAID             string           `json:"oa_id"`
	SenderID         string           `json:"sender_id"`
	Direction        string           `json:"direction"`
	Message          *string          `json:"message"`
	MessageDoc       *wire.MessageDoc `json:"message_doc,omitempty"`
	SenderProfile    *wire.Profile    `json:"sender_profile,omitempty"`
	RecipientProfile *wire.Profile    `json:"recipient_profile,omitempty"`
	ReceivedAt       string           `json:"received_at,omitempty"`
	SentAt           string           `json:"sent_at,omitempty"`
}

// Outbound reports whether the message was sent from the business side.
func (e NewMessage) Outbound() bool { return e.Direction == "out" }

// ConversationKey returns conv_id, rebuilding it from its parts when the
// payload predates the field.
func (e NewMessage) ConversationKey() string {
	if e.ConvID != "" {
		return e.ConvID
	}
	if e.Platform == "" || e.OAID == "" || e.SenderID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", e.Platform, e.OAID, e.SenderID)
}

func (e NewMessage) rawTimestamp() string {
	switch {
	case e.ReceivedAt != "":
		return e.ReceivedAt
	case e.SentAt != "":
		return e.SentAt
	case e.MessageDoc != nil:
		return e.MessageDoc.CreatedAt
	}
	return ""
}

// Timestamp is the best available event time; now when none parses.
func (e NewMessage) Timestamp(now time.Time) time.Time {
	if t := wire.ParseTime(e.rawTimestamp()); !t.IsZero() {
		return t
	}
	return now
}

// ToMessage builds the confirmed timeline entry for this event.
func (e NewMessage) ToMessage(now time.Time) domain.Message {
	var msg domain.Message
	if e.MessageDoc != nil && e.MessageDoc.ID != "" {
		msg = e.MessageDoc.ToDomain()
	} else {
		text := ""
		if e.Message != nil {
			text = *e.Message
		}
		msg = domain.Message{ID: wire.FallbackID(e.ConversationKey(), e.rawTimestamp(), text)}
		if e.MessageDoc != nil {
			if img := e.MessageDoc.ImageURL(); img != "" {
				msg.Image = &img
			}
		}
	}
	if msg.Text == nil && e.Message != nil && *e.Message != "" {
		msg.Text = e.Message
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = e.Timestamp(now)
	}
	msg.Sender = wire.SenderFor(e.Direction)
	msg.Time = domain.FormatClock(msg.SentAt)
	return msg
}

// ConversationLocked announces the operator now handling a conversation.
type ConversationLocked struct {
	ConvID         string          `json:"conv_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Handler        *domain.Handler `json:"handler"`
	LockExpiresAt  string          `json:"lock_expires_at,omitempty"`
}

// ConversationUnlocked announces a released lock.
type ConversationUnlocked struct {
	ConvID         string `json:"conv_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// RequestAccess asks the current handler to hand a conversation over.
type RequestAccess struct {
	ConvID         string `json:"conv_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Requester      string `json:"requester"`
}

// UpdateConversation carries a server-side summary refresh.
type UpdateConversation struct {
	ConvID         string `json:"conv_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	OAID           string `json:"oa_id,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
	Platform       string `json:"platform,omitempty"`
	LastMessage    *struct {
		Text      *string `json:"text"`
		CreatedAt string  `json:"created_at"`
	} `json:"last_message,omitempty"`
	UnreadCount  *int          `json:"unread_count,omitempty"`
	CustomerInfo *wire.Profile `json:"customer_info,omitempty"`
	BotReply     *bool         `json:"bot_reply,omitempty"`
}

// TypingSignal is emitted on start-typing/stop-typing.
type TypingSignal struct {
	ConvID    string `json:"conv_id"`
	AccountID string `json:"accountId"`
}

// Decode unmarshals an event payload into its typed form.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode event payload: %w", err)
	}
	return v, nil
}
