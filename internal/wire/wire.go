// Package wire holds the JSON shapes shared by the REST API and the push
// channel, and their conversion into domain types.
package wire

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"chatsync/internal/domain"
)

// Envelope is the response wrapper used by every backend endpoint.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
}

// Profile is a sender/recipient profile attached to messages.
type Profile struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Attachment is a platform attachment as stored in message metadata.
type Attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

// Metadata is the subset of message metadata the engine reads.
type Metadata struct {
	Image       string       `json:"image,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// MessageDoc is a stored message document.
type MessageDoc struct {
	ID        string    `json:"_id"`
	Text      *string   `json:"text"`
	Direction string    `json:"direction"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	CreatedAt string    `json:"created_at"`
}

// ImageURL extracts the attachment image, if any.
func (d MessageDoc) ImageURL() string {
	if d.Metadata == nil {
		return ""
	}
	if d.Metadata.Image != "" {
		return d.Metadata.Image
	}
	for _, a := range d.Metadata.Attachments {
		if a.Type == "image" && a.Payload.URL != "" {
			return a.Payload.URL
		}
	}
	return ""
}

// ToDomain converts the document into a confirmed message.
func (d MessageDoc) ToDomain() domain.Message {
	sentAt := ParseTime(d.CreatedAt)
	m := domain.Message{
		ID:     d.ID,
		Text:   d.Text,
		Sender: SenderFor(d.Direction),
		SentAt: sentAt,
		Time:   domain.FormatClock(sentAt),
	}
	if img := d.ImageURL(); img != "" {
		m.Image = &img
	}
	return m
}

// SenderFor maps a wire direction to the bubble side.
func SenderFor(direction string) domain.Sender {
	if direction == "out" {
		return domain.SenderUser
	}
	return domain.SenderCustomer
}

// FallbackID derives a stable key for messages that arrive without a server
// id, so a replayed event maps to the same entry.
func FallbackID(convID, at, text string) string {
	sum := sha1.Sum([]byte(convID + "\x00" + at + "\x00" + text))
	return "evt_" + hex.EncodeToString(sum[:8])
}

// ConversationDoc is one entry of the conversation list endpoint.
type ConversationDoc struct {
	ID             string          `json:"id"`
	OAID           string          `json:"oa_id"`
	CustomerID     string          `json:"customer_id"`
	Platform       string          `json:"platform"`
	Name           string          `json:"name"`
	Avatar         *string         `json:"avatar"`
	LastMessage    *string         `json:"lastMessage"`
	Time           string          `json:"time"`
	UnreadCount    int             `json:"unreadCount"`
	BotReply       *bool           `json:"bot_reply"`
	CurrentHandler *domain.Handler `json:"current_handler"`
	LockExpiresAt  string          `json:"lock_expires_at"`
	PlatformStatus *struct {
		IsConnected    bool   `json:"is_connected"`
		DisconnectedAt string `json:"disconnected_at"`
	} `json:"platform_status"`
}

// ToDomain converts the list entry into an index record.
func (d ConversationDoc) ToDomain() domain.Conversation {
	c := domain.Conversation{
		ID:             d.ID,
		Platform:       domain.Platform(d.Platform),
		OAID:           d.OAID,
		CustomerID:     d.CustomerID,
		Name:           d.Name,
		Time:           ParseTime(d.Time),
		UnreadCount:    d.UnreadCount,
		IsUnread:       d.UnreadCount > 0,
		BotReply:       d.BotReply,
		CurrentHandler: d.CurrentHandler,
		LockExpiresAt:  ParseTimePtr(d.LockExpiresAt),
		PlatformStatus: domain.PlatformStatus{IsConnected: true},
	}
	if d.Avatar != nil {
		c.Avatar = *d.Avatar
	}
	if d.LastMessage != nil {
		c.LastMessage = *d.LastMessage
	}
	if d.PlatformStatus != nil {
		c.PlatformStatus.IsConnected = d.PlatformStatus.IsConnected
		c.PlatformStatus.DisconnectedAt = ParseTimePtr(d.PlatformStatus.DisconnectedAt)
	}
	if c.CurrentHandler != nil && c.CurrentHandler.AccountID == "" {
		c.CurrentHandler = nil
	}
	return c
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02 15:04:05",
}

// ParseTime accepts the timestamp flavours the backend emits (with and
// without a zone suffix). Zone-less values are UTC. Unparseable input yields
// the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseTimePtr is ParseTime returning nil for empty or invalid input.
func ParseTimePtr(s string) *time.Time {
	t := ParseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
