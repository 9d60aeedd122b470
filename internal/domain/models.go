package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the external channel a conversation lives on.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformZalo      Platform = "zalo"
	PlatformWidget    Platform = "widget"
)

// Valid reports whether p is one of the known channels.
func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformZalo, PlatformWidget:
		return true
	}
	return false
}

// Sender tells which side of the thread produced a message.
type Sender string

const (
	// SenderUser is an outbound message (operator or bot).
	SenderUser Sender = "user"
	// SenderCustomer is an inbound message.
	SenderCustomer Sender = "customer"
)

// Handler is the operator currently holding a conversation lock.
type Handler struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
}

// PlatformStatus reflects the health of the channel integration.
type PlatformStatus struct {
	IsConnected    bool       `json:"is_connected"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// Conversation is one customer thread as shown in the sidebar.
type Conversation struct {
	ID             string         `json:"id"`
	Platform       Platform       `json:"platform"`
	OAID           string         `json:"oa_id,omitempty"`
	CustomerID     string         `json:"customer_id,omitempty"`
	Name           string         `json:"name"`
	Avatar         string         `json:"avatar,omitempty"`
	LastMessage    string         `json:"lastMessage"`
	Time           time.Time      `json:"time"`
	IsUnread       bool           `json:"isUnread"`
	UnreadCount    int            `json:"unreadCount"`
	BotReply       *bool          `json:"bot_reply,omitempty"`
	CurrentHandler *Handler       `json:"current_handler,omitempty"`
	LockExpiresAt  *time.Time     `json:"lock_expires_at,omitempty"`
	PlatformStatus PlatformStatus `json:"platform_status"`
}

// Message is a single chat bubble.
type Message struct {
	ID           string    `json:"id"`
	Text         *string   `json:"text,omitempty"`
	Image        *string   `json:"image,omitempty"`
	Sender       Sender    `json:"sender"`
	SentAt       time.Time `json:"sent_at"`
	Time         string    `json:"time"`
	Pending      bool      `json:"pending"`
	Failed       bool      `json:"failed"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// TrimmedText returns the message body without surrounding whitespace.
func (m Message) TrimmedText() string {
	if m.Text == nil {
		return ""
	}
	return strings.TrimSpace(*m.Text)
}

// HasImage reports whether the message carries an attachment.
func (m Message) HasImage() bool {
	return m.Image != nil && *m.Image != ""
}

// Preview is the sidebar summary for a message.
func (m Message) Preview() string {
	if t := m.TrimmedText(); t != "" {
		return t
	}
	if m.HasImage() {
		return "[Image]"
	}
	return ""
}

// Page is a backward-pagination request.
type Page struct {
	Limit int
	Skip  int
}

// StaffMember is an operator account in the same organization.
type StaffMember struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Username  string `json:"username,omitempty"`
}

// ClockFormat is the display layout for message times.
const ClockFormat = "15:04"

// FormatClock renders t the way message bubbles show it.
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(ClockFormat)
}

// ParseConversationID splits "<platform>:<oa_id>:<customer_id>".
func ParseConversationID(id string) (Platform, string, string, error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("conversation id %q: %w", id, ErrInvalidInput)
	}
	return Platform(parts[0]), parts[1], parts[2], nil
}
