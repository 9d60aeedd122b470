package engine

import (
	"time"

	"chatsync/internal/domain"
	"chatsync/internal/push"
	"chatsync/internal/wire"
)

// LockCoordinator mirrors the server's record of who handles each
// conversation and gates sending accordingly.
type LockCoordinator struct {
	me    string
	index *Index
}

func NewLockCoordinator(me string, index *Index) *LockCoordinator {
	return &LockCoordinator{me: me, index: index}
}

// IsLocked reports whether another operator holds c.
func (l *LockCoordinator) IsLocked(c domain.Conversation) bool {
	return c.CurrentHandler != nil && c.CurrentHandler.AccountID != l.me
}

// HeldByMe reports whether this account holds c.
func (l *LockCoordinator) HeldByMe(c domain.Conversation) bool {
	return c.CurrentHandler != nil && c.CurrentHandler.AccountID == l.me
}

// CheckSend returns the reason c cannot accept an outbound message, if any.
func (l *LockCoordinator) CheckSend(c domain.Conversation) error {
	if l.IsLocked(c) {
		return domain.ErrConversationLocked
	}
	if !c.PlatformStatus.IsConnected {
		return domain.ErrPlatformDisconnected
	}
	return nil
}

// Hold records h as the handler of convID, as after a successful claim.
func (l *LockCoordinator) Hold(convID string, h *domain.Handler, expires *time.Time) bool {
	return l.index.SetLock(convID, h, expires)
}

// Locked applies a conversation-locked event.
func (l *LockCoordinator) Locked(ev push.ConversationLocked) bool {
	id := eventConvID(ev.ConvID, ev.ConversationID)
	if ev.Handler == nil || ev.Handler.AccountID == "" {
		return l.index.ClearLock(id)
	}
	return l.index.SetLock(id, ev.Handler, wire.ParseTimePtr(ev.LockExpiresAt))
}

// Unlocked applies a conversation-unlocked event.
func (l *LockCoordinator) Unlocked(ev push.ConversationUnlocked) bool {
	return l.index.ClearLock(eventConvID(ev.ConvID, ev.ConversationID))
}

func eventConvID(convID, conversationID string) string {
	if convID != "" {
		return convID
	}
	return conversationID
}
