package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
	"chatsync/internal/push"
)

// RequestAccess asks the operator holding convID to hand it over. Advisory
// only: nothing changes locally.
func (s *Session) RequestAccess(convID string) error {
	var (
		c  domain.Conversation
		ok bool
	)
	if err := s.do(func() { c, ok = s.index.Get(convID) }); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %s: %w", convID, domain.ErrNotFound)
	}
	if !s.locks.IsLocked(c) {
		return nil
	}
	if s.emitter == nil {
		return push.ErrNotConnected
	}
	return s.emitter.Emit(push.EventRequestAccess, push.RequestAccess{ConvID: convID, Requester: s.cfg.AccountID})
}

// Claim takes the lock on convID for this account.
func (s *Session) Claim(ctx context.Context, convID string) error {
	c, err := s.Conversation(convID)
	if err != nil {
		return err
	}
	if s.locks.IsLocked(c) {
		return domain.ErrConversationLocked
	}
	updated, err := s.api.LockConversation(ctx, convID)
	if err != nil {
		return fmt.Errorf("lock %s: %w", convID, err)
	}
	handler := &domain.Handler{AccountID: s.cfg.AccountID}
	var expires *time.Time
	if updated != nil && updated.CurrentHandler != nil {
		handler = updated.CurrentHandler
		expires = updated.LockExpiresAt
	}
	return s.do(func() {
		s.locks.Hold(convID, handler, expires)
		s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	})
}

// Release gives up this account's lock on convID.
func (s *Session) Release(ctx context.Context, convID string) error {
	c, err := s.Conversation(convID)
	if err != nil {
		return err
	}
	if !s.locks.HeldByMe(c) {
		return nil
	}
	if err := s.api.UnlockConversation(ctx, convID); err != nil {
		return fmt.Errorf("unlock %s: %w", convID, err)
	}
	return s.do(func() {
		s.locks.Unlocked(push.ConversationUnlocked{ConvID: convID})
		s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	})
}

// Rename sets the customer's display name.
func (s *Session) Rename(ctx context.Context, convID, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return fmt.Errorf("nickname: %w", domain.ErrInvalidInput)
	}
	c, err := s.Conversation(convID)
	if err != nil {
		return err
	}
	if err := s.api.UpdateNickname(ctx, c, nickname); err != nil {
		return fmt.Errorf("rename %s: %w", convID, err)
	}
	return s.do(func() {
		s.index.Upsert(convID, Patch{Name: &nickname})
		c, _ := s.index.Get(convID)
		s.bus.ConversationUpdated.Publish(bus.ConversationUpdated{Conversation: c})
		s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	})
}

// SetBotReply toggles automatic bot replies for convID.
func (s *Session) SetBotReply(ctx context.Context, convID string, enabled bool) error {
	if _, err := s.Conversation(convID); err != nil {
		return err
	}
	if err := s.api.SetBotReply(ctx, convID, enabled); err != nil {
		return fmt.Errorf("bot reply %s: %w", convID, err)
	}
	return s.do(func() {
		s.index.Upsert(convID, Patch{BotReply: &enabled})
		c, _ := s.index.Get(convID)
		s.bus.ConversationUpdated.Publish(bus.ConversationUpdated{Conversation: c})
	})
}

// SetTyping emits start-typing or stop-typing when the operator's typing
// state for convID changes.
func (s *Session) SetTyping(convID string, typing bool) error {
	var changed bool
	if err := s.do(func() {
		if s.typing[convID] == typing {
			return
		}
		changed = true
		if typing {
			s.typing[convID] = true
		} else {
			delete(s.typing, convID)
		}
	}); err != nil {
		return err
	}
	if !changed || s.emitter == nil {
		return nil
	}
	event := push.EventStopTyping
	if typing {
		event = push.EventStartTyping
	}
	return s.emitter.Emit(event, push.TypingSignal{ConvID: convID, AccountID: s.cfg.AccountID})
}

func (s *Session) emitAsync(event string, payload any) {
	if s.emitter == nil {
		return
	}
	s.dispatch(func() {
		if err := s.emitter.Emit(event, payload); err != nil {
			s.log.Debug("emit", "event", event, "err", err)
		}
	})
}
