package engine

import (
	"context"
	"fmt"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
)

// Refresh refetches the conversation list. On failure the current list is
// kept and an error toast is published.
func (s *Session) Refresh(ctx context.Context) error {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		s.log.Error("list conversations", "err", err)
		s.bus.Toast.Publish(bus.Toast{Level: bus.ToastError, Text: "Failed to load conversations"})
		return err
	}
	return s.do(func() {
		s.index.Replace(list)
		s.unread.Seed(s.index.All())
		s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	})
}

// Conversations returns the sidebar rows after the platform and search
// filters.
func (s *Session) Conversations() ([]ConversationItem, error) {
	var items []ConversationItem
	err := s.do(func() {
		list := Filter(s.index.All(), s.platform, s.query)
		items = make([]ConversationItem, 0, len(list))
		for _, c := range list {
			items = append(items, ConversationItem{
				Conversation: c,
				Locked:       s.locks.IsLocked(c),
				Selected:     c.ID == s.selected,
			})
		}
	})
	return items, err
}

// Conversation returns one indexed conversation.
func (s *Session) Conversation(convID string) (domain.Conversation, error) {
	var (
		c  domain.Conversation
		ok bool
	)
	if err := s.do(func() { c, ok = s.index.Get(convID) }); err != nil {
		return c, err
	}
	if !ok {
		return c, fmt.Errorf("conversation %s: %w", convID, domain.ErrNotFound)
	}
	return c, nil
}

// SetPlatformFilter restricts the sidebar to one channel, or PlatformAll.
func (s *Session) SetPlatformFilter(p domain.Platform) error {
	if p == "" {
		p = PlatformAll
	}
	if p != PlatformAll && !p.Valid() {
		return fmt.Errorf("platform %q: %w", p, domain.ErrInvalidInput)
	}
	return s.do(func() {
		if s.platform == p {
			return
		}
		s.platform = p
		s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	})
}

// SetSearch stores the typed query immediately and applies it to the list
// once typing has paused.
func (s *Session) SetSearch(q string) error {
	return s.do(func() {
		s.rawQuery = q
		s.search.Trigger(func() {
			if s.query == q {
				return
			}
			s.query = q
			s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
		})
	})
}

// Search returns the typed and the applied query.
func (s *Session) Search() (raw, applied string, err error) {
	err = s.do(func() { raw, applied = s.rawQuery, s.query })
	return raw, applied, err
}

// UnreadTotal is the aggregate unread count.
func (s *Session) UnreadTotal() int { return s.unread.Total() }
