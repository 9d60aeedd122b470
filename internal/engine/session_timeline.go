package engine

import (
	"context"
	"fmt"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
	"chatsync/internal/push"
)

// Select opens convID and loads its latest page.
func (s *Session) Select(convID string) error {
	var found bool
	if err := s.do(func() {
		if found = s.index.Has(convID); found {
			s.selectConversation(convID)
		}
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("conversation %s: %w", convID, domain.ErrNotFound)
	}
	return nil
}

func (s *Session) selectConversation(convID string) {
	if s.selected == convID {
		return
	}
	s.deselect()

	s.selected = convID
	s.atBottom = true
	tl := NewTimeline(convID, s.cfg.PageSize)
	tl.Loading = true
	s.timelines[convID] = tl
	s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: convID})
	s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: convID})

	page := domain.Page{Limit: s.cfg.PageSize}
	s.async(func(ctx context.Context) func() {
		msgs, err := s.api.GetMessages(ctx, convID, page)
		return func() { s.applyInitial(tl, msgs, err) }
	})
	s.persistSelection(convID)
}

func (s *Session) applyInitial(tl *Timeline, msgs []domain.Message, err error) {
	if s.timelines[tl.ConvID] != tl {
		return
	}
	if err != nil {
		tl.Loading = false
		s.log.Error("load messages", "conv_id", tl.ConvID, "err", err)
		s.bus.Toast.Publish(bus.Toast{Level: bus.ToastError, Text: "Failed to load messages"})
		s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: tl.ConvID})
		return
	}
	tl.ApplyInitial(msgs)
	s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: tl.ConvID, AutoScroll: true})
	if s.reads.Trigger(tl.ConvID) {
		s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	}
}

// Deselect closes the open conversation, cancelling its pending timers and
// dropping its timeline.
func (s *Session) Deselect() error {
	return s.do(func() {
		if s.selected == "" {
			return
		}
		s.deselect()
		s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{})
		if s.repo != nil {
			s.async(func(ctx context.Context) func() {
				if err := s.repo.ClearLastSelected(ctx, s.cfg.AccountID); err != nil {
					s.log.Warn("clear last selection", "err", err)
				}
				return nil
			})
		}
	})
}

func (s *Session) deselect() {
	prev := s.selected
	if prev == "" {
		return
	}
	if n := s.sched.CancelConversation(prev); n > 0 {
		s.log.Debug("cancelled pending timers", "conv_id", prev, "count", n)
	}
	for id, b := range s.previews {
		if b.convID == prev {
			delete(s.previews, id)
		}
	}
	delete(s.timelines, prev)
	if s.typing[prev] {
		delete(s.typing, prev)
		s.emitAsync(push.EventStopTyping, push.TypingSignal{ConvID: prev, AccountID: s.cfg.AccountID})
	}
	s.selected = ""
	s.atBottom = true
}

func (s *Session) persistSelection(convID string) {
	if s.repo == nil {
		return
	}
	s.async(func(ctx context.Context) func() {
		if err := s.repo.SetLastSelected(ctx, s.cfg.AccountID, convID); err != nil {
			s.log.Warn("save last selection", "conv_id", convID, "err", err)
		}
		return nil
	})
}

// Selected returns the open conversation id, or "".
func (s *Session) Selected() (string, error) {
	var id string
	err := s.do(func() { id = s.selected })
	return id, err
}

// View returns the open conversation. ok is false when nothing is selected.
func (s *Session) View() (view ConversationView, ok bool, err error) {
	err = s.do(func() {
		tl := s.timelines[s.selected]
		c, found := s.index.Get(s.selected)
		if tl == nil || !found {
			return
		}
		ok = true
		view = ConversationView{
			Conversation: c,
			Messages:     tl.Snapshot(),
			HasMore:      tl.HasMore,
			Loading:      tl.Loading,
			Loaded:       tl.Loaded,
			Locked:       s.locks.IsLocked(c),
			Handler:      c.CurrentHandler,
			CanSend:      s.locks.CheckSend(c) == nil,
			AtBottom:     s.atBottom,
		}
	})
	return view, ok, err
}

// UpdateViewport feeds the renderer's scroll geometry. Reaching the bottom of
// an unread conversation marks it read; nearing the top loads older history.
func (s *Session) UpdateViewport(v Viewport) error {
	return s.do(func() {
		if s.selected == "" {
			return
		}
		was := s.atBottom
		s.atBottom = v.AtBottom()
		if !was && s.atBottom && s.reads.Trigger(s.selected) {
			s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
		}
		if v.NearTop() {
			s.loadOlder()
		}
	})
}

// LoadOlder fetches the page above the loaded window. It reports false when
// there is nothing to load or a fetch is already running.
func (s *Session) LoadOlder() (bool, error) {
	var started bool
	err := s.do(func() { started = s.loadOlder() })
	return started, err
}

func (s *Session) loadOlder() bool {
	tl := s.timelines[s.selected]
	if tl == nil || !tl.Loaded {
		return false
	}
	page, ok := tl.BeginOlder()
	if !ok {
		return false
	}
	convID := tl.ConvID
	s.async(func(ctx context.Context) func() {
		msgs, err := s.api.GetMessages(ctx, convID, page)
		return func() {
			if s.timelines[convID] != tl {
				return
			}
			if err != nil {
				tl.FailOlder()
				s.log.Error("load older messages", "conv_id", convID, "skip", page.Skip, "err", err)
				s.bus.Toast.Publish(bus.Toast{Level: bus.ToastError, Text: "Failed to load messages"})
				return
			}
			n := tl.ApplyOlder(msgs)
			s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: convID, Prepended: n})
		}
	})
	return true
}
