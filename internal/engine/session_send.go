package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
)

// SendText sends text to the open conversation convID. The message appears
// pending immediately; the returned id is its temporary id.
func (s *Session) SendText(convID, text string) (string, error) {
	t := text
	return s.send(convID, domain.Message{Text: &t}, func(ctx context.Context) error {
		return s.api.SendMessage(ctx, convID, text)
	})
}

// SendImage sends an image with an optional caption.
func (s *Session) SendImage(convID, image string, caption *string) (string, error) {
	if image == "" {
		return "", fmt.Errorf("image: %w", domain.ErrInvalidInput)
	}
	img := image
	msg := domain.Message{Image: &img}
	if caption != nil && strings.TrimSpace(*caption) != "" {
		c := *caption
		msg.Text = &c
	}
	return s.send(convID, msg, func(ctx context.Context) error {
		return s.api.SendAttachment(ctx, convID, image, msg.Text)
	})
}

func (s *Session) send(convID string, msg domain.Message, call func(ctx context.Context) error) (string, error) {
	var (
		id  string
		err error
	)
	if derr := s.do(func() { id, err = s.sendLocked(convID, msg, call) }); derr != nil {
		return "", derr
	}
	return id, err
}

func (s *Session) sendLocked(convID string, msg domain.Message, call func(ctx context.Context) error) (string, error) {
	c, ok := s.index.Get(convID)
	tl := s.timelines[convID]
	if !ok || tl == nil {
		return "", fmt.Errorf("conversation %s not open: %w", convID, domain.ErrNotFound)
	}
	if err := s.locks.CheckSend(c); err != nil {
		return "", err
	}
	if msg.TrimmedText() == "" && !msg.HasImage() {
		return "", fmt.Errorf("empty message: %w", domain.ErrInvalidInput)
	}

	now := s.clock.Now()
	msg.ID = NewTempID(now)
	msg.Sender = domain.SenderUser
	msg.SentAt = now
	msg.Time = domain.FormatClock(now)
	tl.Apply(Action{Kind: LocalSent, Message: msg})

	preview := msg.Preview()
	s.previews[msg.ID] = previewBackup{convID: convID, lastMessage: c.LastMessage, time: c.Time, optimistic: now}
	s.index.Upsert(convID, Patch{LastMessage: &preview, Time: &now})

	id := msg.ID
	s.sched.Schedule(convID, id, s.cfg.PendingTimeout, func() { s.onSendTimeout(convID, id) })

	s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: convID, AutoScroll: true})
	s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})

	s.async(func(ctx context.Context) func() {
		if err := call(ctx); err != nil {
			return func() { s.onSendFailed(convID, id, err) }
		}
		return func() { delete(s.previews, id) }
	})
	return id, nil
}

// onSendTimeout clears the pending flag. The preview backup stays until the
// send call resolves, since an oversized rejection can still arrive.
func (s *Session) onSendTimeout(convID, id string) {
	tl := s.timelines[convID]
	if tl == nil {
		return
	}
	if out := tl.Apply(Action{Kind: TimedOut, ID: id}); out.Changed {
		s.log.Debug("send unconfirmed, clearing pending", "conv_id", convID, "id", id)
		s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: convID})
	}
}

func (s *Session) onSendFailed(convID, id string, err error) {
	s.sched.Cancel(id)
	oversized := errors.Is(err, domain.ErrImageTooLarge)
	s.log.Warn("send failed", "conv_id", convID, "id", id, "oversized", oversized, "err", err)

	if tl := s.timelines[convID]; tl != nil {
		if out := tl.Apply(Action{Kind: SendFailed, ID: id, Reason: err.Error(), Oversized: oversized}); out.Changed {
			s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: convID})
		}
	}

	backup, ok := s.previews[id]
	delete(s.previews, id)
	if !oversized {
		return
	}
	if ok {
		if c, found := s.index.Get(convID); found && c.Time.Equal(backup.optimistic) {
			s.index.Upsert(convID, Patch{LastMessage: &backup.lastMessage, Time: &backup.time})
			s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
		}
	}
	s.bus.Toast.Publish(bus.Toast{Level: bus.ToastError, Text: "Image must be less than 1MB"})
}

// MarkRead marks convID read as if the operator had looked at it.
func (s *Session) MarkRead(convID string) error {
	return s.do(func() {
		if s.reads.Trigger(convID) {
			s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
		}
	})
}

func (s *Session) ackRead(convID string) {
	s.async(func(ctx context.Context) func() {
		if err := s.api.MarkRead(ctx, convID); err != nil {
			s.log.Warn("mark read", "conv_id", convID, "err", err)
		}
		return nil
	})
}
