package engine

import (
	"context"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
	"chatsync/internal/push"
	"chatsync/internal/wire"
)

func (s *Session) onNewMessage(ev push.NewMessage) {
	convID := ev.ConversationKey()
	if convID == "" {
		s.log.Warn("new-message without conversation id")
		return
	}
	msg := ev.ToMessage(s.clock.Now())
	preview := msg.Preview()
	at := msg.SentAt

	s.index.Upsert(convID, Patch{LastMessage: &preview, Time: &at, Seed: seedFromEvent(convID, ev)})

	open := convID == s.selected
	duplicate := s.seenMessage(convID, msg.ID)
	if tl := s.timelines[convID]; open && tl != nil {
		out := tl.Apply(Action{Kind: Received, Message: msg, Outbound: ev.Outbound()})
		duplicate = duplicate || out.Duplicate
		switch {
		case out.Matched:
			s.sched.Cancel(out.ReplacedID)
			delete(s.previews, out.ReplacedID)
			s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: convID})
			if out.ImageDropped {
				s.bus.Toast.Publish(bus.Toast{Level: bus.ToastError, Text: "Image failed to send"})
			}
		case out.Appended:
			s.bus.TimelineChanged.Publish(bus.TimelineChanged{
				ConvID:         convID,
				AutoScroll:     s.atBottom,
				NewMessageHint: !s.atBottom,
			})
		}
	}

	if !ev.Outbound() && !duplicate {
		alert := s.reads.Inbound(convID, open, s.atBottom)
		if c, ok := s.index.Get(convID); ok && c.IsUnread {
			s.unread.Add(convID)
		}
		if alert {
			s.bus.Alert.Publish(bus.Alert{ConvID: convID, Sound: true})
		}
	}
	s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
}

func seedFromEvent(convID string, ev push.NewMessage) *domain.Conversation {
	platform, oaID, customerID, err := domain.ParseConversationID(convID)
	if err != nil {
		platform, oaID, customerID = domain.Platform(ev.Platform), ev.OAID, ev.SenderID
	}
	c := &domain.Conversation{
		Platform:       platform,
		OAID:           oaID,
		CustomerID:     customerID,
		Name:           customerID,
		PlatformStatus: domain.PlatformStatus{IsConnected: true},
	}
	profile := ev.SenderProfile
	if ev.Outbound() {
		profile = ev.RecipientProfile
	}
	if profile != nil {
		if profile.Name != "" {
			c.Name = profile.Name
		}
		c.Avatar = profile.Avatar
	}
	return c
}

func (s *Session) onLocked(ev push.ConversationLocked) {
	if !s.locks.Locked(ev) {
		return
	}
	id := eventConvID(ev.ConvID, ev.ConversationID)
	s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	if id == s.selected {
		s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: id})
	}
}

func (s *Session) onUnlocked(ev push.ConversationUnlocked) {
	if !s.locks.Unlocked(ev) {
		return
	}
	id := eventConvID(ev.ConvID, ev.ConversationID)
	s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
	if id == s.selected {
		s.bus.TimelineChanged.Publish(bus.TimelineChanged{ConvID: id})
	}
}

func (s *Session) onRequestAccess(ev push.RequestAccess) {
	convID := eventConvID(ev.ConvID, ev.ConversationID)
	if ev.Requester == "" || ev.Requester == s.cfg.AccountID {
		return
	}
	if s.staff != nil {
		s.announceAccessRequest(convID, ev.Requester)
		return
	}
	s.async(func(ctx context.Context) func() {
		members, err := s.api.ListStaff(ctx)
		return func() {
			if err != nil {
				s.log.Warn("list staff", "err", err)
			} else {
				s.staff = make(map[string]domain.StaffMember, len(members))
				for _, m := range members {
					s.staff[m.AccountID] = m
				}
			}
			s.announceAccessRequest(convID, ev.Requester)
		}
	})
}

func (s *Session) announceAccessRequest(convID, requester string) {
	name := requester
	if m, ok := s.staff[requester]; ok && m.Name != "" {
		name = m.Name
	}
	s.bus.AccessRequested.Publish(bus.AccessRequested{ConvID: convID, RequesterID: requester, RequesterName: name})
	s.bus.Toast.Publish(bus.Toast{Level: bus.ToastInfo, Text: name + " is requesting access to this conversation"})
}

func (s *Session) onUpdateConversation(ev push.UpdateConversation) {
	convID := eventConvID(ev.ConvID, ev.ConversationID)
	if convID == "" {
		return
	}
	var p Patch
	if ev.LastMessage != nil {
		if ev.LastMessage.Text != nil {
			text := *ev.LastMessage.Text
			p.LastMessage = &text
		}
		if t := wire.ParseTime(ev.LastMessage.CreatedAt); !t.IsZero() {
			p.Time = &t
		}
	}
	if ev.UnreadCount != nil && convID != s.selected {
		n := *ev.UnreadCount
		unread := n > 0
		p.UnreadCount = &n
		p.IsUnread = &unread
	}
	if ev.CustomerInfo != nil {
		if ev.CustomerInfo.Name != "" {
			name := ev.CustomerInfo.Name
			p.Name = &name
		}
		if ev.CustomerInfo.Avatar != "" {
			avatar := ev.CustomerInfo.Avatar
			p.Avatar = &avatar
		}
	}
	p.BotReply = ev.BotReply
	if _, _, _, err := domain.ParseConversationID(convID); err == nil {
		p.Seed = seedFromUpdate(convID)
	}

	if _, changed := s.index.Upsert(convID, p); !changed {
		return
	}
	c, _ := s.index.Get(convID)
	s.bus.ConversationUpdated.Publish(bus.ConversationUpdated{Conversation: c})
	s.bus.ConversationsChanged.Publish(bus.ConversationsChanged{Selected: s.selected})
}

func seedFromUpdate(convID string) *domain.Conversation {
	platform, oaID, customerID, _ := domain.ParseConversationID(convID)
	return &domain.Conversation{
		Platform:       platform,
		OAID:           oaID,
		CustomerID:     customerID,
		Name:           customerID,
		PlatformStatus: domain.PlatformStatus{IsConnected: true},
	}
}
