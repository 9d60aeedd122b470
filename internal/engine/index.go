package engine

import (
	"sort"
	"strings"
	"time"

	"chatsync/internal/domain"
)

// PlatformAll disables the platform filter.
const PlatformAll domain.Platform = "all"

// Patch is a shallow update of a conversation summary. Nil fields are left
// untouched. Seed is the full record used when the id is not indexed yet.
type Patch struct {
	Name           *string
	Avatar         *string
	LastMessage    *string
	Time           *time.Time
	IsUnread       *bool
	UnreadCount    *int
	BotReply       *bool
	PlatformStatus *domain.PlatformStatus

	Seed *domain.Conversation
}

func (p Patch) touchesOrder() bool {
	return p.LastMessage != nil || p.Time != nil
}

func (p Patch) apply(c *domain.Conversation) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Avatar != nil {
		c.Avatar = *p.Avatar
	}
	if p.LastMessage != nil {
		c.LastMessage = *p.LastMessage
	}
	if p.Time != nil {
		c.Time = *p.Time
	}
	if p.IsUnread != nil {
		c.IsUnread = *p.IsUnread
	}
	if p.UnreadCount != nil {
		c.UnreadCount = *p.UnreadCount
	}
	if p.BotReply != nil {
		v := *p.BotReply
		c.BotReply = &v
	}
	if p.PlatformStatus != nil {
		c.PlatformStatus = *p.PlatformStatus
	}
}

// Index is the sidebar list: a set of conversations keyed by id, kept ordered
// most-recent-first. It is owned by the session loop and not safe for
// concurrent use.
type Index struct {
	items []domain.Conversation
	pos   map[string]int
}

func NewIndex() *Index {
	return &Index{pos: make(map[string]int)}
}

// Replace swaps the whole list, as after a list fetch. Later duplicates of an
// id are dropped.
func (x *Index) Replace(list []domain.Conversation) {
	x.items = x.items[:0]
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		x.items = append(x.items, c)
	}
	x.resort()
}

// Upsert merges p into the conversation with the given id. An unknown id is
// inserted only when p carries a Seed.
func (x *Index) Upsert(id string, p Patch) (created bool, changed bool) {
	i, ok := x.pos[id]
	if !ok {
		if p.Seed == nil {
			return false, false
		}
		c := *p.Seed
		c.ID = id
		p.apply(&c)
		x.items = append(x.items, c)
		x.resort()
		return true, true
	}

	p.apply(&x.items[i])
	if p.touchesOrder() {
		x.resort()
	}
	return false, true
}

// Get returns a copy of one conversation.
func (x *Index) Get(id string) (domain.Conversation, bool) {
	i, ok := x.pos[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return x.items[i], true
}

// Has reports whether id is indexed.
func (x *Index) Has(id string) bool {
	_, ok := x.pos[id]
	return ok
}

// All returns the ordered list.
func (x *Index) All() []domain.Conversation {
	out := make([]domain.Conversation, len(x.items))
	copy(out, x.items)
	return out
}

func (x *Index) Len() int { return len(x.items) }

// MarkRead clears the unread flag. It returns false when the conversation was
// already read or unknown.
func (x *Index) MarkRead(id string) bool {
	i, ok := x.pos[id]
	if !ok || !x.items[i].IsUnread {
		return false
	}
	x.items[i].IsUnread = false
	x.items[i].UnreadCount = 0
	return true
}

// MarkUnread flags a conversation as having unseen inbound messages.
func (x *Index) MarkUnread(id string) bool {
	i, ok := x.pos[id]
	if !ok {
		return false
	}
	x.items[i].IsUnread = true
	x.items[i].UnreadCount++
	return true
}

// SetLock records the operator handling a conversation.
func (x *Index) SetLock(id string, h *domain.Handler, expires *time.Time) bool {
	i, ok := x.pos[id]
	if !ok {
		return false
	}
	if h != nil {
		cp := *h
		h = &cp
	}
	x.items[i].CurrentHandler = h
	x.items[i].LockExpiresAt = expires
	return true
}

// ClearLock removes the handler and lock expiry.
func (x *Index) ClearLock(id string) bool {
	return x.SetLock(id, nil, nil)
}

func (x *Index) resort() {
	sort.SliceStable(x.items, func(a, b int) bool {
		return x.items[a].Time.After(x.items[b].Time)
	})
	for k := range x.pos {
		delete(x.pos, k)
	}
	for i, c := range x.items {
		x.pos[c.ID] = i
	}
}

// Filter returns the conversations matching platform (PlatformAll or empty
// for every channel) whose name contains query, case-insensitively. The input
// is not modified.
func Filter(list []domain.Conversation, platform domain.Platform, query string) []domain.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Conversation, 0, len(list))
	for _, c := range list {
		if platform != "" && platform != PlatformAll && c.Platform != platform {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) {
			continue
		}
		out = append(out, c)
	}
	return out
}
