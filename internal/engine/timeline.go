package engine

import (
	"chatsync/internal/domain"
)

// Timeline is the loaded window of one conversation, oldest first, with the
// cursor for backward pagination.
type Timeline struct {
	ConvID   string
	Messages []domain.Message
	Skip     int
	Limit    int
	HasMore  bool
	Loading  bool
	Loaded   bool
}

func NewTimeline(convID string, limit int) *Timeline {
	return &Timeline{ConvID: convID, Limit: limit}
}

// ApplyInitial installs the most recent page. Entries added while the page
// was in flight, such as pending sends and live pushes, stay after it.
// HasMore is a heuristic: a full page suggests more history exists.
func (t *Timeline) ApplyInitial(msgs []domain.Message) {
	page := dedup(nil, msgs)
	t.Messages = append(page, dedup(page, t.Messages)...)
	t.Skip = len(msgs)
	t.HasMore = len(msgs) > 0 && len(msgs) == t.Limit
	t.Loading = false
	t.Loaded = true
}

// BeginOlder reserves the single backward fetch slot. It returns false when
// there is no more history or a fetch is already in flight.
func (t *Timeline) BeginOlder() (domain.Page, bool) {
	if !t.HasMore || t.Loading {
		return domain.Page{}, false
	}
	t.Loading = true
	return domain.Page{Limit: t.Limit, Skip: t.Skip}, true
}

// ApplyOlder prepends an older page and returns how many entries were
// inserted.
func (t *Timeline) ApplyOlder(msgs []domain.Message) int {
	t.Loading = false
	t.Skip += len(msgs)
	t.HasMore = len(msgs) > 0 && len(msgs) == t.Limit

	older := dedup(t.Messages, msgs)
	if len(older) == 0 {
		return 0
	}
	next := make([]domain.Message, 0, len(older)+len(t.Messages))
	next = append(next, older...)
	next = append(next, t.Messages...)
	t.Messages = next
	return len(older)
}

// FailOlder releases the fetch slot after an error. HasMore is kept so a
// later scroll can retry.
func (t *Timeline) FailOlder() {
	t.Loading = false
}

// Apply runs the reducer on the timeline's messages.
func (t *Timeline) Apply(a Action) Outcome {
	next, out := Reduce(t.Messages, a)
	t.Messages = next
	return out
}

// Find returns the message with id.
func (t *Timeline) Find(id string) (domain.Message, bool) {
	if i := indexOf(t.Messages, id); i >= 0 {
		return t.Messages[i], true
	}
	return domain.Message{}, false
}

// Snapshot returns a copy of the messages.
func (t *Timeline) Snapshot() []domain.Message {
	out := make([]domain.Message, len(t.Messages))
	copy(out, t.Messages)
	return out
}

// dedup returns the entries of msgs whose id is neither in existing nor
// repeated earlier in msgs.
func dedup(existing, msgs []domain.Message) []domain.Message {
	seen := make(map[string]struct{}, len(existing)+len(msgs))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}
