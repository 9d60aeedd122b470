package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/domain"
)

// TempIDPrefix marks client-generated ids of unconfirmed messages.
const TempIDPrefix = "temp_"

// NewTempID returns an id of the form temp_<unixmillis>_<random>.
func NewTempID(now time.Time) string {
	r := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s%d_%s", TempIDPrefix, now.UnixMilli(), r)
}

// IsTempID reports whether id was generated locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ActionKind enumerates what can happen to a timeline.
type ActionKind int

const (
	// LocalSent appends an optimistic message.
	LocalSent ActionKind = iota + 1
	// Received applies a confirmed message from push or history.
	Received
	// TimedOut clears the pending flag of a message nobody confirmed.
	TimedOut
	// SendFailed records an explicit send error.
	SendFailed
)

// Action is the input of Reduce.
type Action struct {
	Kind ActionKind
	// Message is the optimistic entry for LocalSent and the confirmed copy for
	// Received.
	Message domain.Message
	// Outbound marks a Received message as sent from the business side.
	Outbound bool
	// ID targets TimedOut and SendFailed.
	ID string
	// Reason is the text shown on a failed bubble.
	Reason string
	// Oversized makes SendFailed remove the entry instead of flagging it.
	Oversized bool
}

// Outcome describes what Reduce did.
type Outcome struct {
	Changed bool
	// Duplicate is set when a Received id was already present.
	Duplicate bool
	// Matched is set when a confirmation replaced a pending entry.
	Matched    bool
	ReplacedID string
	// Index is the position of the affected entry, -1 when removed or absent.
	Index int
	// Appended is set when a new entry was added at the end.
	Appended bool
	// Removed is set when the entry was dropped.
	Removed bool
	// ImageDropped reports a pending image whose confirmation carried none.
	ImageDropped bool
}

// Reduce applies a to msgs and returns the new slice. msgs is never modified
// in place. Matching of confirmations is by content: temporary ids are never
// echoed by the server.
func Reduce(msgs []domain.Message, a Action) ([]domain.Message, Outcome) {
	out := Outcome{Index: -1}

	switch a.Kind {
	case LocalSent:
		m := a.Message
		m.Pending = true
		m.Failed = false
		next := append(clone(msgs), m)
		out.Changed, out.Appended, out.Index = true, true, len(next)-1
		return next, out

	case Received:
		m := a.Message
		m.Pending = false
		m.Failed = false
		m.ErrorMessage = ""
		if i := indexOf(msgs, m.ID); i >= 0 {
			out.Duplicate, out.Index = true, i
			return msgs, out
		}
		if a.Outbound {
			if i := matchPending(msgs, m); i >= 0 {
				next := clone(msgs)
				prev := next[i]
				if prev.HasImage() && !m.HasImage() {
					out.ImageDropped = true
					m.Image = nil
				}
				next[i] = m
				out.Changed, out.Matched, out.Index, out.ReplacedID = true, true, i, prev.ID
				return next, out
			}
		}
		next := append(clone(msgs), m)
		out.Changed, out.Appended, out.Index = true, true, len(next)-1
		return next, out

	case TimedOut:
		i := indexOf(msgs, a.ID)
		if i < 0 || !msgs[i].Pending {
			return msgs, out
		}
		next := clone(msgs)
		next[i].Pending = false
		out.Changed, out.Index = true, i
		return next, out

	case SendFailed:
		i := indexOf(msgs, a.ID)
		if i < 0 {
			return msgs, out
		}
		next := clone(msgs)
		if a.Oversized {
			next = append(next[:i], next[i+1:]...)
			out.Changed, out.Removed = true, true
			return next, out
		}
		next[i].Pending = false
		next[i].Failed = true
		next[i].ErrorMessage = a.Reason
		out.Changed, out.Index = true, i
		return next, out
	}
	return msgs, out
}

// matchPending returns the first pending entry the confirmation m resolves:
// both carry an image, or their trimmed texts are equal.
func matchPending(msgs []domain.Message, m domain.Message) int {
	text := m.TrimmedText()
	for i, p := range msgs {
		if !p.Pending {
			continue
		}
		if p.HasImage() && m.HasImage() {
			return i
		}
		if text != "" && p.TrimmedText() == text {
			return i
		}
	}
	return -1
}

func indexOf(msgs []domain.Message, id string) int {
	if id == "" {
		return -1
	}
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func clone(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return out
}
