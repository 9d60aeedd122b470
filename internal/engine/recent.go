package engine

// recentLimit bounds the message ids remembered per conversation.
const recentLimit = 200

// recentIDs is a fixed-size memory of delivered message ids. The oldest id is
// forgotten once the ring is full.
type recentIDs struct {
	ring []string
	next int
	set  map[string]struct{}
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{ring: make([]string, n), set: make(map[string]struct{}, n)}
}

// Seen records id and reports whether it was already present.
func (r *recentIDs) Seen(id string) bool {
	if _, ok := r.set[id]; ok {
		return true
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
	return false
}

// seenMessage reports whether the message id was already delivered for
// convID, remembering it otherwise.
func (s *Session) seenMessage(convID, id string) bool {
	if id == "" {
		return false
	}
	r := s.seen[convID]
	if r == nil {
		r = newRecentIDs(recentLimit)
		s.seen[convID] = r
	}
	return r.Seen(id)
}
