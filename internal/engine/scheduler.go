package engine

import "time"

// DefaultPendingTimeout is how long a sent message stays pending without a
// confirming push event.
const DefaultPendingTimeout = 5 * time.Second

type scheduled struct {
	convID string
	timer  Timer
	seq    uint64
}

// Scheduler owns the pending-send timers, keyed by message id and grouped by
// conversation. It runs on the session loop; the after function must deliver
// callbacks there as well.
type Scheduler struct {
	after  func(time.Duration, func()) Timer
	seq    uint64
	timers map[string]scheduled
	byConv map[string]map[string]struct{}
}

func NewScheduler(after func(time.Duration, func()) Timer) *Scheduler {
	return &Scheduler{
		after:  after,
		timers: make(map[string]scheduled),
		byConv: make(map[string]map[string]struct{}),
	}
}

// Schedule arms fire for msgID after d, replacing any timer for that id.
func (s *Scheduler) Schedule(convID, msgID string, d time.Duration, fire func()) {
	s.Cancel(msgID)

	s.seq++
	seq := s.seq
	t := s.after(d, func() {
		cur, ok := s.timers[msgID]
		if !ok || cur.seq != seq {
			return
		}
		s.forget(msgID)
		fire()
	})
	s.timers[msgID] = scheduled{convID: convID, timer: t, seq: seq}
	if s.byConv[convID] == nil {
		s.byConv[convID] = make(map[string]struct{})
	}
	s.byConv[convID][msgID] = struct{}{}
}

// Cancel stops the timer for msgID. It returns false when none was armed.
func (s *Scheduler) Cancel(msgID string) bool {
	cur, ok := s.timers[msgID]
	if !ok {
		return false
	}
	cur.timer.Stop()
	s.forget(msgID)
	return true
}

// CancelConversation stops every timer of convID and returns how many.
func (s *Scheduler) CancelConversation(convID string) int {
	n := 0
	for id := range s.byConv[convID] {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

// CancelAll stops every timer.
func (s *Scheduler) CancelAll() int {
	n := 0
	for id := range s.timers {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

// Pending returns the number of armed timers for convID.
func (s *Scheduler) Pending(convID string) int {
	return len(s.byConv[convID])
}

// Armed reports whether msgID has a live timer.
func (s *Scheduler) Armed(msgID string) bool {
	_, ok := s.timers[msgID]
	return ok
}

func (s *Scheduler) forget(msgID string) {
	cur, ok := s.timers[msgID]
	if !ok {
		return
	}
	delete(s.timers, msgID)
	if ids := s.byConv[cur.convID]; ids != nil {
		delete(ids, msgID)
		if len(ids) == 0 {
			delete(s.byConv, cur.convID)
		}
	}
}
