package engine

import "time"

// DefaultSearchDebounce is the quiet period before a search query applies.
const DefaultSearchDebounce = 300 * time.Millisecond

// Debouncer runs only the last of a burst of calls once the burst has been
// quiet for the configured delay. Like Scheduler it lives on the session loop.
type Debouncer struct {
	after func(time.Duration, func()) Timer
	delay time.Duration
	seq   uint64
	timer Timer
}

func NewDebouncer(after func(time.Duration, func()) Timer, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}
	return &Debouncer{after: after, delay: delay}
}

// Trigger schedules fn, discarding any call still waiting.
func (d *Debouncer) Trigger(fn func()) {
	d.Stop()
	d.seq++
	seq := d.seq
	d.timer = d.after(d.delay, func() {
		if seq != d.seq {
			return
		}
		d.timer = nil
		fn()
	})
}

// Stop drops the waiting call, if any.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
