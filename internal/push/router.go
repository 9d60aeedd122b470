package push

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

// Router fans incoming events out to registered handlers. Each owner holds at
// most one handler per event: registering again replaces the old closure.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]map[string]Handler),
	}
}

// Set registers h for event under owner, replacing any previous handler the
// owner had for that event.
func (r *Router) Set(owner, event string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers[event] == nil {
		r.handlers[event] = make(map[string]Handler)
	}
	r.handlers[event][owner] = h
}

// Remove deregisters every handler of owner.
func (r *Router) Remove(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for event, byOwner := range r.handlers {
		delete(byOwner, owner)
		if len(byOwner) == 0 {
			delete(r.handlers, event)
		}
	}
}

// Dispatch invokes every handler registered for event and returns how many
// ran. Handlers run outside the lock so they may re-register.
func (r *Router) Dispatch(event string, payload json.RawMessage) int {
	r.mu.RLock()
	hs := make([]Handler, 0, len(r.handlers[event]))
	for _, h := range r.handlers[event] {
		hs = append(hs, h)
	}
	r.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
	return len(hs)
}
