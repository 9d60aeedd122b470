// Package engine keeps the operator-side view of every conversation in sync
// with the chat backend: the sidebar index, the open timeline, optimistic
// sends, read state and conversation locks.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
	"chatsync/internal/push"
)

// DefaultPageSize is the history page length.
const DefaultPageSize = 20

// Config holds the per-session tunables.
type Config struct {
	AccountID      string
	PageSize       int
	PendingTimeout time.Duration
	SearchDebounce time.Duration
	CallTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = DefaultPendingTimeout
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = DefaultSearchDebounce
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	return c
}

// Dispatcher runs a network task off the session loop.
type Dispatcher func(task func())

// GoDispatcher runs each task on its own goroutine.
func GoDispatcher(task func()) { go task() }

// Deps are the collaborators of a Session. API is required; the rest have
// usable defaults.
type Deps struct {
	API       domain.ChatAPI
	Emitter   domain.PushEmitter
	Router    *push.Router
	Selection domain.SelectionRepository
	Bus       *bus.Bus
	Clock     Clock
	Dispatch  Dispatcher
	Logger    *slog.Logger
}

// ConversationItem is one sidebar row.
type ConversationItem struct {
	domain.Conversation
	Locked   bool `json:"locked"`
	Selected bool `json:"selected"`
}

// ConversationView is the open conversation as the renderer needs it.
type ConversationView struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
	HasMore      bool                `json:"has_more"`
	Loading      bool                `json:"loading"`
	Loaded       bool                `json:"loaded"`
	Locked       bool                `json:"locked"`
	Handler      *domain.Handler     `json:"handler,omitempty"`
	CanSend      bool                `json:"can_send"`
	AtBottom     bool                `json:"at_bottom"`
}

type previewBackup struct {
	convID      string
	lastMessage string
	time        time.Time
	optimistic  time.Time
}

// Session is the sync engine of one operator account. All state is owned by
// a single loop goroutine; exported methods post work to it and are safe for
// concurrent use.
type Session struct {
	cfg      Config
	api      domain.ChatAPI
	emitter  domain.PushEmitter
	router   *push.Router
	repo     domain.SelectionRepository
	bus      *bus.Bus
	clock    Clock
	dispatch Dispatcher
	log      *slog.Logger
	owner    string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// loop-owned
	index     *Index
	timelines map[string]*Timeline
	selected  string
	atBottom  bool
	platform  domain.Platform
	rawQuery  string
	query     string
	sched     *Scheduler
	search    *Debouncer
	reads     *ReadTracker
	locks     *LockCoordinator
	unread    *UnreadCounter
	previews  map[string]previewBackup
	typing    map[string]bool
	seen      map[string]*recentIDs
	staff     map[string]domain.StaffMember
}

// NewSession builds a session and starts its loop. Call Start to load data
// and subscribe to push events, Close to release everything.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("account id: %w", domain.ErrInvalidInput)
	}
	if deps.API == nil {
		return nil, fmt.Errorf("chat api: %w", domain.ErrInvalidInput)
	}
	if deps.Bus == nil {
		deps.Bus = bus.New()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.Dispatch == nil {
		deps.Dispatch = GoDispatcher
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:       cfg,
		api:       deps.API,
		emitter:   deps.Emitter,
		router:    deps.Router,
		repo:      deps.Selection,
		bus:       deps.Bus,
		clock:     deps.Clock,
		dispatch:  deps.Dispatch,
		log:       deps.Logger.With("component", "engine", "account_id", cfg.AccountID),
		owner:     "session:" + cfg.AccountID,
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		index:     NewIndex(),
		timelines: make(map[string]*Timeline),
		atBottom:  true,
		platform:  PlatformAll,
		previews:  make(map[string]previewBackup),
		typing:    make(map[string]bool),
		seen:      make(map[string]*recentIDs),
	}
	s.sched = NewScheduler(s.afterFunc)
	s.search = NewDebouncer(s.afterFunc, cfg.SearchDebounce)
	s.reads = NewReadTracker(s.index, s.bus, s.ackRead)
	s.locks = NewLockCoordinator(cfg.AccountID, s.index)
	s.unread = NewUnreadCounter(s.bus)

	go s.loop()
	return s, nil
}

// Bus returns the session's notification bus.
func (s *Session) Bus() *bus.Bus { return s.bus }

// AccountID returns the operator account this session serves.
func (s *Session) AccountID() string { return s.cfg.AccountID }

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.done:
			return
		}
	}
}

func (s *Session) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}

// post enqueues fn without blocking. It returns false once the session is
// closed.
func (s *Session) post(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	if !s.post(func() { fn(); close(ran) }) {
		return domain.ErrSessionClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.stopped:
		return domain.ErrSessionClosed
	}
}

// Flush waits until every queued closure, including those queued by earlier
// ones, has run.
func (s *Session) Flush() error {
	for {
		var idle bool
		if err := s.do(func() {
			s.mu.Lock()
			idle = len(s.queue) == 0
			s.mu.Unlock()
		}); err != nil {
			return err
		}
		if idle {
			return nil
		}
	}
}

func (s *Session) afterFunc(d time.Duration, f func()) Timer {
	return s.clock.AfterFunc(d, func() { s.post(f) })
}

// async runs work off-loop and applies the closure it returns on the loop.
func (s *Session) async(work func(ctx context.Context) func()) {
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CallTimeout)
		defer cancel()
		if apply := work(ctx); apply != nil {
			s.post(apply)
		}
	})
}

// Start subscribes to push events, loads the conversation list and restores
// the last selected conversation.
func (s *Session) Start(ctx context.Context) error {
	if s.router != nil {
		s.subscribe()
	}
	if err := s.Refresh(ctx); errors.Is(err, domain.ErrSessionClosed) {
		return err
	}
	if s.repo == nil {
		return nil
	}

	last, err := s.repo.GetLastSelected(ctx, s.cfg.AccountID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("load last selection", "err", err)
		}
		return nil
	}
	return s.do(func() {
		if s.index.Has(last) {
			s.selectConversation(last)
		}
	})
}

func (s *Session) subscribe() {
	s.router.Set(s.owner, push.EventNewMessage, func(raw json.RawMessage) {
		ev, err := push.Decode[push.NewMessage](raw)
		if err != nil {
			s.log.Warn("drop event", "event", push.EventNewMessage, "err", err)
			return
		}
		s.post(func() { s.onNewMessage(ev) })
	})
	s.router.Set(s.owner, push.EventConversationLocked, func(raw json.RawMessage) {
		ev, err := push.Decode[push.ConversationLocked](raw)
		if err != nil {
			s.log.Warn("drop event", "event", push.EventConversationLocked, "err", err)
			return
		}
		s.post(func() { s.onLocked(ev) })
	})
	s.router.Set(s.owner, push.EventConversationUnlocked, func(raw json.RawMessage) {
		ev, err := push.Decode[push.ConversationUnlocked](raw)
		if err != nil {
			s.log.Warn("drop event", "event", push.EventConversationUnlocked, "err", err)
			return
		}
		s.post(func() { s.onUnlocked(ev) })
	})
	s.router.Set(s.owner, push.EventRequestAccess, func(raw json.RawMessage) {
		ev, err := push.Decode[push.RequestAccess](raw)
		if err != nil {
			s.log.Warn("drop event", "event", push.EventRequestAccess, "err", err)
			return
		}
		s.post(func() { s.onRequestAccess(ev) })
	})
	s.router.Set(s.owner, push.EventUpdateConversation, func(raw json.RawMessage) {
		ev, err := push.Decode[push.UpdateConversation](raw)
		if err != nil {
			s.log.Warn("drop event", "event", push.EventUpdateConversation, "err", err)
			return
		}
		s.post(func() { s.onUpdateConversation(ev) })
	})
}

// Close cancels every timer, deregisters push handlers and stops the loop.
func (s *Session) Close() error {
	s.once.Do(func() {
		_ = s.do(func() {
			s.sched.CancelAll()
			s.search.Stop()
			s.timelines = make(map[string]*Timeline)
			s.selected = ""
		})
		if s.router != nil {
			s.router.Remove(s.owner)
		}
		s.unread.Close()

		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		s.cancel()
		close(s.done)
		<-s.stopped
	})
	return nil
}

// ConnectionChanged publishes a push channel transition.
func (s *Session) ConnectionChanged(connected bool) {
	s.bus.ConnectionState.Publish(bus.ConnectionState{Connected: connected, At: s.clock.Now()})
	if connected {
		s.log.Info("push channel up")
	} else {
		s.log.Warn("push channel down")
	}
}
