package engine_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
	"chatsync/internal/engine"
	"chatsync/internal/push"
	"chatsync/internal/wire"
)

// MockChatAPI mocks domain.ChatAPI.
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Conversation), args.Error(1)
}

func (m *MockChatAPI) GetMessages(ctx context.Context, convID string, page domain.Page) ([]domain.Message, error) {
	args := m.Called(ctx, convID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockChatAPI) SendMessage(ctx context.Context, convID, text string) error {
	args := m.Called(ctx, convID, text)
	return args.Error(0)
}

func (m *MockChatAPI) SendAttachment(ctx context.Context, convID, image string, text *string) error {
	args := m.Called(ctx, convID, image, text)
	return args.Error(0)
}

func (m *MockChatAPI) MarkRead(ctx context.Context, convID string) error {
	args := m.Called(ctx, convID)
	return args.Error(0)
}

func (m *MockChatAPI) LockConversation(ctx context.Context, convID string) (*domain.Conversation, error) {
	args := m.Called(ctx, convID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockChatAPI) UnlockConversation(ctx context.Context, convID string) error {
	args := m.Called(ctx, convID)
	return args.Error(0)
}

func (m *MockChatAPI) UpdateNickname(ctx context.Context, conv domain.Conversation, nickname string) error {
	args := m.Called(ctx, conv.ID, nickname)
	return args.Error(0)
}

func (m *MockChatAPI) SetBotReply(ctx context.Context, convID string, enabled bool) error {
	args := m.Called(ctx, convID, enabled)
	return args.Error(0)
}

func (m *MockChatAPI) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StaffMember), args.Error(1)
}

// MockEmitter mocks domain.PushEmitter.
type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) Emit(event string, payload any) error {
	args := m.Called(event, payload)
	return args.Error(0)
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) engine.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Active counts timers that are neither stopped nor fired.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func inline(task func()) { task() }

type taskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *taskQueue) dispatch(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// next runs the oldest queued task on the caller's goroutine.
func (q *taskQueue) next(t *testing.T) {
	t.Helper()
	q.mu.Lock()
	tasks := q.tasks
	if len(tasks) > 0 {
		q.tasks = tasks[1:]
	}
	q.mu.Unlock()
	require.NotEmpty(t, tasks)
	tasks[0]()
}

// recorder captures bus traffic.
type recorder struct {
	mu       sync.Mutex
	toasts   []bus.Toast
	alerts   []bus.Alert
	timeline []bus.TimelineChanged
	resets   []bus.UnreadReset
	totals   []bus.UnreadTotal
	access   []bus.AccessRequested
	updated  []bus.ConversationUpdated
}

func record(b *bus.Bus) *recorder {
	r := &recorder{}
	b.Toast.Subscribe(func(v bus.Toast) { r.mu.Lock(); r.toasts = append(r.toasts, v); r.mu.Unlock() })
	b.Alert.Subscribe(func(v bus.Alert) { r.mu.Lock(); r.alerts = append(r.alerts, v); r.mu.Unlock() })
	b.TimelineChanged.Subscribe(func(v bus.TimelineChanged) { r.mu.Lock(); r.timeline = append(r.timeline, v); r.mu.Unlock() })
	b.UnreadReset.Subscribe(func(v bus.UnreadReset) { r.mu.Lock(); r.resets = append(r.resets, v); r.mu.Unlock() })
	b.UnreadTotal.Subscribe(func(v bus.UnreadTotal) { r.mu.Lock(); r.totals = append(r.totals, v); r.mu.Unlock() })
	b.AccessRequested.Subscribe(func(v bus.AccessRequested) { r.mu.Lock(); r.access = append(r.access, v); r.mu.Unlock() })
	b.ConversationUpdated.Subscribe(func(v bus.ConversationUpdated) { r.mu.Lock(); r.updated = append(r.updated, v); r.mu.Unlock() })
	return r
}

func (r *recorder) lastTimeline() bus.TimelineChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.timeline) == 0 {
		return bus.TimelineChanged{}
	}
	return r.timeline[len(r.timeline)-1]
}

type harness struct {
	t       *testing.T
	api     *MockChatAPI
	emitter *MockEmitter
	router  *push.Router
	clock   *fakeClock
	bus     *bus.Bus
	rec     *recorder
	sess    *engine.Session
}

const me = "acc-1"

func newHarness(t *testing.T, pageSize int, convs ...domain.Conversation) *harness {
	t.Helper()
	return newHarnessWith(t, pageSize, inline, convs...)
}

// newQueuedHarness holds background work until the test runs it.
func newQueuedHarness(t *testing.T, pageSize int, convs ...domain.Conversation) (*harness, *taskQueue) {
	t.Helper()
	q := &taskQueue{}
	return newHarnessWith(t, pageSize, q.dispatch, convs...), q
}

func newHarnessWith(t *testing.T, pageSize int, dispatch engine.Dispatcher, convs ...domain.Conversation) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		api:     new(MockChatAPI),
		emitter: new(MockEmitter),
		router:  push.NewRouter(),
		clock:   newFakeClock(),
		bus:     bus.New(),
	}
	h.rec = record(h.bus)
	h.api.On("ListConversations", mock.Anything).Return(convs, nil).Once()
	h.api.On("MarkRead", mock.Anything, mock.Anything).Return(nil).Maybe()

	sess, err := engine.NewSession(engine.Config{AccountID: me, PageSize: pageSize}, engine.Deps{
		API:      h.api,
		Emitter:  h.emitter,
		Router:   h.router,
		Bus:      h.bus,
		Clock:    h.clock,
		Dispatch: dispatch,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	h.sess = sess
	t.Cleanup(func() { _ = sess.Close() })

	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Flush())
	return h
}

// push delivers a server event as the socket client would.
func (h *harness) push(event string, payload any) {
	h.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(h.t, err)
	h.router.Dispatch(event, raw)
	require.NoError(h.t, h.sess.Flush())
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	require.NoError(h.t, h.sess.Flush())
}

func (h *harness) open(convID string, history []domain.Message) engine.ConversationView {
	h.t.Helper()
	h.api.On("GetMessages", mock.Anything, convID, mock.MatchedBy(func(p domain.Page) bool { return p.Skip == 0 })).
		Return(history, nil).Once()
	require.NoError(h.t, h.sess.Select(convID))
	require.NoError(h.t, h.sess.Flush())
	view, ok, err := h.sess.View()
	require.NoError(h.t, err)
	require.True(h.t, ok)
	return view
}

func (h *harness) view() engine.ConversationView {
	h.t.Helper()
	view, ok, err := h.sess.View()
	require.NoError(h.t, err)
	require.True(h.t, ok)
	return view
}

type (
	wireDoc     = wire.MessageDoc
	wireProfile = wire.Profile
)

func conv(id, name string, at time.Time) domain.Conversation {
	p, oa, cust, _ := domain.ParseConversationID(id)
	return domain.Conversation{
		ID:             id,
		Platform:       p,
		OAID:           oa,
		CustomerID:     cust,
		Name:           name,
		Time:           at,
		LastMessage:    "old",
		PlatformStatus: domain.PlatformStatus{IsConnected: true},
	}
}

func textMsg(id, text string, sender domain.Sender) domain.Message {
	t := text
	return domain.Message{ID: id, Text: &t, Sender: sender}
}

func history(n int, prefix string) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = textMsg(prefix+string(rune('a'+i)), "m", domain.SenderCustomer)
	}
	return out
}

func strPtr(s string) *string { return &s }

func outbound(convID, id, text string) push.NewMessage {
	return push.NewMessage{
		ConvID:     convID,
		Direction:  "out",
		Message:    strPtr(text),
		SentAt:     "2025-03-01T10:00:02Z",
		MessageDoc: &wireDoc{ID: id, Text: strPtr(text), Direction: "out", CreatedAt: "2025-03-01T10:00:02Z"},
	}
}

func inbound(convID, id, text string) push.NewMessage {
	return push.NewMessage{
		ConvID:     convID,
		Direction:  "in",
		Message:    strPtr(text),
		ReceivedAt: "2025-03-01T10:05:00Z",
		MessageDoc: &wireDoc{ID: id, Text: strPtr(text), Direction: "in", CreatedAt: "2025-03-01T10:05:00Z"},
	}
}

// MockSelections mocks domain.SelectionRepository.
type MockSelections struct {
	mock.Mock
}

func (m *MockSelections) GetLastSelected(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *MockSelections) SetLastSelected(ctx context.Context, accountID, convID string) error {
	return m.Called(ctx, accountID, convID).Error(0)
}

func (m *MockSelections) ClearLastSelected(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}
