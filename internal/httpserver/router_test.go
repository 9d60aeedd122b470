package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/engine"
	"chatsync/internal/security"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) AccountID() string { return "acc-1" }

func (m *MockEngine) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEngine) Conversations() ([]engine.ConversationItem, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]engine.ConversationItem), args.Error(1)
}

func (m *MockEngine) Conversation(convID string) (domain.Conversation, error) {
	args := m.Called(convID)
	return args.Get(0).(domain.Conversation), args.Error(1)
}

func (m *MockEngine) SetPlatformFilter(p domain.Platform) error {
	return m.Called(p).Error(0)
}

func (m *MockEngine) SetSearch(q string) error {
	return m.Called(q).Error(0)
}

func (m *MockEngine) UnreadTotal() int {
	return m.Called().Int(0)
}

func (m *MockEngine) Select(convID string) error {
	return m.Called(convID).Error(0)
}

func (m *MockEngine) Deselect() error {
	return m.Called().Error(0)
}

func (m *MockEngine) View() (engine.ConversationView, bool, error) {
	args := m.Called()
	return args.Get(0).(engine.ConversationView), args.Bool(1), args.Error(2)
}

func (m *MockEngine) LoadOlder() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockEngine) UpdateViewport(v engine.Viewport) error {
	return m.Called(v).Error(0)
}

func (m *MockEngine) SendText(convID, text string) (string, error) {
	args := m.Called(convID, text)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) SendImage(convID, image string, caption *string) (string, error) {
	args := m.Called(convID, image, caption)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) MarkRead(convID string) error {
	return m.Called(convID).Error(0)
}

func (m *MockEngine) RequestAccess(convID string) error {
	return m.Called(convID).Error(0)
}

func (m *MockEngine) Claim(ctx context.Context, convID string) error {
	return m.Called(ctx, convID).Error(0)
}

func (m *MockEngine) Release(ctx context.Context, convID string) error {
	return m.Called(ctx, convID).Error(0)
}

func (m *MockEngine) Rename(ctx context.Context, convID, nickname string) error {
	return m.Called(ctx, convID, nickname).Error(0)
}

func (m *MockEngine) SetBotReply(ctx context.Context, convID string, enabled bool) error {
	return m.Called(ctx, convID, enabled).Error(0)
}

func (m *MockEngine) SetTyping(convID string, typing bool) error {
	return m.Called(convID, typing).Error(0)
}

type fixture struct {
	eng   *MockEngine
	h     http.Handler
	token string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := security.NewTokenService("secret", time.Hour)
	tok, err := tokens.CreateForAccount("acc-1")
	require.NoError(t, err)
	eng := new(MockEngine)
	h := NewRouter(eng, Options{
		CORSOrigins: []string{"http://localhost:3000"},
		Tokens:      tokens,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{eng: eng, h: h, token: tok}
}

func (f *fixture) do(method, path, body string) (*httptest.ResponseRecorder, Response) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSocketRouteHasNoDeadline(t *testing.T) {
	deadlines := map[string]bool{}
	socket := func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		deadlines[r.URL.Path] = ok
		w.WriteHeader(http.StatusNoContent)
	}
	eng := new(MockEngine)
	h := NewRouter(eng, Options{
		Tokens: security.NewTokenService("secret", time.Hour),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Socket: http.HandlerFunc(socket),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, deadlines["/ws"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t)

	t.Run("MissingHeader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("TokenForOtherAccount", func(t *testing.T) {
		other, err := security.NewTokenService("secret", time.Hour).CreateForAccount("acc-2")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		rec := httptest.NewRecorder()
		f.h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestConversationRoutes(t *testing.T) {
	f := newFixture(t)

	t.Run("List", func(t *testing.T) {
		items := []engine.ConversationItem{{Conversation: domain.Conversation{ID: "zalo:oa1:u1", Name: "Hoa"}, Selected: true}}
		f.eng.On("Conversations").Return(items, nil).Once()
		f.eng.On("UnreadTotal").Return(3).Once()

		rec, resp := f.do(http.MethodGet, "/api/conversations", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Contains(t, rec.Body.String(), `"unread_total":3`)
		assert.Contains(t, rec.Body.String(), `"selected":true`)
	})

	t.Run("GetUnknownIs404", func(t *testing.T) {
		f.eng.On("Conversation", "zalo:oa1:nope").
			Return(domain.Conversation{}, fmt.Errorf("conversation zalo:oa1:nope: %w", domain.ErrNotFound)).Once()
		rec, resp := f.do(http.MethodGet, "/api/conversations/zalo:oa1:nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("Filter", func(t *testing.T) {
		f.eng.On("SetPlatformFilter", domain.PlatformZalo).Return(nil).Once()
		f.eng.On("SetSearch", "lan").Return(nil).Once()
		rec, _ := f.do(http.MethodPut, "/api/filter", `{"platform":"zalo","query":"lan"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("FilterRejectsUnknownPlatform", func(t *testing.T) {
		rec, _ := f.do(http.MethodPut, "/api/filter", `{"platform":"telegram"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RenameValidates", func(t *testing.T) {
		rec, _ := f.do(http.MethodPut, "/api/conversations/zalo:oa1:u1/nickname", `{"nickname":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		f.eng.On("Rename", mock.Anything, "zalo:oa1:u1", "VIP").Return(nil).Once()
		rec, _ = f.do(http.MethodPut, "/api/conversations/zalo:oa1:u1/nickname", `{"nickname":" VIP "}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("BotReplyRequiresFlag", func(t *testing.T) {
		rec, _ := f.do(http.MethodPut, "/api/conversations/zalo:oa1:u1/bot-reply", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		f.eng.On("SetBotReply", mock.Anything, "zalo:oa1:u1", false).Return(nil).Once()
		rec, _ = f.do(http.MethodPut, "/api/conversations/zalo:oa1:u1/bot-reply", `{"enabled":false}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ClaimConflict", func(t *testing.T) {
		f.eng.On("Claim", mock.Anything, "zalo:oa1:u1").Return(domain.ErrConversationLocked).Once()
		rec, resp := f.do(http.MethodPost, "/api/conversations/zalo:oa1:u1/claim", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, domain.ErrConversationLocked.Error(), resp.Message)
	})

	f.eng.AssertExpectations(t)
}

func TestSendRoutes(t *testing.T) {
	f := newFixture(t)

	t.Run("Text", func(t *testing.T) {
		f.eng.On("SendText", "facebook:p1:u1", "hello").Return("temp_1_abc", nil).Once()
		rec, _ := f.do(http.MethodPost, "/api/conversations/facebook:p1:u1/messages", `{"text":"hello"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"temp_id":"temp_1_abc"`)
	})

	t.Run("ImageWithCaption", func(t *testing.T) {
		f.eng.On("SendImage", "facebook:p1:u1", "data:image/png;base64,AA", mock.MatchedBy(func(c *string) bool {
			return c != nil && *c == "look"
		})).Return("temp_2_abc", nil).Once()
		rec, _ := f.do(http.MethodPost, "/api/conversations/facebook:p1:u1/messages", `{"image":"data:image/png;base64,AA","caption":"look"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		rec, _ := f.do(http.MethodPost, "/api/conversations/facebook:p1:u1/messages", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Locked", func(t *testing.T) {
		f.eng.On("SendText", "facebook:p1:u2", "hi").Return("", domain.ErrConversationLocked).Once()
		rec, _ := f.do(http.MethodPost, "/api/conversations/facebook:p1:u2/messages", `{"text":"hi"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Disconnected", func(t *testing.T) {
		f.eng.On("SendText", "facebook:p1:u3", "hi").Return("", domain.ErrPlatformDisconnected).Once()
		rec, _ := f.do(http.MethodPost, "/api/conversations/facebook:p1:u3/messages", `{"text":"hi"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	f.eng.AssertExpectations(t)
}

func TestSelectionRoutes(t *testing.T) {
	f := newFixture(t)

	t.Run("NothingSelected", func(t *testing.T) {
		f.eng.On("View").Return(engine.ConversationView{}, false, nil).Once()
		rec, _ := f.do(http.MethodGet, "/api/selection", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Select", func(t *testing.T) {
		rec, _ := f.do(http.MethodPost, "/api/selection", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		f.eng.On("Select", "zalo:oa1:u1").Return(nil).Once()
		rec, _ = f.do(http.MethodPost, "/api/selection", `{"conv_id":"zalo:oa1:u1"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("Viewport", func(t *testing.T) {
		f.eng.On("UpdateViewport", engine.Viewport{ScrollTop: 5, ScrollHeight: 900, ClientHeight: 300}).Return(nil).Once()
		rec, _ := f.do(http.MethodPut, "/api/selection/viewport", `{"scroll_top":5,"scroll_height":900,"client_height":300}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Older", func(t *testing.T) {
		f.eng.On("LoadOlder").Return(true, nil).Once()
		rec, _ := f.do(http.MethodPost, "/api/selection/older", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"started":true`)
	})

	t.Run("Deselect", func(t *testing.T) {
		f.eng.On("Deselect").Return(nil).Once()
		rec, _ := f.do(http.MethodDelete, "/api/selection", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	f.eng.AssertExpectations(t)
}
