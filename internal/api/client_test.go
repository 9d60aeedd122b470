package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
)

type captured struct {
	method  string
	path    string
	query   string
	account string
	body    map[string]any
}

func newTestClient(t *testing.T, status int, response string) (*Client, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.account = r.Header.Get("X-Account-Id")
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL+"/", "acc-1", srv.Client(), logger), got
}

func TestListConversations(t *testing.T) {
	c, got := newTestClient(t, http.StatusOK, `{"success":true,"data":[
		{"id":"zalo:oa1:u1","platform":"zalo","oa_id":"oa1","customer_id":"u1","name":"Hoa",
		 "lastMessage":"hi","time":"2025-03-01T10:00:00","unreadCount":2,
		 "current_handler":{"accountId":"acc-2","name":"Minh"},
		 "platform_status":{"is_connected":false}},
		{"platform":"zalo","name":"no id"}
	]}`)

	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/integrations/conversations/all", got.path)
	assert.Equal(t, "acc-1", got.account)

	require.Len(t, convs, 1)
	assert.Equal(t, "Hoa", convs[0].Name)
	assert.True(t, convs[0].IsUnread)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.False(t, convs[0].PlatformStatus.IsConnected)
	require.NotNil(t, convs[0].CurrentHandler)
	assert.Equal(t, "acc-2", convs[0].CurrentHandler.AccountID)
}

func TestGetMessages(t *testing.T) {
	t.Run("RoutesAndPaginates", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true,"data":[
			{"_id":"m1","text":"hello","direction":"in","created_at":"2025-03-01T10:00:00Z"},
			{"_id":"m2","text":null,"direction":"out","created_at":"2025-03-01T10:01:00Z",
			 "metadata":{"attachments":[{"type":"image","payload":{"url":"https://cdn/x.png"}}]}}
		]}`)

		msgs, err := c.GetMessages(context.Background(), "instagram:ig1:u1", domain.Page{Limit: 20, Skip: 40})
		require.NoError(t, err)
		assert.Equal(t, "/api/facebook/conversations/instagram:ig1:u1/messages", got.path)
		assert.Equal(t, "limit=20&skip=40", got.query)

		require.Len(t, msgs, 2)
		assert.Equal(t, domain.SenderCustomer, msgs[0].Sender)
		assert.Equal(t, domain.SenderUser, msgs[1].Sender)
		require.NotNil(t, msgs[1].Image)
		assert.Equal(t, "https://cdn/x.png", *msgs[1].Image)
	})

	t.Run("FirstPageOmitsSkip", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true,"data":[]}`)
		_, err := c.GetMessages(context.Background(), "zalo:oa1:u1", domain.Page{Limit: 20})
		require.NoError(t, err)
		assert.Equal(t, "/api/zalo/conversations/zalo:oa1:u1/messages", got.path)
		assert.Equal(t, "limit=20", got.query)
	})

	t.Run("MissingIDGetsStableFallback", func(t *testing.T) {
		body := `{"success":true,"data":[{"text":"x","direction":"in","created_at":"2025-03-01T10:00:00Z"}]}`
		c, _ := newTestClient(t, http.StatusOK, body)
		a, err := c.GetMessages(context.Background(), "zalo:oa1:u1", domain.Page{Limit: 1})
		require.NoError(t, err)
		b, err := c.GetMessages(context.Background(), "zalo:oa1:u1", domain.Page{Limit: 1})
		require.NoError(t, err)
		assert.NotEmpty(t, a[0].ID)
		assert.Equal(t, a[0].ID, b[0].ID)
	})

	t.Run("BadConversationID", func(t *testing.T) {
		c, _ := newTestClient(t, http.StatusOK, `{}`)
		_, err := c.GetMessages(context.Background(), "nonsense", domain.Page{Limit: 1})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSend(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true}`)
		require.NoError(t, c.SendMessage(context.Background(), "facebook:p1:u1", "hello"))
		assert.Equal(t, http.MethodPost, got.method)
		assert.Equal(t, "/api/facebook/conversations/facebook:p1:u1/messages", got.path)
		assert.Equal(t, map[string]any{"text": "hello"}, got.body)
	})

	t.Run("Attachment", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true}`)
		require.NoError(t, c.SendAttachment(context.Background(), "widget:w1:u1", "data:image/png;base64,AA", nil))
		assert.Equal(t, "/api/widget/conversations/widget:w1:u1/messages", got.path)
		assert.Equal(t, map[string]any{"text": nil, "image": "data:image/png;base64,AA"}, got.body)
	})

	t.Run("PayloadTooLarge", func(t *testing.T) {
		c, _ := newTestClient(t, http.StatusRequestEntityTooLarge, `<html>too large</html>`)
		err := c.SendAttachment(context.Background(), "zalo:oa1:u1", "data:...", nil)
		assert.ErrorIs(t, err, domain.ErrImageTooLarge)
	})

	t.Run("ImageTooLargeCode", func(t *testing.T) {
		c, _ := newTestClient(t, http.StatusBadRequest, `{"success":false,"message":"Image too big","error_code":"IMAGE_TOO_LARGE"}`)
		err := c.SendAttachment(context.Background(), "zalo:oa1:u1", "data:...", nil)
		assert.ErrorIs(t, err, domain.ErrImageTooLarge)
	})

	t.Run("GenericFailureKeepsMessage", func(t *testing.T) {
		c, _ := newTestClient(t, http.StatusBadGateway, `{"success":false,"message":"Zalo API error"}`)
		err := c.SendMessage(context.Background(), "zalo:oa1:u1", "hi")
		var apiErr *Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.Equal(t, "Zalo API error", err.Error())
		assert.False(t, errors.Is(err, domain.ErrImageTooLarge))
	})

	t.Run("SuccessFalseOnOK", func(t *testing.T) {
		c, _ := newTestClient(t, http.StatusOK, `{"success":false,"message":"rejected"}`)
		err := c.SendMessage(context.Background(), "zalo:oa1:u1", "hi")
		assert.EqualError(t, err, "rejected")
	})
}

func TestConversationActions(t *testing.T) {
	t.Run("MarkRead", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true}`)
		require.NoError(t, c.MarkRead(context.Background(), "zalo:oa1:u1"))
		assert.Equal(t, "/api/zalo/conversations/zalo:oa1:u1/mark-read", got.path)
	})

	t.Run("Lock", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true,"data":{"id":"zalo:oa1:u1","platform":"zalo","current_handler":{"accountId":"acc-1","name":"Me"},"lock_expires_at":"2025-03-01T10:30:00Z"}}`)
		conv, err := c.LockConversation(context.Background(), "zalo:oa1:u1")
		require.NoError(t, err)
		assert.Equal(t, "/api/integrations/conversations/zalo:oa1:u1/lock", got.path)
		require.NotNil(t, conv)
		assert.Equal(t, "acc-1", conv.CurrentHandler.AccountID)
		assert.NotNil(t, conv.LockExpiresAt)
	})

	t.Run("LockConflict", func(t *testing.T) {
		c, _ := newTestClient(t, http.StatusConflict, `{"success":false,"message":"Conversation already locked"}`)
		_, err := c.LockConversation(context.Background(), "zalo:oa1:u1")
		assert.ErrorIs(t, err, domain.ErrConversationLocked)
	})

	t.Run("Unlock", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true}`)
		require.NoError(t, c.UnlockConversation(context.Background(), "zalo:oa1:u1"))
		assert.Equal(t, "/api/integrations/conversations/zalo:oa1:u1/unlock", got.path)
	})

	t.Run("Nickname", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true}`)
		conv := domain.Conversation{ID: "zalo:oa1:u1", OAID: "oa1", CustomerID: "u1"}
		require.NoError(t, c.UpdateNickname(context.Background(), conv, "VIP"))
		assert.Equal(t, "/api/integrations/conversations/nickname", got.path)
		assert.Equal(t, map[string]any{"oa_id": "oa1", "customer_id": "u1", "nick_name": "VIP"}, got.body)
	})

	t.Run("BotReply", func(t *testing.T) {
		c, got := newTestClient(t, http.StatusOK, `{"success":true}`)
		require.NoError(t, c.SetBotReply(context.Background(), "zalo:oa1:u1", true))
		assert.Equal(t, "/api/zalo/conversations/zalo:oa1:u1/bot-reply", got.path)
		assert.Equal(t, map[string]any{"enabled": true}, got.body)
	})
}

func TestListStaff(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"BareList", `{"success":true,"data":[{"accountId":"acc-2","name":"Minh"}]}`},
		{"ItemsPage", `{"success":true,"data":{"items":[{"accountId":"acc-2","name":"Minh"}],"total":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, got := newTestClient(t, http.StatusOK, tt.body)
			staff, err := c.ListStaff(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "/api/user/staff", got.path)
			assert.Equal(t, []domain.StaffMember{{AccountID: "acc-2", Name: "Minh"}}, staff)
		})
	}
}

func TestClientRequiresAccount(t *testing.T) {
	c := NewClient("http://localhost", "", nil, nil)
	_, err := c.ListConversations(context.Background())
	assert.Error(t, err)
}
