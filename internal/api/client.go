// Package api implements domain.ChatAPI against the chat backend REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chatsync/internal/domain"
	"chatsync/internal/wire"
)

const (
	headerAccountID = "X-Account-Id"
	codeImageLarge  = "IMAGE_TOO_LARGE"
	staffPageLimit  = 200
)

// Error is a non-2xx backend response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// Client talks to the backend on behalf of one account.
type Client struct {
	HTTP      *http.Client
	BaseURL   string
	AccountID string
	Logger    *slog.Logger
}

// NewClient builds a client; a nil httpClient uses http.DefaultClient.
func NewClient(baseURL, accountID string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		HTTP:      httpClient,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AccountID: accountID,
		Logger:    logger,
	}
}

var _ domain.ChatAPI = (*Client)(nil)

// routeFor maps a conversation to the backend route family serving it.
func routeFor(convID string) (string, error) {
	p, _, _, err := domain.ParseConversationID(convID)
	if err != nil {
		return "", err
	}
	switch p {
	case domain.PlatformFacebook, domain.PlatformInstagram:
		return "facebook", nil
	case domain.PlatformZalo:
		return "zalo", nil
	case domain.PlatformWidget:
		return "widget", nil
	}
	return "", fmt.Errorf("platform %q: %w", p, domain.ErrInvalidInput)
}

func conversationPath(convID, suffix string) (string, error) {
	route, err := routeFor(convID)
	if err != nil {
		return "", err
	}
	return "/api/" + route + "/conversations/" + url.PathEscape(convID) + suffix, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var docs []wire.ConversationDoc
	if err := c.do(ctx, http.MethodGet, "/api/integrations/conversations/all", nil, nil, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		out = append(out, d.ToDomain())
	}
	return out, nil
}

func (c *Client) GetMessages(ctx context.Context, convID string, page domain.Page) ([]domain.Message, error) {
	path, err := conversationPath(convID, "/messages")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Skip > 0 {
		q.Set("skip", strconv.Itoa(page.Skip))
	}
	var docs []wire.MessageDoc
	if err := c.do(ctx, http.MethodGet, path, q, nil, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		m := d.ToDomain()
		if m.ID == "" {
			m.ID = wire.FallbackID(convID, d.CreatedAt, m.TrimmedText())
		}
		out = append(out, m)
	}
	return out, nil
}

type sendRequest struct {
	Text  *string `json:"text"`
	Image string  `json:"image,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, convID, text string) error {
	return c.send(ctx, convID, sendRequest{Text: &text})
}

func (c *Client) SendAttachment(ctx context.Context, convID, image string, text *string) error {
	return c.send(ctx, convID, sendRequest{Text: text, Image: image})
}

func (c *Client) send(ctx context.Context, convID string, body sendRequest) error {
	path, err := conversationPath(convID, "/messages")
	if err != nil {
		return err
	}
	err = c.do(ctx, http.MethodPost, path, nil, body, nil)
	var apiErr *Error
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusRequestEntityTooLarge || apiErr.Code == codeImageLarge) {
		return fmt.Errorf("%w: %s", domain.ErrImageTooLarge, apiErr.Error())
	}
	return err
}

func (c *Client) MarkRead(ctx context.Context, convID string) error {
	path, err := conversationPath(convID, "/mark-read")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

func (c *Client) LockConversation(ctx context.Context, convID string) (*domain.Conversation, error) {
	var doc wire.ConversationDoc
	err := c.do(ctx, http.MethodPost, "/api/integrations/conversations/"+url.PathEscape(convID)+"/lock", nil, nil, &doc)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return nil, fmt.Errorf("%w: %s", domain.ErrConversationLocked, apiErr.Error())
	}
	if err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, nil
	}
	conv := doc.ToDomain()
	return &conv, nil
}

func (c *Client) UnlockConversation(ctx context.Context, convID string) error {
	return c.do(ctx, http.MethodPost, "/api/integrations/conversations/"+url.PathEscape(convID)+"/unlock", nil, nil, nil)
}

type nicknameRequest struct {
	OAID       string `json:"oa_id"`
	CustomerID string `json:"customer_id"`
	NickName   string `json:"nick_name"`
}

func (c *Client) UpdateNickname(ctx context.Context, conv domain.Conversation, nickname string) error {
	body := nicknameRequest{OAID: conv.OAID, CustomerID: conv.CustomerID, NickName: nickname}
	return c.do(ctx, http.MethodPost, "/api/integrations/conversations/nickname", nil, body, nil)
}

func (c *Client) SetBotReply(ctx context.Context, convID string, enabled bool) error {
	path, err := conversationPath(convID, "/bot-reply")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, map[string]bool{"enabled": enabled}, nil)
}

func (c *Client) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	q := url.Values{}
	q.Set("skip", "0")
	q.Set("limit", strconv.Itoa(staffPageLimit))
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/user/staff", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeStaff(raw)
}

// decodeStaff accepts a bare list or a {"items": [...]} page.
func decodeStaff(raw json.RawMessage) ([]domain.StaffMember, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []domain.StaffMember
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var page struct {
		Items []domain.StaffMember `json:"items"`
		Staff []domain.StaffMember `json:"staff"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode staff: %w", err)
	}
	if page.Items != nil {
		return page.Items, nil
	}
	return page.Staff, nil
}

// do issues one request and unwraps the response envelope into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil || c.HTTP == nil {
		return errors.New("api: http client not configured")
	}
	if c.AccountID == "" {
		return errors.New("api: account id not configured")
	}

	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(headerAccountID, c.AccountID)

	resp, err := c.HTTP.Do(request)
	if err != nil {
		c.logError("backend request failed", method, path, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errorFromResponse(resp.StatusCode, snippet)
		c.logError("backend returned error", method, path, err)
		return err
	}

	var env wire.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		c.logError("backend decode failed", method, path, err)
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if !env.Success {
		err := &Error{Status: resp.StatusCode, Code: env.ErrorCode, Message: env.Message}
		c.logError("backend reported failure", method, path, err)
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}

func errorFromResponse(status int, snippet []byte) *Error {
	var env wire.Envelope
	if err := json.Unmarshal(snippet, &env); err == nil && (env.Message != "" || env.ErrorCode != "") {
		return &Error{Status: status, Code: env.ErrorCode, Message: env.Message}
	}
	return &Error{
		Status:  status,
		Message: fmt.Sprintf("backend returned status %d: %s", status, strings.TrimSpace(string(snippet))),
	}
}

func (c *Client) logError(msg, method, path string, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Error(msg, "method", method, "path", path, "error", err)
}
