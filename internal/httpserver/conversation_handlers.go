package httpserver

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatsync/internal/domain"
	"chatsync/internal/engine"
)

type conversationListResponse struct {
	Conversations []engine.ConversationItem `json:"conversations"`
	UnreadTotal   int                       `json:"unread_total"`
}

type filterRequest struct {
	Platform string  `json:"platform" validate:"omitempty,oneof=all facebook instagram zalo widget"`
	Query    *string `json:"query"`
}

func (f *filterRequest) Bind(_ *http.Request) error {
	return validateStruct(f)
}

type nicknameRequest struct {
	Nickname string `json:"nickname" validate:"required,max=100"`
}

func (n *nicknameRequest) Bind(_ *http.Request) error {
	n.Nickname = strings.TrimSpace(n.Nickname)
	return validateStruct(n)
}

type botReplyRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (b *botReplyRequest) Bind(_ *http.Request) error {
	return validateStruct(b)
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

func (t *typingRequest) Bind(_ *http.Request) error { return nil }

// convID reads the conversation id path parameter.
func convID(r *http.Request) string {
	raw := chi.URLParam(r, "convID")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func handleListConversations(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := eng.Conversations()
		if err != nil {
			writeError(w, r, err)
			return
		}
		if items == nil {
			items = []engine.ConversationItem{}
		}
		writeJSON(w, r, http.StatusOK, ok(conversationListResponse{Conversations: items, UnreadTotal: eng.UnreadTotal()}))
	}
}

func handleSetFilter(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req filterRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Platform != "" {
			if err := eng.SetPlatformFilter(domain.Platform(req.Platform)); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if req.Query != nil {
			if err := eng.SetSearch(*req.Query); err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}

func handleRefresh(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Refresh(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, ok(nil))
	}
}

func handleGetConversation(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := eng.Conversation(convID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(conv))
	}
}

func handleMarkRead(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.MarkRead(convID(r)); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}

func handleRequestAccess(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.RequestAccess(convID(r)); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, ok(nil))
	}
}

func handleClaim(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Claim(r.Context(), convID(r)); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}

func handleRelease(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Release(r.Context(), convID(r)); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}

func handleRename(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nicknameRequest
		if !decode(w, r, &req) {
			return
		}
		if err := eng.Rename(r.Context(), convID(r), req.Nickname); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}

func handleBotReply(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req botReplyRequest
		if !decode(w, r, &req) {
			return
		}
		if err := eng.SetBotReply(r.Context(), convID(r), *req.Enabled); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}

func handleTyping(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req typingRequest
		if !decode(w, r, &req) {
			return
		}
		if err := eng.SetTyping(convID(r), req.Typing); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}
