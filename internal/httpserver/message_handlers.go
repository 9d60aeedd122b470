package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"chatsync/internal/engine"
)

type sendRequest struct {
	Text    string  `json:"text" validate:"required_without=Image"`
	Image   string  `json:"image" validate:"omitempty,startswith=data:image/|url"`
	Caption *string `json:"caption"`
}

func (s *sendRequest) Bind(_ *http.Request) error {
	return validateStruct(s)
}

type sendResponse struct {
	TempID string `json:"temp_id"`
}

type selectRequest struct {
	ConvID string `json:"conv_id" validate:"required"`
}

func (s *selectRequest) Bind(_ *http.Request) error {
	return validateStruct(s)
}

type viewportRequest struct {
	engine.Viewport
}

func (v *viewportRequest) Bind(_ *http.Request) error {
	return validateStruct(v)
}

type loadOlderResponse struct {
	Started bool `json:"started"`
}

func handleSendMessage(eng Engine, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if !decode(w, r, &req) {
			return
		}
		id := convID(r)

		var (
			tempID string
			err    error
		)
		if req.Image != "" {
			caption := req.Caption
			if caption == nil && req.Text != "" {
				caption = &req.Text
			}
			tempID, err = eng.SendImage(id, req.Image, caption)
		} else {
			tempID, err = eng.SendText(id, req.Text)
		}
		if err != nil {
			log.Debug("send rejected",
				"conv_id", id,
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, ok(sendResponse{TempID: tempID}))
	}
}

func handleView(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, found, err := eng.View()
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !found {
			writeJSON(w, r, http.StatusNotFound, fail("no conversation selected"))
			return
		}
		writeJSON(w, r, http.StatusOK, ok(view))
	}
}

func handleSelect(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if !decode(w, r, &req) {
			return
		}
		if err := eng.Select(req.ConvID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, ok(nil))
	}
}

func handleDeselect(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Deselect(); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}

func handleLoadOlder(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started, err := eng.LoadOlder()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(loadOlderResponse{Started: started}))
	}
}

func handleViewport(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req viewportRequest
		if !decode(w, r, &req) {
			return
		}
		if err := eng.UpdateViewport(req.Viewport); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, ok(nil))
	}
}
