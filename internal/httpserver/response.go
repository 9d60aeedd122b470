package httpserver

import (
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"chatsync/internal/domain"
)

// Response is the envelope every bridge endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok(data any) Response {
	return Response{Success: true, Data: data}
}

func fail(msg string) Response {
	return Response{Success: false, Message: msg}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeError maps engine errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, r, errorStatus(err), fail(err.Error()))
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConversationLocked):
		return http.StatusConflict
	case errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrPlatformDisconnected), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validateStruct(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(v)
}

// decode reads a JSON body into a render.Binder, which validates itself.
func decode(w http.ResponseWriter, r *http.Request, v render.Binder) bool {
	if err := render.Bind(r, v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, r, http.StatusBadRequest, fail(verrs.Error()))
			return false
		}
		writeJSON(w, r, http.StatusBadRequest, fail("invalid JSON body"))
		return false
	}
	return true
}
