package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"chatsync/internal/domain"
	"chatsync/internal/engine"
	"chatsync/internal/security"
)

// Engine is the session surface the bridge drives. *engine.Session satisfies it.
type Engine interface {
	AccountID() string
	Refresh(ctx context.Context) error
	Conversations() ([]engine.ConversationItem, error)
	Conversation(convID string) (domain.Conversation, error)
	SetPlatformFilter(p domain.Platform) error
	SetSearch(q string) error
	UnreadTotal() int

	Select(convID string) error
	Deselect() error
	View() (engine.ConversationView, bool, error)
	LoadOlder() (bool, error)
	UpdateViewport(v engine.Viewport) error

	SendText(convID, text string) (string, error)
	SendImage(convID, image string, caption *string) (string, error)
	MarkRead(convID string) error

	RequestAccess(convID string) error
	Claim(ctx context.Context, convID string) error
	Release(ctx context.Context, convID string) error
	Rename(ctx context.Context, convID, nickname string) error
	SetBotReply(ctx context.Context, convID string, enabled bool) error
	SetTyping(convID string, typing bool) error
}

var _ Engine = (*engine.Session)(nil)

// Options carries the router's non-engine dependencies.
type Options struct {
	CORSOrigins []string
	Tokens      *security.TokenService
	Logger      *slog.Logger
	// Socket serves the live event stream; nil disables /ws.
	Socket http.Handler
}

// NewRouter constructs the bridge router: a local HTTP API over one session.
func NewRouter(eng Engine, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "httpserver")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The socket is long-lived; only request/response routes get a deadline.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, r, http.StatusOK, ok(map[string]string{"name": "chatsync bridge", "account": eng.AccountID()}))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, r, http.StatusOK, ok(map[string]string{"status": "healthy"}))
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(AuthMiddleware(opts.Tokens, eng.AccountID(), log))

			r.Put("/filter", handleSetFilter(eng))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(eng))
				r.Post("/refresh", handleRefresh(eng))
				r.Route("/{convID}", func(r chi.Router) {
					r.Get("/", handleGetConversation(eng))
					r.Post("/messages", handleSendMessage(eng, log))
					r.Post("/read", handleMarkRead(eng))
					r.Post("/access-request", handleRequestAccess(eng))
					r.Post("/claim", handleClaim(eng))
					r.Post("/release", handleRelease(eng))
					r.Put("/nickname", handleRename(eng))
					r.Put("/bot-reply", handleBotReply(eng))
					r.Post("/typing", handleTyping(eng))
				})
			})

			r.Route("/selection", func(r chi.Router) {
				r.Get("/", handleView(eng))
				r.Post("/", handleSelect(eng))
				r.Delete("/", handleDeselect(eng))
				r.Post("/older", handleLoadOlder(eng))
				r.Put("/viewport", handleViewport(eng))
			})
		})
	})

	if opts.Socket != nil {
		r.Method(http.MethodGet, "/ws", opts.Socket)
	}

	return r
}
