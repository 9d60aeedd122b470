package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"chatsync/internal/engine"
	"chatsync/internal/security"
)

// Controls is the part of the session clients drive over the socket.
type Controls interface {
	AccountID() string
	SetTyping(convID string, typing bool) error
	UpdateViewport(v engine.Viewport) error
	MarkRead(convID string) error
}

// originPolicy admits browser origins listed in the bridge config. Requests
// without an Origin header come from non-browser tools; the token still
// applies to them.
type originPolicy map[string]struct{}

func newOriginPolicy(origins []string) originPolicy {
	p := make(originPolicy, len(origins))
	for _, o := range origins {
		if key := originKey(o); key != "" {
			p[key] = struct{}{}
		}
	}
	return p
}

// originKey reduces an origin to lowercase scheme://host, or "" when it has
// neither.
func originKey(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func (p originPolicy) allow(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if strings.TrimSpace(origin) == "" {
		return true
	}
	_, ok := p[originKey(origin)]
	return ok
}

type inbound struct {
	Type   string `json:"type"`
	ConvID string `json:"conv_id"`
	Typing bool   `json:"typing"`
	engine.Viewport
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol),
// streams bus events through the hub and accepts client events:
//   - typing    -> start/stop typing on a conversation
//   - viewport  -> scroll geometry of the open conversation
//   - mark_read -> explicit read acknowledgement
func MakeHandler(hub *Hub, tokens *security.TokenService, sess Controls, allowedOrigins []string, log *slog.Logger) http.HandlerFunc {
	origins := newOriginPolicy(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  origins.allow,
		Subprotocols: []string{"bearer"},
	}
	account := sess.AccountID()
	log = log.With("component", "ws")

	return func(w http.ResponseWriter, r *http.Request) {
		if !origins.allow(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		tokenStr, ok := security.BearerToken(r, true)
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if err := tokens.Authorize(tokenStr, account); err != nil {
			log.Debug("rejected bridge token", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := hub.Register(account, conn)
		defer hub.Unregister(account, conn)
		log.Info("bridge client connected", "remote", r.RemoteAddr, "clients", hub.Count(account))

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var msg inbound
			if err := json.Unmarshal(raw, &msg); err != nil {
				sendError(c, "invalid JSON frame")
				continue
			}
			switch msg.Type {
			case "typing":
				if msg.ConvID == "" {
					sendError(c, "typing requires conv_id")
					continue
				}
				if err := sess.SetTyping(msg.ConvID, msg.Typing); err != nil {
					sendError(c, err.Error())
				}

			case "viewport":
				if err := sess.UpdateViewport(msg.Viewport); err != nil {
					sendError(c, err.Error())
				}

			case "mark_read":
				if msg.ConvID == "" {
					sendError(c, "mark_read requires conv_id")
					continue
				}
				if err := sess.MarkRead(msg.ConvID); err != nil {
					sendError(c, err.Error())
				}

			default:
				log.Warn("unknown bridge event", "type", msg.Type)
				sendError(c, fmt.Sprintf("unknown event type %q", msg.Type))
			}
		}
		log.Info("bridge client disconnected", "remote", r.RemoteAddr)
	}
}

func sendError(c *client, msg string) {
	c.sendJSON(Event{Type: "error", Data: map[string]string{"message": msg}})
}
