package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/herald/herald-go/internal/metrics"
	"github.com/herald/herald-go/internal/middleware"
	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/service"
)

const (
	maxFrameBytes   = 4 << 10
	writeTimeout    = 10 * time.Second
	framesPerSecond = 10
	frameBurst      = 20
)

// Events sent and understood on a connection.
const (
	EventConnected = "connected"
	EventPing      = "ping"
	EventPong      = "pong"
	EventError     = "error"
)

type userContextKey struct{}

// Handler upgrades authenticated requests to websocket connections joined
// to their user's room.
type Handler struct {
	gateway *Gateway
	authn   middleware.Authenticator
	metrics *metrics.Metrics

	queueSize int
	limit     rate.Limit
	burst     int
}

// NewHandler creates the websocket endpoint. Tokens are checked by authn,
// the same authenticator that guards the JSON API.
func NewHandler(g *Gateway, authn middleware.Authenticator, m *metrics.Metrics) *Handler {
	return &Handler{
		gateway:   g,
		authn:     authn,
		metrics:   m,
		queueSize: defaultQueueSize,
		limit:     rate.Limit(framesPerSecond),
		burst:     frameBurst,
	}
}

// ServeHTTP authenticates the handshake before upgrading. The token comes
// from the Authorization header or, for browsers, the access_token query
// parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := tokenFromRequest(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.authn.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) || errors.Is(err, service.ErrTokenExpired) || errors.Is(err, service.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		slog.Error("websocket authenticate", "remote", r.RemoteAddr, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ctx := context.WithValue(r.Context(), userContextKey{}, user)
	websocket.Handler(h.serveConn).ServeHTTP(w, r.WithContext(ctx))
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, _ := middleware.BearerToken(header)
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	user, ok := conn.Request().Context().Value(userContextKey{}).(model.UserResponse)
	if !ok {
		return
	}
	conn.MaxPayloadBytes = maxFrameBytes

	client := NewClient(user.ID, h.queueSize)
	done := make(chan struct{})

	h.gateway.Join(client, RoomForUser(user.ID))
	h.metrics.RealtimeConnections.Inc()
	slog.Info("realtime client connected", "user_id", user.ID)
	defer func() {
		close(done)
		h.metrics.RealtimeConnections.Dec()
		h.gateway.Leave(client)
		slog.Info("realtime client disconnected", "user_id", user.ID)
	}()

	go writeLoop(conn, client, done)

	client.enqueue(Frame{Event: EventConnected, Data: user})

	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		var in Frame
		if err := websocket.JSON.Receive(conn, &in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			switch {
			case errors.Is(err, websocket.ErrFrameTooLarge):
				client.enqueue(errorFrame("frame too large"))
				continue
			case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
				client.enqueue(errorFrame("invalid frame"))
				continue
			case errors.Is(err, io.EOF):
			default:
				slog.Debug("realtime read", "user_id", user.ID, "error", err)
			}
			return
		}

		if !limiter.Allow() {
			client.enqueue(errorFrame("rate limit exceeded"))
			slog.Warn("realtime client flooding, closing", "user_id", user.ID)
			return
		}

		switch in.Event {
		case EventPing:
			client.enqueue(Frame{Event: EventPong})
		default:
			client.enqueue(errorFrame("unsupported event"))
		}
	}
}

// writeLoop is the only writer on conn.
func writeLoop(conn *websocket.Conn, c *Client, done <-chan struct{}) {
	for {
		select {
		case f := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.JSON.Send(conn, f); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func errorFrame(msg string) Frame {
	return Frame{Event: EventError, Data: map[string]string{"message": msg}}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.Envelope{Status: false, Message: msg})
}
