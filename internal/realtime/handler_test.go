package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/herald/herald-go/internal/metrics"
	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/service"
)

type tokenTable map[string]model.UserResponse

func (t tokenTable) Authenticate(_ context.Context, token string) (model.UserResponse, error) {
	user, ok := t[token]
	if !ok {
		return model.UserResponse{}, service.ErrTokenInvalid
	}
	return user, nil
}

type testServer struct {
	srv     *httptest.Server
	gateway *Gateway
	handler *Handler
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	m := metrics.New()
	g := NewGateway(m)
	h := NewHandler(g, tokenTable{"tok-alice": {ID: 1, Name: "Alice", Email: "a@x.com"}}, m)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, gateway: g, handler: h, metrics: m}
}

func (s *testServer) dial(t *testing.T, query, bearer string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws" + query
	cfg, err := websocket.NewConfig(wsURL, s.srv.URL)
	require.NoError(t, err)
	if bearer != "" {
		cfg.Header = make(http.Header)
		cfg.Header.Set("Authorization", "Bearer "+bearer)
	}

	conn, err := websocket.DialConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f testFrame
	require.NoError(t, websocket.JSON.Receive(conn, &f))
	return f
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	require.NoError(t, websocket.JSON.Send(conn, frame))
}

func TestHandlerJoinsUserRoomOnConnect(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "", "tok-alice")

	connected := readFrame(t, conn)
	require.Equal(t, EventConnected, connected.Event)
	var user model.UserResponse
	require.NoError(t, json.Unmarshal(connected.Data, &user))
	assert.Equal(t, int64(1), user.ID)

	assert.Equal(t, 1, s.gateway.Members(RoomForUser(1)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.RealtimeConnections))

	n := s.gateway.PublishToUser(1, "notification", map[string]string{"title": "Hello"})
	assert.Equal(t, 1, n)

	pushed := readFrame(t, conn)
	assert.Equal(t, "notification", pushed.Event)
	assert.JSONEq(t, `{"title":"Hello"}`, string(pushed.Data))
}

func TestHandlerAcceptsQueryToken(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "?access_token=tok-alice", "")

	assert.Equal(t, EventConnected, readFrame(t, conn).Event)
}

func TestHandlerPingPong(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "", "tok-alice")
	readFrame(t, conn)

	writeFrame(t, conn, map[string]string{"event": "ping"})
	assert.Equal(t, EventPong, readFrame(t, conn).Event)

	writeFrame(t, conn, map[string]string{"event": "dance"})
	f := readFrame(t, conn)
	assert.Equal(t, EventError, f.Event)
	assert.JSONEq(t, `{"message":"unsupported event"}`, string(f.Data))
}

func TestHandlerRejectsOversizedFrame(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "", "tok-alice")
	readFrame(t, conn)

	writeFrame(t, conn, map[string]string{"event": "ping", "pad": strings.Repeat("x", maxFrameBytes)})
	f := readFrame(t, conn)
	assert.Equal(t, EventError, f.Event)
	assert.JSONEq(t, `{"message":"frame too large"}`, string(f.Data))

	// The connection survives and keeps serving.
	writeFrame(t, conn, map[string]string{"event": "ping"})
	assert.Equal(t, EventPong, readFrame(t, conn).Event)
}

func TestHandlerDisconnectLeavesNoRooms(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "", "tok-alice")
	readFrame(t, conn)
	require.Equal(t, 1, s.gateway.Rooms())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return s.gateway.Rooms() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.gateway.PublishToUser(1, "notification", nil))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.RealtimeConnections))
}

func TestHandlerClosesFloodingClient(t *testing.T) {
	s := newTestServer(t)
	s.handler.limit = 1
	s.handler.burst = 2
	conn := s.dial(t, "", "tok-alice")
	readFrame(t, conn)

	for range 5 {
		if err := websocket.JSON.Send(conn, map[string]string{"event": "ping"}); err != nil {
			break
		}
	}

	require.Eventually(t, func() bool { return s.gateway.Rooms() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerRejectsUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		target string
		header string
	}{
		{name: "no token", target: "/ws"},
		{name: "unknown token", target: "/ws", header: "Bearer nope"},
		{name: "malformed header", target: "/ws?access_token=tok-alice", header: "Token tok-alice"},
		{name: "unknown query token", target: "/ws?access_token=nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body model.Envelope
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.False(t, body.Status)
		})
	}
	assert.Equal(t, 0, s.gateway.Rooms())
}

func TestHandlerRejectsNonGet(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ws", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
