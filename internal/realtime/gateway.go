// Package realtime pushes events to connected websocket clients. Clients are
// addressed through rooms; every authenticated connection joins the room of
// its user, so a publish to that room reaches all of the user's sessions.
package realtime

import (
	"strconv"
	"sync"

	"github.com/herald/herald-go/internal/metrics"
)

const defaultQueueSize = 16

// Frame is the JSON message exchanged over a connection in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one live connection. Publishers only ever enqueue onto its
// outbound queue; the connection's writer drains it.
type Client struct {
	UserID int64
	send   chan Frame
}

// NewClient creates a Client with room for queueSize pending frames.
func NewClient(userID int64, queueSize int) *Client {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	return &Client{UserID: userID, send: make(chan Frame, queueSize)}
}

// enqueue offers f without blocking and reports whether it was accepted.
func (c *Client) enqueue(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// RoomForUser names the room every connection of userID joins.
func RoomForUser(userID int64) string {
	return "user-" + strconv.FormatInt(userID, 10)
}

// Gateway is the registry of rooms and their live members.
type Gateway struct {
	mu      sync.Mutex
	rooms   map[string]map[*Client]struct{}
	joined  map[*Client]map[string]struct{}
	metrics *metrics.Metrics
}

// NewGateway creates an empty Gateway.
func NewGateway(m *metrics.Metrics) *Gateway {
	return &Gateway{
		rooms:   make(map[string]map[*Client]struct{}),
		joined:  make(map[*Client]map[string]struct{}),
		metrics: m,
	}
}

// Join adds c to room.
func (g *Gateway) Join(c *Client, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, ok := g.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		g.rooms[room] = members
	}
	members[c] = struct{}{}

	rooms, ok := g.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		g.joined[c] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes c from every room it joined. Rooms left empty are dropped.
func (g *Gateway) Leave(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for room := range g.joined[c] {
		members := g.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	delete(g.joined, c)
}

// Publish queues an event for every current member of room and returns how
// many accepted it. A member whose queue is full misses the event.
func (g *Gateway) Publish(room, event string, payload any) int {
	g.mu.Lock()
	members := make([]*Client, 0, len(g.rooms[room]))
	for c := range g.rooms[room] {
		members = append(members, c)
	}
	g.mu.Unlock()

	frame := Frame{Event: event, Data: payload}
	delivered := 0
	for _, c := range members {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		g.metrics.RealtimeFramesDropped.Inc()
	}
	return delivered
}

// PublishToUser publishes to the room of userID.
func (g *Gateway) PublishToUser(userID int64, event string, payload any) int {
	return g.Publish(RoomForUser(userID), event, payload)
}

// Rooms returns the number of non-empty rooms.
func (g *Gateway) Rooms() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Members returns the number of clients in room.
func (g *Gateway) Members(room string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms[room])
}
