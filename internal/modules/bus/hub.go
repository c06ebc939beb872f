package bus

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/logs"
)

// TokenValidator resolves a bearer token to a user id. The authentication
// subsystem is consumed as an opaque capability.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Hub owns the connection registry: per-user buckets, each independently
// locked, so the publish hot path never takes a global write lock.
type Hub struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	idleTimeout   time.Duration
	sendBufferLen int
	upgrader      websocket.Upgrader
	validator     TokenValidator
}

type bucket struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

func NewHub(cfg config.Bus, validator TokenValidator) *Hub {
	bufLen := cfg.SendBufferLen
	if bufLen <= 0 {
		bufLen = 64
	}
	idle := cfg.IdleTimeoutDuration()
	if idle <= 0 {
		idle = 60 * time.Second
	}
	return &Hub{
		buckets:       make(map[string]*bucket),
		idleTimeout:   idle,
		sendBufferLen: bufLen,
		validator:     validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect validates the token, upgrades the socket and registers the
// connection with a default subscription of all event types.
func (h *Hub) Connect(w http.ResponseWriter, r *http.Request, token string) (*Conn, error) {
	userId, err := h.validator.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn := &Conn{
		Id:     uuid.NewString(),
		UserId: userId,
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, h.sendBufferLen),
		done:   make(chan struct{}),
		state:  StateConnecting,
	}
	h.register(conn)
	conn.setState(StateConnected)

	go conn.writePump()
	go conn.readPump()

	ack, _ := json.Marshal(map[string]any{
		"action":        "connected",
		"connection_id": conn.Id,
	})
	conn.send <- ack

	logs.Logger.Info().
		Str("connection_id", conn.Id).
		Str("user_id", userId).
		Msg("websocket client connected")
	return conn, nil
}

// register inserts the connection while still holding the registry lock.
// Dropping it between bucket lookup and insert would let a concurrent
// unregister of the user's last connection delete the bucket, stranding
// the new connection in a bucket Publish can no longer reach.
func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	b, ok := h.buckets[c.UserId]
	if !ok {
		b = &bucket{conns: make(map[string]*Conn)}
		h.buckets[c.UserId] = b
	}
	b.mu.Lock()
	b.conns[c.Id] = c
	b.mu.Unlock()
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	b, ok := h.buckets[c.UserId]
	if ok {
		b.mu.Lock()
		delete(b.conns, c.Id)
		empty := len(b.conns) == 0
		b.mu.Unlock()
		if empty {
			delete(h.buckets, c.UserId)
		}
	}
	h.mu.Unlock()
}

// Publish routes an event to its scope. Delivery per connection preserves
// publish order; disconnected clients miss events and reconcile via a
// state pull on reconnect, the hub keeps no history.
func (h *Hub) Publish(event Event) {
	frame, err := event.encode()
	if err != nil {
		logs.Logger.Error().Err(err).Str("event_type", event.Type.String()).Msg("encode event failed")
		return
	}
	if event.TargetScope == consts.ScopeBroadcast {
		for _, c := range h.snapshotAll() {
			c.deliver(event.Type, frame)
		}
		return
	}
	for _, c := range h.snapshotUser(event.UserId) {
		c.deliver(event.Type, frame)
	}
}

func (h *Hub) snapshotUser(userId string) []*Conn {
	h.mu.RLock()
	b, ok := h.buckets[userId]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) snapshotAll() []*Conn {
	h.mu.RLock()
	bs := make([]*bucket, 0, len(h.buckets))
	for _, b := range h.buckets {
		bs = append(bs, b)
	}
	h.mu.RUnlock()
	var conns []*Conn
	for _, b := range bs {
		b.mu.Lock()
		for _, c := range b.conns {
			conns = append(conns, c)
		}
		b.mu.Unlock()
	}
	return conns
}

// ConnectionCount reports live connections for a user.
func (h *Hub) ConnectionCount(userId string) int {
	return len(h.snapshotUser(userId))
}

// Shutdown drops every live connection.
func (h *Hub) Shutdown() {
	for _, c := range h.snapshotAll() {
		c.Close()
	}
}
