package bus

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/logs"
)

const writeWait = 10 * time.Second

type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// Conn is one live client channel. A single writer goroutine drains the
// send buffer, so events reach the socket in publish order.
type Conn struct {
	Id     string
	UserId string

	hub *Hub
	ws  *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state ConnState
	subs  map[consts.EventType]struct{} // nil means all types
}

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Subscribe narrows the event types this connection receives. An empty
// list restores the default of all types for the owning user.
func (c *Conn) Subscribe(eventTypes []consts.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(eventTypes) == 0 {
		c.subs = nil
		return
	}
	subs := make(map[consts.EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		if t.Valid() {
			subs[t] = struct{}{}
		}
	}
	c.subs = subs
}

func (c *Conn) subscribed(t consts.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		return true
	}
	_, ok := c.subs[t]
	return ok
}

// deliver is best-effort and at-most-once: a full send buffer means the
// client cannot keep up and the connection is dropped, never queued.
func (c *Conn) deliver(eventType consts.EventType, frame []byte) {
	if c.State() == StateDisconnected || !c.subscribed(eventType) {
		return
	}
	select {
	case c.send <- frame:
	default:
		logs.Logger.Warn().
			Str("connection_id", c.Id).
			Str("user_id", c.UserId).
			Msg("send buffer full, dropping connection")
		c.Close()
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateDisconnected)
		close(c.done)
		c.hub.unregister(c)
	})
}

type clientMessage struct {
	Action     string             `json:"action"`
	EventTypes []consts.EventType `json:"event_types"`
}

// readPump consumes client frames until the socket dies. Pong handling
// extends the read deadline; an idle socket is garbage-collected.
func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.ws.Close()
	}()
	c.ws.SetReadLimit(4096)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.idleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.idleTimeout))
		return nil
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			logs.Logger.Debug().
				Str("connection_id", c.Id).
				Str("user_id", c.UserId).
				Err(err).
				Msg("websocket client disconnected")
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.Subscribe(msg.EventTypes)
		case "ping":
			c.ws.SetReadDeadline(time.Now().Add(c.hub.idleTimeout))
		}
	}
}

func (c *Conn) writePump() {
	pingPeriod := c.hub.idleTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
