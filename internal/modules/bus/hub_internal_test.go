package bus

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/reusedev/gen-hub/config"
	"github.com/reusedev/gen-hub/internal/consts"
)

func newRegisteredConn(h *Hub, userId string) *Conn {
	return &Conn{
		Id:     uuid.NewString(),
		UserId: userId,
		hub:    h,
		send:   make(chan []byte, 4),
		done:   make(chan struct{}),
		state:  StateConnected,
	}
}

// A register racing the unregister of the user's last connection must not
// leave the new connection in a bucket already removed from the registry.
func TestRegisterRacingLastUnregister(t *testing.T) {
	h := NewHub(config.Bus{IdleTimeout: "60s", SendBufferLen: 4}, nil)
	for i := 0; i < 2000; i++ {
		old := newRegisteredConn(h, "alice")
		h.register(old)
		fresh := newRegisteredConn(h, "alice")

		wg := &sync.WaitGroup{}
		wg.Add(2)
		go func() {
			defer wg.Done()
			old.Close()
		}()
		go func() {
			defer wg.Done()
			h.register(fresh)
		}()
		wg.Wait()

		h.Publish(UserEvent("alice", consts.EventNotification, map[string]any{"seq": i}))
		select {
		case <-fresh.send:
		default:
			t.Fatalf("iteration %d: registered connection unreachable by publish", i)
		}
		fresh.Close()
	}
}
