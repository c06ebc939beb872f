package bus

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/gen-hub/internal/consts"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one typed message routed by the hub. Transient; never
// persisted. UserId addresses user-scoped events and is not part of the
// wire frame.
type Event struct {
	Type        consts.EventType  `json:"type"`
	Payload     any               `json:"payload"`
	TargetScope consts.EventScope `json:"targetScope"`
	UserId      string            `json:"-"`
}

func UserEvent(userId string, eventType consts.EventType, payload any) Event {
	return Event{
		Type:        eventType,
		Payload:     payload,
		TargetScope: consts.ScopeUser,
		UserId:      userId,
	}
}

func BroadcastEvent(eventType consts.EventType, payload any) Event {
	return Event{
		Type:        eventType,
		Payload:     payload,
		TargetScope: consts.ScopeBroadcast,
	}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
