package core

import (
	"github.com/goccy/go-json"

	"github.com/dkeye/Board/internal/domain"
)

// Outbound message types broadcast by the hub.
const (
	TypePresenceJoined = "presence:joined"
	TypePresenceLeft   = "presence:left"
	TypeEditingStarted = "editing:started"
	TypeEditingStopped = "editing:stopped"
	TypeRoomState      = "room_state"
)

type PresenceFrame struct {
	Type  string                `json:"type"`
	Room  domain.RoomKey        `json:"room"`
	Users []domain.PresenceUser `json:"users"`
}

type EditingStartedFrame struct {
	Type string         `json:"type"`
	Room domain.RoomKey `json:"room"`
	domain.EditingLock
}

type EditingStoppedFrame struct {
	Type   string         `json:"type"`
	Room   domain.RoomKey `json:"room"`
	TaskID domain.TaskID  `json:"taskId"`
}

// RoomStateFrame is the snapshot a (re)joining client converges from.
type RoomStateFrame struct {
	Type  string                `json:"type"`
	Room  domain.RoomKey        `json:"room"`
	Users []domain.PresenceUser `json:"users"`
	Locks []domain.EditingLock  `json:"locks"`
}

// ChangeFrame renders a change event as a discriminated union, e.g.
// {"type":"task:changed","action":"updated","entityId":7,"payload":{},"updatedBy":"Ann"}.
type ChangeFrame struct {
	Room  domain.RoomKey
	Event domain.ChangeEvent
}

func (f ChangeFrame) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":               f.Event.MessageType(),
		"room":               f.Room,
		"action":             f.Event.Action,
		"entity":             f.Event.Entity,
		"entityId":           f.Event.EntityID,
		f.Event.ActorField(): f.Event.Actor,
	}
	if f.Event.Action != domain.ChangeDeleted && len(f.Event.Payload) > 0 {
		m["payload"] = f.Event.Payload
	}
	return json.Marshal(m)
}

// Encode marshals any outbound message into a frame.
func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

func presenceFrame(typ string, key domain.RoomKey, users []domain.PresenceUser) PresenceFrame {
	if users == nil {
		users = []domain.PresenceUser{}
	}
	return PresenceFrame{Type: typ, Room: key, Users: users}
}
