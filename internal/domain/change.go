package domain

import (
	"fmt"

	"github.com/goccy/go-json"
)

type ChangeAction string

const (
	ChangeCreated ChangeAction = "created"
	ChangeUpdated ChangeAction = "updated"
	ChangeDeleted ChangeAction = "deleted"
)

type Entity string

const (
	EntityTask    Entity = "task"
	EntityBlock   Entity = "block"
	EntitySection Entity = "section"
)

// ChangeEvent is a committed create/update/delete relayed to a room.
// Payload is opaque to the relay and absent for deletions.
type ChangeEvent struct {
	Action   ChangeAction    `json:"action"`
	Entity   Entity          `json:"entity"`
	EntityID int64           `json:"entityId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Actor    string          `json:"actor"`
}

func Created(entity Entity, id int64, payload json.RawMessage, createdBy string) ChangeEvent {
	return ChangeEvent{Action: ChangeCreated, Entity: entity, EntityID: id, Payload: payload, Actor: createdBy}
}

func Updated(entity Entity, id int64, payload json.RawMessage, updatedBy string) ChangeEvent {
	return ChangeEvent{Action: ChangeUpdated, Entity: entity, EntityID: id, Payload: payload, Actor: updatedBy}
}

func Deleted(entity Entity, id int64, deletedBy string) ChangeEvent {
	return ChangeEvent{Action: ChangeDeleted, Entity: entity, EntityID: id, Actor: deletedBy}
}

func (e ChangeEvent) Validate() error {
	switch e.Entity {
	case EntityTask, EntityBlock, EntitySection:
	default:
		return fmt.Errorf("%w: unknown entity %q", ErrInvalidChange, e.Entity)
	}
	switch e.Action {
	case ChangeCreated, ChangeUpdated:
	case ChangeDeleted:
		if len(e.Payload) > 0 {
			return fmt.Errorf("%w: deleted event carries a payload", ErrInvalidChange)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidChange, e.Action)
	}
	if e.Payload != nil && !json.Valid(e.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidChange)
	}
	return nil
}

// MessageType is the outbound discriminator, e.g. "task:changed".
func (e ChangeEvent) MessageType() string { return string(e.Entity) + ":changed" }

// ActorField names the actor key on the wire: createdBy, updatedBy or deletedBy.
func (e ChangeEvent) ActorField() string {
	switch e.Action {
	case ChangeCreated:
		return "createdBy"
	case ChangeUpdated:
		return "updatedBy"
	default:
		return "deletedBy"
	}
}

// IsTaskDeletion reports whether the event removes a task that may hold a lock.
func (e ChangeEvent) IsTaskDeletion() bool {
	return e.Entity == EntityTask && e.Action == ChangeDeleted
}
