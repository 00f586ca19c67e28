package domain

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestColorFor(t *testing.T) {
	if got := ColorFor(5); got != "#14b8a6" {
		t.Errorf("ColorFor(5) = %s, want #14b8a6", got)
	}
	palette := Palette()
	for _, id := range []UserID{0, 1, 13, 14, 15, 99, 12345, -1, -14, -15} {
		c := ColorFor(id)
		if !slices.Contains(palette, c) {
			t.Errorf("ColorFor(%d) = %s is not in the palette", id, c)
		}
		if other := ColorFor(id + UserID(PaletteSize)); other != c {
			t.Errorf("ColorFor(%d) = %s but ColorFor(%d) = %s", id, c, id+UserID(PaletteSize), other)
		}
	}
	if ColorFor(-1) != palette[PaletteSize-1] {
		t.Errorf("negative ids should wrap to the end of the palette, got %s", ColorFor(-1))
	}
}

func TestPaletteIsCopy(t *testing.T) {
	p := Palette()
	p[0] = "#000000"
	if ColorFor(0) == "#000000" {
		t.Error("Palette must not expose internal state")
	}
}

func TestNewUser(t *testing.T) {
	tests := []struct {
		name    string
		id      UserID
		profile Profile
		want    string
	}{
		{"keeps name", 1, Profile{Name: "Ann"}, "Ann"},
		{"trims", 2, Profile{Name: "  Bob  "}, "Bob"},
		{"falls back", 17, Profile{}, "User 17"},
		{"blank falls back", 18, Profile{Name: "   "}, "User 18"},
		{"truncates", 3, Profile{Name: strings.Repeat("x", MaxUsernameLen+10)}, strings.Repeat("x", MaxUsernameLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUser(tt.id, tt.profile)
			if u.Name != tt.want {
				t.Errorf("Name = %q, want %q", u.Name, tt.want)
			}
			if u.Color != ColorFor(tt.id) {
				t.Errorf("Color = %s, want %s", u.Color, ColorFor(tt.id))
			}
		})
	}
}

func TestRoomKey(t *testing.T) {
	if got := ProjectID(42).RoomKey(); got != "project:42" {
		t.Errorf("RoomKey = %s", got)
	}
	id, ok := RoomKey("project:42").Project()
	if !ok || id != 42 {
		t.Errorf("Project() = %d, %v", id, ok)
	}
	for _, k := range []RoomKey{"room:1", "project:", "project:abc"} {
		if _, ok := k.Project(); ok {
			t.Errorf("%q should not parse", k)
		}
	}
}

func TestEditingLockExpired(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := EditingLock{TaskID: 1, UserID: 1, StartedAt: start}
	if l.Expired(start.Add(time.Minute), time.Minute) {
		t.Error("lock at exactly the timeout is not expired")
	}
	if !l.Expired(start.Add(time.Minute+time.Nanosecond), time.Minute) {
		t.Error("lock past the timeout is expired")
	}
}

func TestChangeEventValidate(t *testing.T) {
	tests := []struct {
		name string
		ev   ChangeEvent
		ok   bool
	}{
		{"created", Created(EntityTask, 1, json.RawMessage(`{"a":1}`), "Ann"), true},
		{"updated without payload", Updated(EntityBlock, 1, nil, "Ann"), true},
		{"deleted", Deleted(EntitySection, 1, "Ann"), true},
		{"unknown entity", ChangeEvent{Action: ChangeCreated, Entity: "board"}, false},
		{"unknown action", ChangeEvent{Action: "moved", Entity: EntityTask}, false},
		{"deleted with payload", ChangeEvent{Action: ChangeDeleted, Entity: EntityTask, Payload: json.RawMessage(`{}`)}, false},
		{"invalid payload", Created(EntityTask, 1, json.RawMessage(`{nope`), "Ann"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidChange) {
				t.Errorf("expected ErrInvalidChange, got %v", err)
			}
		})
	}
}

func TestChangeEventWireNames(t *testing.T) {
	ev := Updated(EntityBlock, 3, nil, "Ann")
	if ev.MessageType() != "block:changed" || ev.ActorField() != "updatedBy" {
		t.Errorf("got %s/%s", ev.MessageType(), ev.ActorField())
	}
	if !Deleted(EntityTask, 1, "x").IsTaskDeletion() {
		t.Error("task deletion not detected")
	}
	if Deleted(EntityBlock, 1, "x").IsTaskDeletion() {
		t.Error("block deletion is not a task deletion")
	}
}
