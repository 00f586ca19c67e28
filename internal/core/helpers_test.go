package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/dkeye/Board/internal/domain"
)

var errFull = errors.New("backpressure")

// recorder is a SignalConnection that keeps every frame it accepts.
type recorder struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
	closed bool
}

func (r *recorder) TrySend(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("connection closed")
	}
	if r.full {
		return errFull
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

type envelope struct {
	Type string `json:"type"`
}

func (r *recorder) types(t *testing.T) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		var env envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, env.Type)
	}
	return out
}

// decodeAll unmarshals every frame of the given type, in order.
func decodeAll[T any](t *testing.T, r *recorder, typ string) []T {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, f := range r.frames {
		var env envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		if env.Type != typ {
			continue
		}
		var v T
		if err := json.Unmarshal(f, &v); err != nil {
			t.Fatalf("decode %s: %v", typ, err)
		}
		out = append(out, v)
	}
	return out
}

func newSession(id domain.UserID, name string) (*Session, *recorder) {
	rec := &recorder{}
	user := domain.NewUser(id, domain.Profile{Name: name})
	return NewSession(SessionID(fmt.Sprintf("sid-%d-%s", id, name)), user, rec), rec
}

// fakeClock is advanced by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func presenceIDs(users []domain.PresenceUser) []domain.UserID {
	out := make([]domain.UserID, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func mustJoin(t *testing.T, h *Hub, s *Session, project domain.ProjectID) Membership {
	t.Helper()
	m, err := h.Join(s, project)
	if err != nil {
		t.Fatalf("Join(%s, %d) failed: %v", s.ID(), project, err)
	}
	return m
}
