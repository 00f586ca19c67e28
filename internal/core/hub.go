package core

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

// ErrSessionClosed is returned when a disconnected session tries to join.
var ErrSessionClosed = errors.New("session closed")

const DefaultLockTimeout = 5 * time.Minute

type HubOptions struct {
	// LockTimeout is how long an editing lock survives without a fresh start.
	LockTimeout time.Duration
	// Now is the clock used to stamp locks. Defaults to time.Now.
	Now func() time.Time
	// OnDrop is called, outside any room lock, for each frame a session
	// could not accept.
	OnDrop func(s *Session, typ string, err error)
}

// Hub is the process-wide room store. Rooms are created lazily on first
// join and removed when their last member leaves.
type Hub struct {
	opts HubOptions

	mu    sync.RWMutex
	rooms map[domain.RoomKey]*Room
}

func NewHub(opts HubOptions) *Hub {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hub{opts: opts, rooms: make(map[domain.RoomKey]*Room)}
}

// Membership is what a joining session needs to render the room.
type Membership struct {
	Room   domain.RoomKey
	Users  []domain.PresenceUser
	Locks  []domain.EditingLock
	Joined bool // false when the session was already a member
}

// Join adds s to the project's room, broadcasts presence:joined and sends
// room_state to s in the same critical section, so no room frame can
// overtake the snapshot. Joining twice is idempotent: only room_state is
// sent the second time.
func (h *Hub) Join(s *Session, project domain.ProjectID) (Membership, error) {
	if s.Closed() {
		return Membership{}, ErrSessionClosed
	}
	r := h.acquire(project)
	if _, err := s.addRoom(r.key); err != nil {
		h.unlock(r)
		return Membership{}, err
	}
	d, joined := r.addPresence(s)
	m := r.membershipLocked()
	m.Joined = joined
	d.merge(r.sendStateLocked(s, m))
	h.unlock(r)
	h.report(d)
	if joined {
		log.Info().Str("module", "core.hub").Str("sid", string(s.id)).Str("room", string(m.Room)).Int("members", len(m.Users)).Msg("joined room")
	}
	return m, nil
}

// Leave is idempotent; leaving a room the session is not in is a no-op.
func (h *Hub) Leave(s *Session, project domain.ProjectID) bool {
	key := project.RoomKey()
	s.removeRoom(key)
	return h.leave(s, project)
}

// leave removes s's presence and locks from one room. Remaining members
// get editing:stopped for each released lock, then presence:left.
func (h *Hub) leave(s *Session, project domain.ProjectID) bool {
	r := h.lookup(project)
	if r == nil {
		return false
	}
	if !r.removePresence(s.id) {
		h.unlock(r)
		return false
	}
	d, released := r.releaseSession(s.id)
	d.merge(r.broadcastLeft())
	remaining := r.memberCountLocked()
	h.unlock(r)
	h.report(d)
	log.Info().Str("module", "core.hub").Str("sid", string(s.id)).Str("room", string(r.key)).Int("locks_released", released).Int("remaining", remaining).Msg("left room")
	return true
}

// Disconnect cleans every room the session belonged to before returning.
// Repeated calls are no-ops.
func (h *Hub) Disconnect(s *Session) {
	rooms, ok := s.markClosed()
	if !ok {
		return
	}
	for _, key := range rooms {
		project, ok := key.Project()
		if !ok {
			continue
		}
		h.leave(s, project)
	}
	log.Info().Str("module", "core.hub").Str("sid", string(s.id)).Int("rooms", len(rooms)).Msg("session cleaned up")
}

// Broadcast delivers f to every current member of the project's room and
// returns the delivery count. An empty or absent room delivers nothing.
func (h *Hub) Broadcast(project domain.ProjectID, typ string, f Frame) int {
	r := h.lookup(project)
	if r == nil {
		return 0
	}
	d := r.broadcastLocked(typ, f)
	h.unlock(r)
	h.report(d)
	return d.sent
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Rooms lists room summaries ordered by key.
func (h *Hub) Rooms() []RoomInfo {
	rooms := h.snapshotRooms()
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.info())
	}
	return out
}

func (h *Hub) now() time.Time { return h.opts.Now() }

// acquire returns the project's room locked, creating it if needed.
// A room that closed between map lookup and locking is retried.
func (h *Hub) acquire(project domain.ProjectID) *Room {
	key := project.RoomKey()
	for {
		h.mu.Lock()
		r, ok := h.rooms[key]
		if !ok {
			r = newRoom(project)
			h.rooms[key] = r
			metrics.RoomsActive.Set(float64(len(h.rooms)))
			log.Info().Str("module", "core.hub").Str("room", string(key)).Msg("room created")
		}
		h.mu.Unlock()

		r.mu.Lock()
		if !r.closed {
			return r
		}
		r.mu.Unlock()
	}
}

// lookup returns the project's room locked, or nil when there is none.
func (h *Hub) lookup(project domain.ProjectID) *Room {
	h.mu.RLock()
	r, ok := h.rooms[project.RoomKey()]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	return r
}

// unlock releases r and destroys it if it has no members left.
func (h *Hub) unlock(r *Room) {
	empty := len(r.members) == 0
	if empty {
		r.closed = true
	}
	r.mu.Unlock()
	if !empty {
		return
	}
	h.mu.Lock()
	if h.rooms[r.key] == r {
		delete(h.rooms, r.key)
		log.Info().Str("module", "core.hub").Str("room", string(r.key)).Msg("room destroyed")
	}
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()
}

func (h *Hub) snapshotRooms() []*Room {
	h.mu.RLock()
	out := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r)
	}
	h.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Room) int { return strings.Compare(string(a.key), string(b.key)) })
	return out
}

// report surfaces dropped frames. One recipient's failure never affects
// the others; the policy hook decides what happens to the slow session.
func (h *Hub) report(d delivery) {
	for _, drop := range d.dropped {
		metrics.FramesDropped.WithLabelValues(drop.typ).Inc()
		log.Warn().Err(drop.err).Str("module", "core.hub").Str("sid", string(drop.session.id)).Str("type", drop.typ).Msg("frame dropped")
		if h.opts.OnDrop != nil {
			h.opts.OnDrop(drop.session, drop.typ, drop.err)
		}
	}
}
