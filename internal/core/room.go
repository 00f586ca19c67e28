package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

type lockEntry struct {
	lock   domain.EditingLock
	holder SessionID
}

// Room is one project's membership, presence order and editing locks.
// Every mutation and every fan-out happens under mu, so frames for a room
// reach each member in the order they were issued.
type Room struct {
	key domain.RoomKey

	mu      sync.Mutex
	closed  bool
	order   []SessionID
	members map[SessionID]*Session
	locks   map[domain.TaskID]lockEntry
	deleted map[domain.TaskID]struct{}
}

func newRoom(project domain.ProjectID) *Room {
	return &Room{
		key:     project.RoomKey(),
		members: make(map[SessionID]*Session),
		locks:   make(map[domain.TaskID]lockEntry),
		deleted: make(map[domain.TaskID]struct{}),
	}
}

// delivery is the outcome of one or more fan-outs; drops are reported
// after the room lock is released.
type delivery struct {
	sent    int
	dropped []droppedFrame
}

type droppedFrame struct {
	session *Session
	typ     string
	err     error
}

func (d *delivery) merge(o delivery) {
	d.sent += o.sent
	d.dropped = append(d.dropped, o.dropped...)
}

// broadcastLocked enqueues f to every member in presence order.
// A failing transport is recorded and skipped. Caller holds r.mu.
func (r *Room) broadcastLocked(typ string, f Frame) delivery {
	var d delivery
	for _, sid := range r.order {
		s := r.members[sid]
		if err := s.Send(f); err != nil {
			d.dropped = append(d.dropped, droppedFrame{session: s, typ: typ, err: err})
			continue
		}
		d.sent++
	}
	if d.sent > 0 {
		metrics.FramesSent.WithLabelValues(typ).Add(float64(d.sent))
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.key)).Str("type", typ).Int("sent_to", d.sent).Int("dropped", len(d.dropped)).Msg("broadcast result")
	return d
}

// broadcastValueLocked encodes v and fans it out. Caller holds r.mu.
func (r *Room) broadcastValueLocked(typ string, v any) delivery {
	f, err := Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.key)).Str("type", typ).Msg("encode frame")
		return delivery{}
	}
	return r.broadcastLocked(typ, f)
}

func (r *Room) memberCountLocked() int { return len(r.order) }

func (r *Room) info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{Room: r.key, MemberCount: len(r.order), LockCount: len(r.locks)}
}
