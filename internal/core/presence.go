package core

import (
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

// addPresence appends the session and broadcasts the full snapshot so late
// joiners converge without deltas. Caller holds r.mu.
func (r *Room) addPresence(s *Session) (delivery, bool) {
	if _, ok := r.members[s.id]; ok {
		return delivery{}, false
	}
	r.members[s.id] = s
	r.order = append(r.order, s.id)
	log.Info().Str("module", "core.presence").Str("room", string(r.key)).Str("sid", string(s.id)).Str("user", s.user.ID.String()).Msg("presence added")
	return r.broadcastValueLocked(TypePresenceJoined, presenceFrame(TypePresenceJoined, r.key, r.listPresence())), true
}

// removePresence drops the entry; the caller broadcasts presence:left once
// lock cleanup for the session is done. Caller holds r.mu.
func (r *Room) removePresence(sid SessionID) bool {
	if _, ok := r.members[sid]; !ok {
		return false
	}
	delete(r.members, sid)
	if i := slices.Index(r.order, sid); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	log.Info().Str("module", "core.presence").Str("room", string(r.key)).Str("sid", string(sid)).Msg("presence removed")
	return true
}

func (r *Room) broadcastLeft() delivery {
	return r.broadcastValueLocked(TypePresenceLeft, presenceFrame(TypePresenceLeft, r.key, r.listPresence()))
}

// listPresence returns members in join order. Caller holds r.mu.
func (r *Room) listPresence() []domain.PresenceUser {
	out := make([]domain.PresenceUser, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, r.members[sid].Presence())
	}
	return out
}

// membershipLocked is the room view taken in one critical section.
// Caller holds r.mu.
func (r *Room) membershipLocked() Membership {
	return Membership{Room: r.key, Users: r.listPresence(), Locks: r.lockSnapshot()}
}

// sendStateLocked enqueues room_state to s alone, ordered with the room's
// broadcasts. Caller holds r.mu.
func (r *Room) sendStateLocked(s *Session, m Membership) delivery {
	f, err := Encode(RoomStateFrame{Type: TypeRoomState, Room: m.Room, Users: m.Users, Locks: m.Locks})
	if err != nil {
		log.Error().Err(err).Str("module", "core.presence").Str("room", string(r.key)).Msg("encode room_state")
		return delivery{}
	}
	if err := s.Send(f); err != nil {
		return delivery{dropped: []droppedFrame{{session: s, typ: TypeRoomState, err: err}}}
	}
	metrics.FramesSent.WithLabelValues(TypeRoomState).Inc()
	return delivery{sent: 1}
}

// Snapshot returns presence and locks read under one room lock. An absent
// room is empty.
func (h *Hub) Snapshot(project domain.ProjectID) Membership {
	r := h.lookup(project)
	if r == nil {
		return Membership{Room: project.RoomKey(), Users: []domain.PresenceUser{}, Locks: []domain.EditingLock{}}
	}
	defer r.mu.Unlock()
	return r.membershipLocked()
}

// Resync re-sends room_state to a member, in order with the room's
// broadcasts. A session outside the room gets ErrNotMember.
func (h *Hub) Resync(s *Session, project domain.ProjectID) (Membership, error) {
	r := h.lookup(project)
	if r == nil {
		return Membership{}, ErrNotMember
	}
	if _, ok := r.members[s.id]; !ok {
		r.mu.Unlock()
		return Membership{}, ErrNotMember
	}
	m := r.membershipLocked()
	d := r.sendStateLocked(s, m)
	r.mu.Unlock()
	h.report(d)
	return m, nil
}
