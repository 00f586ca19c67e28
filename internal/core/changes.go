package core

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

// Publish fans a committed change out to the project's room, at most once
// per connected session. The caller must only publish after its write
// committed. A task deletion also tombstones the task and clears its lock;
// a task creation lifts a previous tombstone for the same id.
func (h *Hub) Publish(project domain.ProjectID, ev domain.ChangeEvent) (int, error) {
	if err := ev.Validate(); err != nil {
		metrics.ChangesRejected.Inc()
		return 0, err
	}
	key := project.RoomKey()
	f, err := Encode(ChangeFrame{Room: key, Event: ev})
	if err != nil {
		metrics.ChangesRejected.Inc()
		return 0, err
	}
	metrics.ChangesRelayed.WithLabelValues(string(ev.Entity), string(ev.Action)).Inc()

	r := h.lookup(project)
	if r == nil {
		log.Debug().Str("module", "core.relay").Str("room", string(key)).Str("type", ev.MessageType()).Msg("no members, change not delivered")
		return 0, nil
	}
	typ := ev.MessageType()
	d := r.broadcastLocked(typ, f)
	sent := d.sent
	task := domain.TaskID(ev.EntityID)
	switch {
	case ev.IsTaskDeletion():
		d.merge(r.tombstone(task))
	case ev.Entity == domain.EntityTask && ev.Action == domain.ChangeCreated:
		delete(r.deleted, task)
	}
	h.unlock(r)
	h.report(d)
	log.Debug().Str("module", "core.relay").Str("room", string(key)).Str("type", typ).Str("action", string(ev.Action)).Int64("entity_id", ev.EntityID).Int("sent_to", sent).Msg("change relayed")
	return sent, nil
}
