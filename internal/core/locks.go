package core

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

// ErrNotMember is returned for editing signals on a room the session never joined.
var ErrNotMember = errors.New("not a member of room")

// startEditing overwrites any lock on the task: last writer wins.
// Caller holds r.mu.
func (r *Room) startEditing(s *Session, task domain.TaskID, now time.Time) (domain.EditingLock, delivery, error) {
	if _, ok := r.members[s.id]; !ok {
		return domain.EditingLock{}, delivery{}, ErrNotMember
	}
	if _, gone := r.deleted[task]; gone {
		return domain.EditingLock{}, delivery{}, fmt.Errorf("task %d: %w", task, domain.ErrNotFound)
	}
	u := s.User()
	lock := domain.EditingLock{TaskID: task, UserID: u.ID, UserName: u.Name, StartedAt: now}
	if prev, ok := r.locks[task]; ok && prev.lock.UserID != u.ID {
		log.Info().Str("module", "core.locks").Str("room", string(r.key)).Int64("task", int64(task)).Str("from", prev.lock.UserID.String()).Str("to", u.ID.String()).Msg("lock overwritten")
	}
	r.locks[task] = lockEntry{lock: lock, holder: s.id}
	metrics.RecordLock("started", 1)
	d := r.broadcastValueLocked(TypeEditingStarted, EditingStartedFrame{Type: TypeEditingStarted, Room: r.key, EditingLock: lock})
	return lock, d, nil
}

// stopEditing clears the lock only when the caller's user holds it.
// Caller holds r.mu.
func (r *Room) stopEditing(s *Session, task domain.TaskID) (delivery, bool) {
	entry, ok := r.locks[task]
	if !ok || entry.lock.UserID != s.User().ID {
		return delivery{}, false
	}
	delete(r.locks, task)
	metrics.RecordLock("stopped", 1)
	return r.broadcastStopped(task), true
}

func (r *Room) broadcastStopped(task domain.TaskID) delivery {
	return r.broadcastValueLocked(TypeEditingStopped, EditingStoppedFrame{Type: TypeEditingStopped, Room: r.key, TaskID: task})
}

// releaseSession clears every lock held by sid, in task order.
// Caller holds r.mu.
func (r *Room) releaseSession(sid SessionID) (delivery, int) {
	var tasks []domain.TaskID
	for task, entry := range r.locks {
		if entry.holder == sid {
			tasks = append(tasks, task)
		}
	}
	slices.Sort(tasks)
	var d delivery
	for _, task := range tasks {
		delete(r.locks, task)
		d.merge(r.broadcastStopped(task))
	}
	metrics.RecordLock("released", len(tasks))
	return d, len(tasks)
}

// expireLocks clears locks older than timeout at now. Caller holds r.mu.
func (r *Room) expireLocks(now time.Time, timeout time.Duration) (delivery, int) {
	var tasks []domain.TaskID
	for task, entry := range r.locks {
		if entry.lock.Expired(now, timeout) {
			tasks = append(tasks, task)
		}
	}
	slices.Sort(tasks)
	var d delivery
	for _, task := range tasks {
		delete(r.locks, task)
		d.merge(r.broadcastStopped(task))
	}
	return d, len(tasks)
}

// tombstone marks a task deleted and clears its lock. Caller holds r.mu.
func (r *Room) tombstone(task domain.TaskID) delivery {
	r.deleted[task] = struct{}{}
	if _, ok := r.locks[task]; !ok {
		return delivery{}
	}
	delete(r.locks, task)
	metrics.RecordLock("deleted", 1)
	return r.broadcastStopped(task)
}

// lockSnapshot returns current locks in task order. Caller holds r.mu.
func (r *Room) lockSnapshot() []domain.EditingLock {
	out := make([]domain.EditingLock, 0, len(r.locks))
	for _, entry := range r.locks {
		out = append(out, entry.lock)
	}
	slices.SortFunc(out, func(a, b domain.EditingLock) int {
		switch {
		case a.TaskID < b.TaskID:
			return -1
		case a.TaskID > b.TaskID:
			return 1
		}
		return 0
	})
	return out
}

// StartEditing records s as the editor of task in project's room.
func (h *Hub) StartEditing(s *Session, project domain.ProjectID, task domain.TaskID) (domain.EditingLock, error) {
	r := h.lookup(project)
	if r == nil {
		return domain.EditingLock{}, ErrNotMember
	}
	lock, d, err := r.startEditing(s, task, h.now())
	h.unlock(r)
	h.report(d)
	return lock, err
}

// StopEditing reports whether a lock was cleared. A stop from a
// non-holder changes nothing and broadcasts nothing.
func (h *Hub) StopEditing(s *Session, project domain.ProjectID, task domain.TaskID) bool {
	r := h.lookup(project)
	if r == nil {
		return false
	}
	d, ok := r.stopEditing(s, task)
	h.unlock(r)
	h.report(d)
	return ok
}

// ExpireLocks sweeps every room and returns how many locks were cleared.
func (h *Hub) ExpireLocks(now time.Time) int {
	total := 0
	for _, r := range h.snapshotRooms() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		d, n := r.expireLocks(now, h.opts.LockTimeout)
		h.unlock(r)
		h.report(d)
		if n > 0 {
			log.Info().Str("module", "core.locks").Str("room", string(r.key)).Int("expired", n).Msg("expired editing locks")
		}
		total += n
	}
	metrics.RecordLock("expired", total)
	return total
}
