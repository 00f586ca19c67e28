package signal

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

type editingPayload struct {
	Type      string            `json:"type"`
	ProjectID *domain.ProjectID `json:"projectId"`
	TaskID    *domain.TaskID    `json:"taskId"`
}

func (ctl *SignalWSController) decodeEditing(c *WsSignalConn, data []byte) (domain.ProjectID, domain.TaskID, bool) {
	var p editingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == nil || p.TaskID == nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad editing payload")
		ctl.sendError(c, "bad_payload", "")
		return 0, 0, false
	}
	return *p.ProjectID, *p.TaskID, true
}

func (ctl *SignalWSController) handleEditingStart(
	sess *core.Session,
	conn *WsSignalConn,
	data []byte,
) {
	project, task, ok := ctl.decodeEditing(conn, data)
	if !ok {
		return
	}
	key := project.RoomKey()
	if !ctl.limiter.Allow(sess.ID()) {
		log.Debug().Str("module", "signal").Str("sid", string(sess.ID())).Msg("editing:start rate limited")
		ctl.sendNotice(conn, "rate_limited", key, &task)
		return
	}
	_, err := ctl.Orch.StartEditing(sess, project, task)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotMember):
		ctl.sendNotice(conn, "not_member", key, &task)
	case errors.Is(err, domain.ErrNotFound):
		ctl.sendNotice(conn, "not_found", key, &task)
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("editing:start failed")
	}
}

// handleEditingStop is silent when the sender does not hold the lock.
func (ctl *SignalWSController) handleEditingStop(
	sess *core.Session,
	conn *WsSignalConn,
	data []byte,
) {
	project, task, ok := ctl.decodeEditing(conn, data)
	if !ok {
		return
	}
	ctl.Orch.StopEditing(sess, project, task)
}
