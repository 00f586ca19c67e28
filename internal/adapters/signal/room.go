package signal

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

type projectPayload struct {
	Type      string            `json:"type"`
	ProjectID *domain.ProjectID `json:"projectId"`
}

func (ctl *SignalWSController) decodeProject(c *WsSignalConn, data []byte) (domain.ProjectID, bool) {
	var p projectPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad project payload")
		ctl.sendError(c, "bad_payload", "")
		return 0, false
	}
	return *p.ProjectID, true
}

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	sess *core.Session,
	conn *WsSignalConn,
	data []byte,
) {
	project, ok := ctl.decodeProject(conn, data)
	if !ok {
		return
	}
	key := project.RoomKey()
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(key)).Msg("join")

	m, err := ctl.Orch.Join(ctx, sess, project)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrForbidden):
		ctl.sendError(conn, "forbidden", key)
		return
	case errors.Is(err, domain.ErrNotFound):
		ctl.sendNotice(conn, "not_found", key, nil)
		return
	case errors.Is(err, core.ErrSessionClosed):
		return
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(key)).Msg("join failed")
		ctl.sendError(conn, "internal", key)
		return
	}
	log.Debug().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(m.Room)).Bool("joined", m.Joined).Msg("room_state sent")
}

// handleLeave leaves one room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	sess *core.Session,
	conn *WsSignalConn,
	data []byte,
) {
	project, ok := ctl.decodeProject(conn, data)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(project.RoomKey())).Msg("leave")
	ctl.Orch.Leave(sess, project)
	ctl.sendJSON(conn, leftFrame{Type: TypeLeft, Room: project.RoomKey()})
}

// handlePresence asks the hub to resend room_state, e.g. after a client
// noticed a gap.
func (ctl *SignalWSController) handlePresence(
	sess *core.Session,
	conn *WsSignalConn,
	data []byte,
) {
	project, ok := ctl.decodeProject(conn, data)
	if !ok {
		return
	}
	if _, err := ctl.Orch.Presence(sess, project); err != nil {
		ctl.sendNotice(conn, "not_member", project.RoomKey(), nil)
	}
}
