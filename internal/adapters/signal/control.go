package signal

import (
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

// Outbound types owned by the transport; room events live in core.
const (
	TypeLeft   = "left"
	TypeError  = "error"
	TypeNotice = "notice"
	TypePong   = "pong"
	TypeWhoAmI = "whoami"
)

type leftFrame struct {
	Type string         `json:"type"`
	Room domain.RoomKey `json:"room"`
}

type errorFrame struct {
	Type  string         `json:"type"`
	Error string         `json:"error"`
	Room  domain.RoomKey `json:"room,omitempty"`
}

// noticeFrame is a soft, non-fatal signal to the client.
type noticeFrame struct {
	Type   string         `json:"type"`
	Code   string         `json:"code"`
	Room   domain.RoomKey `json:"room,omitempty"`
	TaskID *domain.TaskID `json:"taskId,omitempty"`
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, code string, room domain.RoomKey) {
	ctl.sendJSON(conn, errorFrame{Type: TypeError, Error: code, Room: room})
}

func (ctl *SignalWSController) sendNotice(conn *WsSignalConn, code string, room domain.RoomKey, task *domain.TaskID) {
	ctl.sendJSON(conn, noticeFrame{Type: TypeNotice, Code: code, Room: room, TaskID: task})
}

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: TypePong,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	sess *core.Session,
	conn *WsSignalConn,
) {
	rooms := sess.Rooms()
	if rooms == nil {
		rooms = []domain.RoomKey{}
	}
	resp := struct {
		Type  string           `json:"type"`
		User  domain.User      `json:"user"`
		Rooms []domain.RoomKey `json:"rooms"`
	}{
		Type:  TypeWhoAmI,
		User:  sess.User(),
		Rooms: rooms,
	}
	ctl.sendJSON(conn, resp)
}
