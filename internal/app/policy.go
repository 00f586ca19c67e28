package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

type Policy interface {
	OnBackPressure(member *core.Session, frameType string) BackpressureAction
}

// SimplePolicy kicks any session that cannot keep up; the client
// reconnects and resyncs from room_state.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(member *core.Session, frameType string) BackpressureAction {
	return KickMember
}

// DropHandler adapts a policy to core.HubOptions.OnDrop.
func DropHandler(reg *Registry, p Policy) func(*core.Session, string, error) {
	if p == nil {
		p = SimplePolicy{}
	}
	return func(s *core.Session, typ string, err error) {
		action := p.OnBackPressure(s, typ)
		switch action {
		case KickMember:
			reg.Cancel(s.ID())
		case MarkSlow, DropFrame, NoAction:
		}
		log.Debug().Err(err).Str("module", "app.policy").Str("sid", string(s.ID())).Str("type", typ).Str("action", action.String()).Msg("backpressure")
	}
}
