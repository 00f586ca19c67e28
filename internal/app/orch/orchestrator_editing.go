package orch

import (
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

func (o *Orchestrator) StartEditing(s *core.Session, project domain.ProjectID, task domain.TaskID) (domain.EditingLock, error) {
	return o.Hub.StartEditing(s, project, task)
}

func (o *Orchestrator) StopEditing(s *core.Session, project domain.ProjectID, task domain.TaskID) bool {
	return o.Hub.StopEditing(s, project, task)
}
