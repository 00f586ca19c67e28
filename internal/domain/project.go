package domain

import (
	"strconv"
	"strings"
	"time"
)

type (
	ProjectID int64
	TaskID    int64
	RoomKey   string
)

const roomKeyPrefix = "project:"

func (id ProjectID) String() string { return strconv.FormatInt(int64(id), 10) }

// RoomKey is the only way a room key is built; clients never send raw keys.
func (id ProjectID) RoomKey() RoomKey { return RoomKey(roomKeyPrefix + id.String()) }

// Project parses the project id back out of the key.
func (k RoomKey) Project() (ProjectID, bool) {
	s, ok := strings.CutPrefix(string(k), roomKeyPrefix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return ProjectID(v), true
}

// EditingLock is advisory: a later start overwrites it.
type EditingLock struct {
	TaskID    TaskID    `json:"taskId"`
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	StartedAt time.Time `json:"startedAt"`
}

// Expired reports whether the lock is older than timeout at now.
func (l EditingLock) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(l.StartedAt) > timeout
}
