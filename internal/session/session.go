// internal/session/session.go
package session

import (
	"time"

	"github.com/google/uuid"

	"trip-report-bot/internal/filter"
)

// State is the lifecycle position of a dialogue session.
type State string

const (
	// StateCollecting means at least one filter field is still missing.
	StateCollecting State = "COLLECTING"
	// StateComplete means all fields are valid and dispatch is imminent.
	StateComplete State = "COMPLETE"
	// StateDispatched means the filter was handed to retrieval; the
	// session is finished and a new message starts a fresh one.
	StateDispatched State = "DISPATCHED"
	// StateExpired means the inactivity timeout elapsed. Results of any
	// extraction still in flight for this session are discarded.
	StateExpired State = "EXPIRED"
)

// Session accumulates one user's filter across messages. All access goes
// through the Manager, which holds the lock.
type Session struct {
	ID           string
	ChatID       int64
	State        State
	Filter       filter.Filter
	Asked        map[filter.Field]bool
	LastActivity time.Time
}

func newSession(chatID int64, now time.Time) *Session {
	return &Session{
		ID:           uuid.New().String(),
		ChatID:       chatID,
		State:        StateCollecting,
		Asked:        make(map[filter.Field]bool),
		LastActivity: now,
	}
}

func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) >= timeout
}
