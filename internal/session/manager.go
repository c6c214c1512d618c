// internal/session/manager.go
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/common/metrics"
	"trip-report-bot/internal/filter"
)

// CandidateExtractor produces raw filter fields from free text. The
// partial filter accumulated so far goes along so the model can resolve
// elliptical follow-ups like "same areas, but March".
type CandidateExtractor interface {
	Extract(ctx context.Context, text string, partial filter.Filter) (filter.Candidate, error)
}

// Outcome is the result of feeding one message into a session. Exactly
// one of Prompt and Filter is set: a prompt asks the user for the next
// missing field, a filter is complete and ready for retrieval.
type Outcome struct {
	SessionID string
	Prompt    string
	Filter    *filter.Filter
}

// Manager owns all dialogue sessions, keyed by chat id. One chat has at
// most one live session; a finished or expired session is removed and
// the next message starts a new one.
type Manager struct {
	mu        sync.Mutex
	sessions  map[int64]*Session
	locks     map[int64]*sync.Mutex
	extractor CandidateExtractor
	validator *filter.Validator
	timeout   time.Duration
	logger    logger.Logger
	now       func() time.Time
}

func NewManager(extractor CandidateExtractor, validator *filter.Validator, timeout time.Duration, log logger.Logger) *Manager {
	return &Manager{
		sessions:  make(map[int64]*Session),
		locks:     make(map[int64]*sync.Mutex),
		extractor: extractor,
		validator: validator,
		timeout:   timeout,
		logger:    log.With(map[string]interface{}{"component": "session"}),
		now:       time.Now,
	}
}

// HandleMessage feeds one user message into the chat's session, creating
// it if needed. Turns for one chat run strictly one at a time in arrival
// order; the chat lock is held across extract, validate and merge, so two
// extractions never run concurrently for the same session. Chats do not
// block each other. If the expiry sweep removes the session while the
// model call is in flight, the late result is discarded and a
// session-expired error is returned.
func (m *Manager) HandleMessage(ctx context.Context, chatID int64, text string) (Outcome, error) {
	turn := m.chatLock(chatID)
	turn.Lock()
	defer turn.Unlock()

	s, partial := m.obtain(chatID)

	candidate, err := m.extractor.Extract(ctx, text, partial)
	if err != nil {
		m.touch(chatID, s.ID)
		return Outcome{SessionID: s.ID}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.sessions[chatID]
	if cur == nil || cur.ID != s.ID || cur.State == StateExpired {
		m.logger.Info("discarding extraction for finished session", map[string]interface{}{
			"chatId":    chatID,
			"sessionId": s.ID,
		})
		return Outcome{SessionID: s.ID}, stderrors.NewSessionExpiredError(s.ID)
	}

	delta, _ := m.validator.Validate(candidate)
	cur.Filter = filter.Merge(cur.Filter, delta)
	cur.LastActivity = m.now()

	if cur.Filter.Complete() {
		cur.State = StateDispatched
		complete := cur.Filter
		delete(m.sessions, chatID)
		metrics.SessionsActive.Dec()
		m.logger.Info("session complete", map[string]interface{}{
			"chatId":    chatID,
			"sessionId": cur.ID,
		})
		return Outcome{SessionID: cur.ID, Filter: &complete}, nil
	}

	field := cur.Filter.Missing()[0]
	again := cur.Asked[field]
	cur.Asked[field] = true
	return Outcome{SessionID: cur.ID, Prompt: m.promptFor(field, again)}, nil
}

// chatLock returns the mutex serializing turns for one chat. Locks live
// for the life of the process; the chat population is bounded by the
// allow-list.
func (m *Manager) chatLock(chatID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[chatID] = l
	}
	return l
}

// obtain returns the chat's live session, replacing an expired one, plus
// a snapshot of the filter accumulated so far.
func (m *Manager) obtain(chatID int64) (*Session, filter.Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if s, ok := m.sessions[chatID]; ok {
		if !s.expired(now, m.timeout) {
			return s, s.Filter
		}
		s.State = StateExpired
		delete(m.sessions, chatID)
		metrics.SessionsActive.Dec()
		metrics.SessionsExpired.Inc()
	}

	s := newSession(chatID, now)
	m.sessions[chatID] = s
	metrics.SessionsActive.Inc()
	return s, filter.Filter{}
}

// touch refreshes activity so an extraction failure does not silently
// eat the inactivity window.
func (m *Manager) touch(chatID int64, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok && s.ID == sessionID {
		s.LastActivity = m.now()
	}
}

// SweepExpired removes sessions whose inactivity window elapsed and
// returns how many were dropped.
func (m *Manager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var dropped int
	for chatID, s := range m.sessions {
		if !s.expired(now, m.timeout) {
			continue
		}
		s.State = StateExpired
		delete(m.sessions, chatID)
		metrics.SessionsActive.Dec()
		metrics.SessionsExpired.Inc()
		dropped++
		m.logger.Info("session expired", map[string]interface{}{
			"chatId":    chatID,
			"sessionId": s.ID,
		})
	}
	return dropped
}

// ActiveCount reports the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// promptFor words the question for one missing field. A repeat ask skips
// the long option listing that was already shown.
func (m *Manager) promptFor(field filter.Field, again bool) string {
	vocab := m.validator.Vocabulary()
	switch field {
	case filter.FieldPeriod:
		if again {
			return "I still need the period. Try something like Jan 2025 or Jan to Mar 2025."
		}
		return "Which period should the report cover? For example: Jan 2025, Jan to Mar 2025, or just 2024."
	case filter.FieldAreas:
		if again {
			return "I still need the areas. Name one from the list above, or say \"all\"."
		}
		return fmt.Sprintf(
			"Which areas? Name them (for example Thiruvottiyur or Area-3), or say \"all\".\nAvailable areas:\n%s",
			strings.Join(vocab.AreaNames(), "\n"),
		)
	case filter.FieldCategories:
		if again {
			return "I still need the trip categories. Pick from the options above, or say \"all\"."
		}
		return fmt.Sprintf(
			"Which trip categories? Options: %s, or \"all\".",
			strings.Join(vocab.CategoryNames(), ", "),
		)
	}
	return "Could you add more detail to your request?"
}
