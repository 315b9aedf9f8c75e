// Package session holds the live, ordered message log of the battle in progress.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/google/uuid"
)

// ErrDuplicateID indicates a message id already present in the log.
var ErrDuplicateID = errors.New("duplicate message id")

// State is the in-memory log of one battle. Message ids are unique and
// CreatedAt never decreases in append order.
type State struct {
	mu       sync.RWMutex
	battleID string
	ownerID  string
	scenario string
	messages []domain.Message
	ids      map[string]struct{}
	now      func() time.Time
}

// New creates an empty state for ownerID.
func New(ownerID string) *State {
	return NewWithClock(ownerID, time.Now)
}

// NewWithClock creates an empty state using now as its clock.
func NewWithClock(ownerID string, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{
		battleID: uuid.NewString(),
		ownerID:  ownerID,
		ids:      make(map[string]struct{}),
		now:      now,
	}
}

// Append adds msg to the end of the log and returns it as stored.
// A missing id is generated; CreatedAt defaults to now and is clamped so it
// never precedes the previous message.
func (s *State) Append(msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := s.ids[msg.ID]; exists {
		return domain.Message{}, ErrDuplicateID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.CreatedAt = s.clamp(domain.Timestamp(msg.CreatedAt))

	msg = msg.Clone()
	s.messages = append(s.messages, msg)
	s.ids[msg.ID] = struct{}{}
	return msg.Clone(), nil
}

func (s *State) clamp(t time.Time) time.Time {
	if n := len(s.messages); n > 0 {
		if last := s.messages[n-1].CreatedAt; t.Before(last) {
			return last
		}
	}
	return t
}

// Reset clears the log and starts a new battle.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.battleID = uuid.NewString()
	s.scenario = ""
	s.messages = nil
	s.ids = make(map[string]struct{})
}

// Replace swaps in a saved or shared battle. Messages are copied; duplicate or
// empty ids are regenerated and timestamps are clamped to keep the invariants.
func (s *State) Replace(b domain.Battle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.battleID = b.ID
	if s.battleID == "" {
		s.battleID = uuid.NewString()
	}
	s.scenario = b.Scenario
	s.messages = make([]domain.Message, 0, len(b.Messages))
	s.ids = make(map[string]struct{}, len(b.Messages))
	for _, m := range b.Messages {
		m = m.Clone()
		if _, exists := s.ids[m.ID]; exists || m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.CreatedAt = s.clamp(domain.Timestamp(m.CreatedAt))
		s.messages = append(s.messages, m)
		s.ids[m.ID] = struct{}{}
	}
}

// SetScenario records the scenario text of the battle.
func (s *State) SetScenario(scenario string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario = scenario
}

// Scenario returns the scenario text.
func (s *State) Scenario() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenario
}

// BattleID returns the id of the battle in progress.
func (s *State) BattleID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.battleID
}

// Len returns the number of messages.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns a copy of the log.
func (s *State) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneMessages(s.messages)
}

// Recent returns a copy of the last n messages.
func (s *State) Recent(n int) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n >= len(s.messages) {
		return domain.CloneMessages(s.messages)
	}
	return domain.CloneMessages(s.messages[len(s.messages)-n:])
}

// Battle returns a deep copy of the state as a battle value. Later appends do
// not affect the returned value.
func (s *State) Battle() domain.Battle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Battle{
		ID:       s.battleID,
		OwnerID:  s.ownerID,
		Scenario: s.scenario,
		Messages: domain.CloneMessages(s.messages),
	}
}
