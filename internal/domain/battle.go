package domain

import (
	"errors"
	"time"
)

// HistoryCap is the maximum number of battles kept per owner.
const HistoryCap = 30

var (
	// ErrEmptyBattle indicates a battle without messages cannot be persisted.
	ErrEmptyBattle = errors.New("battle has no messages")
	// ErrEmptyBattleID indicates a battle id is required.
	ErrEmptyBattleID = errors.New("battle id is required")
)

// Battle is one scenario's full ordered message history, persisted as a unit.
type Battle struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"-"`
	Scenario string    `json:"scenarioText"`
	Messages []Message `json:"messages"`
	SavedAt  time.Time `json:"-"`
}

// Validate checks that the battle can be persisted.
func (b *Battle) Validate() error {
	if b.ID == "" {
		return ErrEmptyBattleID
	}
	if len(b.Messages) == 0 {
		return ErrEmptyBattle
	}
	return nil
}

// Clone returns a deep copy of the battle.
func (b Battle) Clone() Battle {
	b.Messages = CloneMessages(b.Messages)
	return b
}

// LastMessage returns the final message of the battle, if any.
func (b *Battle) LastMessage() (Message, bool) {
	if len(b.Messages) == 0 {
		return Message{}, false
	}
	return b.Messages[len(b.Messages)-1], true
}
