// Package store provides battle persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/quarrel-labs/internal/domain"
)

// Repository defines the interface for persisting battle history.
type Repository interface {
	// SaveBattle upserts a battle by id and moves it to the front of the
	// owner's history, evicting the oldest entries beyond domain.HistoryCap.
	// SavedAt is set by the store.
	SaveBattle(ctx context.Context, battle *domain.Battle) error

	// ListBattles returns an owner's history, newest first.
	ListBattles(ctx context.Context, ownerID string) ([]*domain.Battle, error)

	// GetBattle retrieves one battle. It returns nil, nil when none exists.
	GetBattle(ctx context.Context, ownerID, battleID string) (*domain.Battle, error)

	// DeleteBattle removes a battle. Deleting a missing battle is not an error.
	DeleteBattle(ctx context.Context, ownerID, battleID string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
