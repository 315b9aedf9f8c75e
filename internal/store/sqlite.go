package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	historyCap int
	now        func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, historyCap: domain.HistoryCap, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS battles (
		owner_id TEXT NOT NULL,
		battle_id TEXT NOT NULL,
		scenario_text TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		saved_at INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (owner_id, battle_id)
	);
	CREATE INDEX IF NOT EXISTS idx_battles_owner_seq ON battles(owner_id, seq DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// SaveBattle upserts the battle and trims the owner's history to the cap.
func (s *SQLiteStore) SaveBattle(ctx context.Context, battle *domain.Battle) error {
	if battle == nil {
		return domain.ErrEmptyBattle
	}
	if err := battle.Validate(); err != nil {
		return err
	}

	messagesJSON, err := json.Marshal(battle.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	savedAt := domain.Timestamp(s.now())

	err = withConflictRetry(ctx, "save battle", battle.ID, func() error {
		return s.saveOnce(ctx, battle, string(messagesJSON), savedAt)
	})
	if err != nil {
		return err
	}
	battle.SavedAt = savedAt
	return nil
}

func (s *SQLiteStore) saveOnce(ctx context.Context, battle *domain.Battle, messagesJSON string, savedAt time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back battle save", "battle_id", battle.ID, "error", rbErr)
			}
		}
	}()

	var seq int64
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM battles WHERE owner_id = ?`, battle.OwnerID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("next battle seq: %w", err)
	}

	upsert := `
	INSERT INTO battles (owner_id, battle_id, scenario_text, messages_json, saved_at, seq)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(owner_id, battle_id) DO UPDATE SET
		scenario_text = excluded.scenario_text,
		messages_json = excluded.messages_json,
		saved_at = excluded.saved_at,
		seq = excluded.seq`
	if _, err = tx.ExecContext(ctx, upsert,
		battle.OwnerID, battle.ID, battle.Scenario, messagesJSON, savedAt.UnixMilli(), seq,
	); err != nil {
		return fmt.Errorf("upsert battle: %w", err)
	}

	evict := `
	DELETE FROM battles
	WHERE owner_id = ? AND battle_id NOT IN (
		SELECT battle_id FROM battles WHERE owner_id = ? ORDER BY seq DESC LIMIT ?
	)`
	res, err := tx.ExecContext(ctx, evict, battle.OwnerID, battle.OwnerID, s.historyCap)
	if err != nil {
		return fmt.Errorf("evict old battles: %w", err)
	}
	if evicted, raErr := res.RowsAffected(); raErr == nil && evicted > 0 {
		slog.Debug("Evicted battles beyond history cap", "owner_id", battle.OwnerID, "count", evicted)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// ListBattles returns an owner's battles, newest first.
func (s *SQLiteStore) ListBattles(ctx context.Context, ownerID string) ([]*domain.Battle, error) {
	query := `
		SELECT owner_id, battle_id, scenario_text, messages_json, saved_at
		FROM battles WHERE owner_id = ? ORDER BY seq DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query battles: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close battle rows", "error", closeErr)
		}
	}()

	var battles []*domain.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		battles = append(battles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate battles: %w", err)
	}
	return battles, nil
}

// GetBattle retrieves a battle by id.
func (s *SQLiteStore) GetBattle(ctx context.Context, ownerID, battleID string) (*domain.Battle, error) {
	query := `
		SELECT owner_id, battle_id, scenario_text, messages_json, saved_at
		FROM battles WHERE owner_id = ? AND battle_id = ?`

	b, err := scanBattle(s.db.QueryRowContext(ctx, query, ownerID, battleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBattle removes a battle. It is idempotent.
func (s *SQLiteStore) DeleteBattle(ctx context.Context, ownerID, battleID string) error {
	return withConflictRetry(ctx, "delete battle", battleID, func() error {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM battles WHERE owner_id = ? AND battle_id = ?`, ownerID, battleID,
		); err != nil {
			return fmt.Errorf("delete battle: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBattle(row rowScanner) (*domain.Battle, error) {
	var b domain.Battle
	var messagesJSON string
	var savedAt int64
	if err := row.Scan(&b.OwnerID, &b.ID, &b.Scenario, &messagesJSON, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan battle row: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &b.Messages); err != nil {
		return nil, fmt.Errorf("decode battle %s messages: %w", b.ID, err)
	}
	b.SavedAt = time.UnixMilli(savedAt)
	return &b, nil
}

// withConflictRetry retries op with exponential backoff while SQLite reports
// SQLITE_BUSY or SQLITE_LOCKED.
func withConflictRetry(ctx context.Context, opName, battleID string, op func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms
		slog.Debug("SQLite conflict, retrying",
			"op", opName,
			"battle_id", battleID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s %s after %d attempts: %w", opName, battleID, maxRetries, err)
}
