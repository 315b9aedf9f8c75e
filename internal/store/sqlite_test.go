package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/quarrel-labs/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "battles.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testBattle(owner, id string) *domain.Battle {
	return &domain.Battle{
		ID:       id,
		OwnerID:  owner,
		Scenario: "同事甩锅",
		Messages: []domain.Message{
			{ID: id + "-u", Speaker: domain.UserSpeaker, Body: "你又不是老板", CreatedAt: time.UnixMilli(1_700_000_000_000)},
			{ID: id + "-a", Speaker: "ARBITER", Body: "分工表写得清清楚楚。", CreatedAt: time.UnixMilli(1_700_000_000_500)},
		},
	}
}

func TestSaveAndGetBattle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	b := testBattle("owner-1", "b1")
	if err := s.SaveBattle(ctx, b); err != nil {
		t.Fatalf("SaveBattle failed: %v", err)
	}
	if b.SavedAt.IsZero() {
		t.Fatal("expected SavedAt to be set")
	}

	got, err := s.GetBattle(ctx, "owner-1", "b1")
	if err != nil {
		t.Fatalf("GetBattle failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected battle, got nil")
	}
	if got.Scenario != b.Scenario || len(got.Messages) != 2 {
		t.Fatalf("unexpected battle: %+v", got)
	}
	if !got.Messages[1].CreatedAt.Equal(b.Messages[1].CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.Messages[1].CreatedAt, b.Messages[1].CreatedAt)
	}
	if !got.SavedAt.Equal(b.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, b.SavedAt)
	}

	other, err := s.GetBattle(ctx, "owner-2", "b1")
	if err != nil {
		t.Fatalf("GetBattle failed: %v", err)
	}
	if other != nil {
		t.Fatal("battles must not leak across owners")
	}
}

func TestSaveBattleRejectsEmpty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	b := &domain.Battle{ID: "b1", OwnerID: "owner-1"}
	if err := s.SaveBattle(context.Background(), b); !errors.Is(err, domain.ErrEmptyBattle) {
		t.Fatalf("expected ErrEmptyBattle, got %v", err)
	}
}

func TestSaveBattleUpsertMovesToFront(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveBattle(ctx, testBattle("owner-1", id)); err != nil {
			t.Fatalf("SaveBattle(%s) failed: %v", id, err)
		}
	}
	updated := testBattle("owner-1", "a")
	updated.Messages = append(updated.Messages, domain.Message{ID: "a-x", Speaker: "ZHUGE", Body: "再来"})
	if err := s.SaveBattle(ctx, updated); err != nil {
		t.Fatalf("SaveBattle failed: %v", err)
	}

	list, err := s.ListBattles(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListBattles failed: %v", err)
	}
	var ids []string
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	want := []string{"a", "c", "b"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
	if len(list[0].Messages) != 3 {
		t.Errorf("expected updated battle to have 3 messages, got %d", len(list[0].Messages))
	}
}

func TestSaveBattleEvictsBeyondCap(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i <= domain.HistoryCap; i++ {
		if err := s.SaveBattle(ctx, testBattle("owner-1", fmt.Sprintf("b%02d", i))); err != nil {
			t.Fatalf("SaveBattle(%d) failed: %v", i, err)
		}
	}
	if err := s.SaveBattle(ctx, testBattle("owner-2", "keep")); err != nil {
		t.Fatalf("SaveBattle failed: %v", err)
	}

	list, err := s.ListBattles(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListBattles failed: %v", err)
	}
	if len(list) != domain.HistoryCap {
		t.Fatalf("len = %d, want %d", len(list), domain.HistoryCap)
	}
	if list[0].ID != fmt.Sprintf("b%02d", domain.HistoryCap) {
		t.Errorf("newest = %s", list[0].ID)
	}
	if got, _ := s.GetBattle(ctx, "owner-1", "b00"); got != nil {
		t.Error("expected oldest battle to be evicted")
	}

	others, err := s.ListBattles(ctx, "owner-2")
	if err != nil {
		t.Fatalf("ListBattles failed: %v", err)
	}
	if len(others) != 1 {
		t.Errorf("eviction must be per owner, got %d battles for owner-2", len(others))
	}
}

func TestDeleteBattleIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveBattle(ctx, testBattle("owner-1", "b1")); err != nil {
		t.Fatalf("SaveBattle failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.DeleteBattle(ctx, "owner-1", "b1"); err != nil {
			t.Fatalf("DeleteBattle #%d failed: %v", i+1, err)
		}
	}
	got, err := s.GetBattle(ctx, "owner-1", "b1")
	if err != nil {
		t.Fatalf("GetBattle failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected battle to be deleted")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
