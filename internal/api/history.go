package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/store"
	"github.com/go-chi/chi/v5"
)

const previewRunes = 60

type battleSummary struct {
	ID           string `json:"id"`
	Scenario     string `json:"scenarioText"`
	SavedAt      int64  `json:"savedAt"`
	MessageCount int    `json:"messageCount"`
	Preview      string `json:"preview,omitempty"`
}

func summarize(b *domain.Battle) battleSummary {
	s := battleSummary{
		ID:           b.ID,
		Scenario:     b.Scenario,
		SavedAt:      b.SavedAt.UnixMilli(),
		MessageCount: len(b.Messages),
	}
	if last, ok := b.LastMessage(); ok {
		s.Preview = truncate(last.Body, previewRunes)
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

// ListBattles returns the device's saved battles, newest first.
func (h *Handler) ListBattles(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	battles, err := h.repo.ListBattles(r.Context(), owner)
	if err != nil {
		slog.Error("Failed to list battles", "owner_id", owner, "error", err)
		Error(w, http.StatusInternalServerError, "failed_to_list_battles")
		return
	}
	out := make([]battleSummary, 0, len(battles))
	for _, b := range battles {
		out = append(out, summarize(b))
	}
	JSON(w, http.StatusOK, map[string]interface{}{"battles": out})
}

func (h *Handler) savedBattle(w http.ResponseWriter, r *http.Request) (*domain.Battle, bool) {
	owner := ownerID(r)
	battleID := chi.URLParam(r, "battleID")
	b, err := h.repo.GetBattle(r.Context(), owner, battleID)
	if err != nil {
		slog.Error("Failed to get battle", "owner_id", owner, "battle_id", battleID, "error", err)
		Error(w, http.StatusInternalServerError, "failed_to_get_battle")
		return nil, false
	}
	if b == nil {
		Error(w, http.StatusNotFound, "battle_not_found")
		return nil, false
	}
	return b, true
}

// GetSavedBattle returns one saved battle with its messages.
func (h *Handler) GetSavedBattle(w http.ResponseWriter, r *http.Request) {
	b, ok := h.savedBattle(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, toBattlePayload(*b))
}

// DeleteBattle removes a saved battle. Missing battles are not an error.
func (h *Handler) DeleteBattle(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	battleID := chi.URLParam(r, "battleID")
	if err := h.repo.DeleteBattle(r.Context(), owner, battleID); err != nil {
		slog.Error("Failed to delete battle", "owner_id", owner, "battle_id", battleID, "error", err)
		Error(w, http.StatusInternalServerError, "failed_to_delete_battle")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadBattle makes a saved battle the live one.
func (h *Handler) LoadBattle(w http.ResponseWriter, r *http.Request) {
	b, ok := h.savedBattle(w, r)
	if !ok {
		return
	}
	h.load(w, r, *b)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, b domain.Battle) {
	e := h.arena.Get(ownerID(r))
	if err := e.Load(b); err != nil {
		Error(w, http.StatusConflict, "turn_in_progress")
		return
	}
	JSON(w, http.StatusOK, toBattlePayload(e.Battle()))
}

// ShareBattle returns a share token for a saved battle.
func (h *Handler) ShareBattle(w http.ResponseWriter, r *http.Request) {
	b, ok := h.savedBattle(w, r)
	if !ok {
		return
	}
	token, err := store.EncodeShare(*b)
	if err != nil {
		slog.Error("Failed to encode share token", "battle_id", b.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed_to_share_battle")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"token": token})
}

// LoadShare loads a shared battle as the live one. Tokens that cannot be
// decoded are ignored with 204 No Content.
func (h *Handler) LoadShare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTurnBodyBytes)
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	b, ok := store.DecodeShare(req.Token)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.load(w, r, *b)
}
