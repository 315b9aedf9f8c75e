package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/engine"
)

// turnTimeout bounds a detached turn: up to four advisors, each with retries.
const turnTimeout = 5 * time.Minute

type turnRequest struct {
	Scenario     string `json:"scenario"`
	OpponentLine string `json:"opponentLine"`
	// Image is base64 encoded by encoding/json.
	Image []byte `json:"image,omitempty"`
	Note  string `json:"note,omitempty"`
}

type noticePayload struct {
	Kind           string `json:"kind"`
	Text           string `json:"text"`
	DismissAfterMs int64  `json:"dismissAfterMs"`
}

func toNoticePayload(n *engine.Notice) *noticePayload {
	if n == nil {
		return nil
	}
	return &noticePayload{Kind: string(n.Kind), Text: n.Text, DismissAfterMs: n.DismissAfterMillis()}
}

type turnResponse struct {
	BattleID  string           `json:"battleId"`
	User      domain.Message   `json:"user"`
	Appended  []domain.Message `json:"appended"`
	Selection []string         `json:"selection"`
	Notice    *noticePayload   `json:"notice,omitempty"`
	Error     string           `json:"error,omitempty"`
	Saved     bool             `json:"saved"`
}

type battlePayload struct {
	ID       string           `json:"id"`
	Scenario string           `json:"scenarioText"`
	Messages []domain.Message `json:"messages"`
	SavedAt  int64            `json:"savedAt,omitempty"`
	State    string           `json:"state,omitempty"`
}

func toBattlePayload(b domain.Battle) battlePayload {
	p := battlePayload{ID: b.ID, Scenario: b.Scenario, Messages: b.Messages}
	if p.Messages == nil {
		p.Messages = []domain.Message{}
	}
	if !b.SavedAt.IsZero() {
		p.SavedAt = b.SavedAt.UnixMilli()
	}
	return p
}

// GetBattle returns the device's live battle.
func (h *Handler) GetBattle(w http.ResponseWriter, r *http.Request) {
	e := h.arena.Get(ownerID(r))
	p := toBattlePayload(e.Battle())
	p.State = e.State().String()
	JSON(w, http.StatusOK, p)
}

// ResetBattle starts a new empty battle.
func (h *Handler) ResetBattle(w http.ResponseWriter, r *http.Request) {
	e := h.arena.Get(ownerID(r))
	if err := e.Reset(); err != nil {
		Error(w, http.StatusConflict, "turn_in_progress")
		return
	}
	JSON(w, http.StatusOK, toBattlePayload(e.Battle()))
}

// SubmitTurn runs one turn and returns what it appended.
func (h *Handler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTurnBodyBytes)
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(owner) {
		slog.Warn("Turn rate limited", "owner_id", owner)
		Error(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	// The turn always runs to completion, even if the client disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), turnTimeout)
	defer cancel()

	out, err := h.arena.Get(owner).RunTurn(ctx, engine.Turn{
		Scenario:     req.Scenario,
		OpponentLine: req.OpponentLine,
		Image:        req.Image,
		Note:         req.Note,
	})
	switch {
	case errors.Is(err, engine.ErrTurnInFlight):
		Error(w, http.StatusConflict, "turn_in_progress")
		return
	case errors.Is(err, engine.ErrEmptyTurn):
		Error(w, http.StatusBadRequest, "scenario_and_opponent_line_required")
		return
	case err != nil:
		slog.Error("Failed to start turn", "owner_id", owner, "error", err)
		Error(w, http.StatusInternalServerError, "turn_failed")
		return
	}

	resp := turnResponse{
		BattleID:  out.BattleID,
		User:      out.User,
		Appended:  out.Appended,
		Selection: out.Selection.Strings(),
		Notice:    toNoticePayload(out.Notice),
		Saved:     out.PersistErr == nil,
	}
	if resp.Appended == nil {
		resp.Appended = []domain.Message{}
	}
	if out.Err != nil {
		resp.Error = "turn_interrupted"
	}
	JSON(w, http.StatusOK, resp)
}
