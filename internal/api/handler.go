// Package api provides HTTP handlers for the Quarrel Labs API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/engine"
	"github.com/ashureev/quarrel-labs/internal/identity"
	"github.com/ashureev/quarrel-labs/internal/store"
	"github.com/ashureev/quarrel-labs/internal/voice"
	"github.com/go-chi/chi/v5"
)

// maxTurnBodyBytes allows a base64 image of media.MaxImageBytes plus text.
const maxTurnBodyBytes = 12 << 20

// Synthesizer renders a message as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, msg domain.Message) (voice.Clip, error)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Arena    *engine.Arena
	Repo     store.Repository
	Registry *advisor.Registry
	Narrator Synthesizer
	Limiter  *RateLimiter
	Streams  *Streams
	// AllowedOrigin is checked on WebSocket upgrades outside development.
	AllowedOrigin string
	IsDev         bool
}

// Handler serves the battle API.
type Handler struct {
	arena         *engine.Arena
	repo          store.Repository
	registry      *advisor.Registry
	narrator      Synthesizer
	limiter       *RateLimiter
	streams       *Streams
	channels      *channels
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	streams := deps.Streams
	if streams == nil {
		streams = NewStreams()
	}
	return &Handler{
		arena:         deps.Arena,
		repo:          deps.Repo,
		registry:      deps.Registry,
		narrator:      deps.Narrator,
		limiter:       deps.Limiter,
		streams:       streams,
		channels:      newChannels(),
		allowedOrigin: deps.AllowedOrigin,
		isDev:         deps.IsDev,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/config", h.GetConfig)

		r.Get("/battle", h.GetBattle)
		r.Post("/battle/reset", h.ResetBattle)
		r.Post("/battle/turns", h.SubmitTurn)
		r.Post("/battle/messages/{messageID}/speech", h.Speak)

		r.Get("/battles", h.ListBattles)
		r.Get("/battles/{battleID}", h.GetSavedBattle)
		r.Delete("/battles/{battleID}", h.DeleteBattle)
		r.Post("/battles/{battleID}/load", h.LoadBattle)
		r.Post("/battles/{battleID}/share", h.ShareBattle)

		r.Post("/share/load", h.LoadShare)
	})
	r.Get("/ws/battle", h.Stream)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func ownerID(r *http.Request) string {
	return identity.OwnerIDFromContext(r.Context())
}

// GetConfig returns the advisor catalogue for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"advisors":     h.registry.Profiles(),
		"historyCap":   domain.HistoryCap,
		"maxSelection": advisor.MaxSelection,
	})
}

// Health reports database connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "database_unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
