package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/generation"
	"github.com/ashureev/quarrel-labs/internal/voice"
	"github.com/go-chi/chi/v5"
)

// channels hands out one audio channel per device, so a device plays at
// most one message at a time.
type channels struct {
	mu    sync.Mutex
	byKey map[string]*voice.Channel
}

func newChannels() *channels {
	return &channels{byKey: make(map[string]*voice.Channel)}
}

func (c *channels) get(owner string) *voice.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.byKey[owner]
	if !ok {
		ch = voice.NewChannel(nil)
		c.byKey[owner] = ch
	}
	return ch
}

// Speak synthesizes a message of the live battle and returns it as WAV.
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	messageID := chi.URLParam(r, "messageID")
	if h.narrator == nil {
		Error(w, http.StatusNotImplemented, "speech_unavailable")
		return
	}

	msg, ok := findMessage(h.arena.Get(owner).Battle().Messages, messageID)
	if !ok {
		Error(w, http.StatusNotFound, "message_not_found")
		return
	}

	clip, err := h.narrator.Synthesize(r.Context(), msg)
	switch {
	case errors.Is(err, voice.ErrNotNarratable):
		Error(w, http.StatusBadRequest, "message_not_narratable")
		return
	case generation.IsQuotaExhausted(err):
		Error(w, http.StatusServiceUnavailable, "speech_overloaded")
		return
	case err != nil:
		slog.Error("Failed to synthesize message", "owner_id", owner, "message_id", messageID, "error", err)
		Error(w, http.StatusBadGateway, "speech_failed")
		return
	}

	open := func() (io.WriteCloser, error) {
		w.Header().Set("Content-Type", "audio/wav")
		return voice.NewWAVSink(w, clip.SampleRate), nil
	}
	if err := h.channels.get(owner).PlayTo(r.Context(), open, clip.PCM); err != nil {
		if errors.Is(err, voice.ErrChannelBusy) {
			Error(w, http.StatusConflict, "speech_in_progress")
			return
		}
		slog.Warn("Failed to stream speech", "owner_id", owner, "message_id", messageID, "error", err)
	}
}

func findMessage(msgs []domain.Message, id string) (domain.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}
