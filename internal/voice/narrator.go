// Package voice reads advisor messages aloud.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/generation"
)

// ErrNotNarratable indicates a message that has no advisor voice.
var ErrNotNarratable = errors.New("message has no advisor voice")

// Speaker issues speech synthesis calls.
type Speaker interface {
	Speak(ctx context.Context, req generation.SpeechRequest) (generation.Result, error)
}

// Clip is synthesized PCM16 mono audio.
type Clip struct {
	PCM        []byte
	SampleRate int
}

// Narrator synthesizes advisor messages with each advisor's voice.
type Narrator struct {
	speaker  Speaker
	registry *advisor.Registry
	logger   *slog.Logger
}

// NewNarrator creates a narrator.
func NewNarrator(speaker Speaker, registry *advisor.Registry, logger *slog.Logger) *Narrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Narrator{speaker: speaker, registry: registry, logger: logger}
}

// Synthesize renders msg as audio.
func (n *Narrator) Synthesize(ctx context.Context, msg domain.Message) (Clip, error) {
	id, err := advisor.ParseID(msg.Speaker)
	if err != nil || msg.Body == "" {
		return Clip{}, fmt.Errorf("%w: %s", ErrNotNarratable, msg.Speaker)
	}
	profile := n.registry.Profile(id)

	res, err := n.speaker.Speak(ctx, generation.SpeechRequest{Text: msg.Body, Voice: profile.Voice})
	if err != nil {
		return Clip{}, fmt.Errorf("synthesize %s: %w", id, err)
	}
	if res.Media == nil || len(res.Media.Audio) == 0 {
		return Clip{}, fmt.Errorf("synthesize %s: %w", id, generation.ErrEmptyResponse)
	}
	n.logger.Debug("message synthesized", "advisor", id, "voice", profile.Voice, "bytes", len(res.Media.Audio))
	return Clip{PCM: res.Media.Audio, SampleRate: generation.SpeechSampleRate}, nil
}

// Narrate synthesizes msg and plays it on ch.
func (n *Narrator) Narrate(ctx context.Context, msg domain.Message, ch *Channel) error {
	clip, err := n.Synthesize(ctx, msg)
	if err != nil {
		return err
	}
	return ch.Play(ctx, clip.PCM)
}
