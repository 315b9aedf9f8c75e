// Package generation is the single gateway to the external text, image and
// speech generation service. Every call goes through Client, which owns the
// retry policy and error classification.
package generation

import (
	"context"

	"github.com/ashureev/quarrel-labs/internal/domain"
)

// Format selects the shape of a text response.
type Format int

const (
	// FormatText asks for free-form text.
	FormatText Format = iota
	// FormatJSONArray asks for a JSON array of strings.
	FormatJSONArray
)

// SpeechSampleRate is the sample rate of synthesized PCM16 mono audio.
const SpeechSampleRate = 24000

// TextRequest is a single text generation call.
type TextRequest struct {
	Persona     string
	Prompt      string
	Temperature float32
	Format      Format
}

// TextResponse carries Text for FormatText and Items for FormatJSONArray.
type TextResponse struct {
	Text  string
	Items []string
}

// VisionRequest asks the service to describe, and optionally transform, an image.
type VisionRequest struct {
	Persona     string
	Image       []byte
	MIMEType    string
	Instruction string
}

// VisionResponse is the result of a vision call.
type VisionResponse struct {
	Description   string
	Image         []byte
	ImageMIMEType string
}

// SpeechRequest asks for text to be spoken with a voice profile.
type SpeechRequest struct {
	Text  string
	Voice string
}

// SpeechResponse carries PCM16 mono audio.
type SpeechResponse struct {
	Audio      []byte
	SampleRate int
}

// Transport talks to a concrete generation provider. Implementations classify
// failures with RateLimited and InvalidRequest; anything else is treated as unknown.
type Transport interface {
	GenerateText(ctx context.Context, req TextRequest) (TextResponse, error)
	AnalyzeImage(ctx context.Context, req VisionRequest) (VisionResponse, error)
	Synthesize(ctx context.Context, req SpeechRequest) (SpeechResponse, error)
}

// Request is an advisor generation call.
type Request struct {
	Persona      string
	Scenario     string
	OpponentLine string
	// History is the truncated tail of the battle log.
	History []domain.Message
	// PeerContext is the labelled output of this turn's advisors. Arbiter only.
	PeerContext string
	// Labels maps speaker tags in History to display names.
	Labels map[string]string
}

// Media is optional non-text output.
type Media struct {
	Image         []byte
	ImageMIMEType string
	Audio         []byte
}

// Result is the output of an advisor call.
type Result struct {
	Text  string
	Media *Media
}
