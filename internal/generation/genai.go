package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GenaiConfig configures the Gemini transport.
type GenaiConfig struct {
	APIKey      string
	TextModel   string
	VisionModel string
	SpeechModel string
}

// DefaultGenaiConfig returns default model names.
func DefaultGenaiConfig() GenaiConfig {
	return GenaiConfig{
		TextModel:   "gemini-2.5-pro",
		VisionModel: "gemini-2.5-flash-image",
		SpeechModel: "gemini-2.5-flash-preview-tts",
	}
}

// GenaiTransport implements Transport with the Google Gemini API.
type GenaiTransport struct {
	client *genai.Client
	cfg    GenaiConfig
}

var _ Transport = (*GenaiTransport)(nil)

// NewGenaiTransport creates a Gemini-backed transport.
func NewGenaiTransport(ctx context.Context, cfg GenaiConfig) (*GenaiTransport, error) {
	defaults := DefaultGenaiConfig()
	if cfg.TextModel == "" {
		cfg.TextModel = defaults.TextModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = defaults.VisionModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = defaults.SpeechModel
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GenaiTransport{client: client, cfg: cfg}, nil
}

// GenerateText implements Transport.
func (t *GenaiTransport) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	conf := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.Persona != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.Persona, genai.RoleUser)
	}
	if req.Format == FormatJSONArray {
		conf.ResponseMIMEType = "application/json"
		conf.ResponseSchema = &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		}
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.cfg.TextModel, genai.Text(req.Prompt), conf)
	if err != nil {
		return TextResponse{}, classifyGenaiError(err)
	}

	text := resp.Text()
	if req.Format != FormatJSONArray {
		return TextResponse{Text: text}, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return TextResponse{}, fmt.Errorf("decode json array response: %w", err)
	}
	return TextResponse{Items: items}, nil
}

// AnalyzeImage implements Transport.
func (t *GenaiTransport) AnalyzeImage(ctx context.Context, req VisionRequest) (VisionResponse, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Image, req.MIMEType),
		genai.NewPartFromText(req.Instruction),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	conf := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if req.Persona != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.Persona, genai.RoleUser)
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.cfg.VisionModel, contents, conf)
	if err != nil {
		return VisionResponse{}, classifyGenaiError(err)
	}

	var out VisionResponse
	var desc strings.Builder
	for _, part := range firstCandidateParts(resp) {
		if part.Text != "" {
			desc.WriteString(part.Text)
		}
		if part.InlineData != nil && len(out.Image) == 0 {
			out.Image = part.InlineData.Data
			out.ImageMIMEType = part.InlineData.MIMEType
		}
	}
	out.Description = desc.String()
	return out, nil
}

// Synthesize implements Transport.
func (t *GenaiTransport) Synthesize(ctx context.Context, req SpeechRequest) (SpeechResponse, error) {
	conf := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		},
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.cfg.SpeechModel, genai.Text(req.Text), conf)
	if err != nil {
		return SpeechResponse{}, classifyGenaiError(err)
	}
	for _, part := range firstCandidateParts(resp) {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return SpeechResponse{Audio: part.InlineData.Data, SampleRate: SpeechSampleRate}, nil
		}
	}
	return SpeechResponse{}, fmt.Errorf("synthesize: %w", ErrEmptyResponse)
}

func firstCandidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

// classifyGenaiError maps Gemini API errors onto failure kinds.
func classifyGenaiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return err
		}
		apiErr = *apiErrPtr
	}
	return classifyStatus(apiErr.Code, apiErr.Status, err)
}

func classifyStatus(code int, status string, err error) error {
	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return RateLimited(err)
	case code == http.StatusBadRequest || status == "INVALID_ARGUMENT" || status == "FAILED_PRECONDITION":
		return InvalidRequest(err)
	default:
		return err
	}
}
