// Package media routes image submissions through the vision advisor.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/generation"
)

// MaxImageBytes bounds accepted uploads.
const MaxImageBytes = 8 << 20

// DefaultInstruction is sent when the user attaches no note.
const DefaultInstruction = "请分析这张图片中的争吵局势，并给出反击建议。"

var (
	// ErrEmptyImage indicates an image submission without data.
	ErrEmptyImage = errors.New("image is empty")
	// ErrUnsupportedImage indicates data that is not a supported image type.
	ErrUnsupportedImage = errors.New("unsupported image type")
	// ErrImageTooLarge indicates an image above MaxImageBytes.
	ErrImageTooLarge = errors.New("image too large")
)

var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Analyzer issues the vision call.
type Analyzer interface {
	Analyze(ctx context.Context, req generation.VisionRequest) (generation.Result, error)
}

// Analysis is the vision advisor's reading of an image.
type Analysis struct {
	Description string
	Transformed *domain.Attachment
}

// Pipeline prepares images and runs them through the vision advisor.
type Pipeline struct {
	analyzer Analyzer
	persona  string
	logger   *slog.Logger
}

// NewPipeline creates a pipeline using the registry's vision persona.
func NewPipeline(analyzer Analyzer, registry *advisor.Registry, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		analyzer: analyzer,
		persona:  registry.Profile(advisor.Vision).Persona,
		logger:   logger,
	}
}

// DetectImageType returns the MIME type of image, or an error wrapping
// generation.ErrInvalidRequest when it is empty, oversized or not an image.
func DetectImageType(image []byte) (string, error) {
	if len(image) == 0 {
		return "", generation.InvalidRequest(ErrEmptyImage)
	}
	if len(image) > MaxImageBytes {
		return "", generation.InvalidRequest(fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(image)))
	}
	mimeType := http.DetectContentType(image)
	if !supportedTypes[mimeType] {
		return "", generation.InvalidRequest(fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType))
	}
	return mimeType, nil
}

// Analyze validates image and asks the vision advisor to read it. note is
// the user's optional instruction.
func (p *Pipeline) Analyze(ctx context.Context, image []byte, note string) (Analysis, error) {
	mimeType, err := DetectImageType(image)
	if err != nil {
		return Analysis{}, err
	}

	instruction := strings.TrimSpace(note)
	if instruction == "" {
		instruction = DefaultInstruction
	}

	res, err := p.analyzer.Analyze(ctx, generation.VisionRequest{
		Persona:     p.persona,
		Image:       image,
		MIMEType:    mimeType,
		Instruction: instruction,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze image: %w", err)
	}

	out := Analysis{Description: res.Text}
	if res.Media != nil && len(res.Media.Image) > 0 {
		mt := res.Media.ImageMIMEType
		if mt == "" {
			mt = http.DetectContentType(res.Media.Image)
		}
		out.Transformed = &domain.Attachment{MIMEType: mt, Data: res.Media.Image}
	}
	p.logger.Debug("image analyzed",
		"mime_type", mimeType,
		"bytes", len(image),
		"transformed", out.Transformed != nil)
	return out, nil
}
