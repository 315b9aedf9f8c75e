package media

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/generation"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeAnalyzer struct {
	calls int
	got   generation.VisionRequest
	res   generation.Result
	err   error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req generation.VisionRequest) (generation.Result, error) {
	f.calls++
	f.got = req
	return f.res, f.err
}

func newPipeline(t *testing.T, a Analyzer) *Pipeline {
	t.Helper()
	reg, err := advisor.Default()
	if err != nil {
		t.Fatalf("advisor.Default failed: %v", err)
	}
	return NewPipeline(a, reg, nil)
}

func TestAnalyzeRejectsBadImagesBeforeUpstream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		image []byte
		want  error
	}{
		{"empty", nil, ErrEmptyImage},
		{"text", []byte("hello, not an image"), ErrUnsupportedImage},
		{"too large", make([]byte, MaxImageBytes+1), ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fa := &fakeAnalyzer{}
			_, err := newPipeline(t, fa).Analyze(context.Background(), tt.image, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, generation.ErrInvalidRequest) {
				t.Fatalf("expected invalid-request kind, got %v", err)
			}
			if fa.calls != 0 {
				t.Fatalf("expected no upstream call, got %d", fa.calls)
			}
		})
	}
}

func TestAnalyzeUsesVisionPersona(t *testing.T) {
	t.Parallel()

	fa := &fakeAnalyzer{res: generation.Result{
		Text:  "对方在偷换概念。",
		Media: &generation.Media{Image: pngHeader, ImageMIMEType: "image/png"},
	}}
	p := newPipeline(t, fa)

	got, err := p.Analyze(context.Background(), pngHeader, "")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got.Description != "对方在偷换概念。" {
		t.Errorf("Description = %q", got.Description)
	}
	if got.Transformed == nil || got.Transformed.MIMEType != "image/png" {
		t.Errorf("Transformed = %+v", got.Transformed)
	}
	if fa.got.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q", fa.got.MIMEType)
	}
	if fa.got.Persona == "" || fa.got.Persona != p.persona {
		t.Error("expected vision persona to be sent")
	}
	if fa.got.Instruction != DefaultInstruction {
		t.Errorf("Instruction = %q", fa.got.Instruction)
	}
}

func TestAnalyzeWrapsUpstreamFailure(t *testing.T) {
	t.Parallel()

	fa := &fakeAnalyzer{err: generation.ErrQuotaExhausted}
	_, err := newPipeline(t, fa).Analyze(context.Background(), pngHeader, "看看这个")
	if !errors.Is(err, generation.ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if fa.got.Instruction != "看看这个" {
		t.Errorf("Instruction = %q", fa.got.Instruction)
	}
}
