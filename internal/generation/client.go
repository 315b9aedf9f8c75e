package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// AdvisorTemperature is the sampling temperature for advisor and arbiter calls.
	AdvisorTemperature = 0.7
	// ClassifyTemperature is the sampling temperature for selection calls.
	ClassifyTemperature = 0.2
)

// RetryPolicy bounds retries of rate-limited calls.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is multiplied by 2^attempt between attempts.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Delay returns the wait before the attempt following attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<attempt)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client is the fault-tolerant gateway to the generation service.
type Client struct {
	transport Transport
	policy    RetryPolicy
	sleep     Sleeper
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		if p.MaxAttempts > 0 {
			c.policy = p
		}
	}
}

// WithSleeper replaces the backoff wait. Tests use it to record delays.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient wraps transport with the retry policy.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		policy:    DefaultRetryPolicy(),
		sleep:     sleepContext,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/ashureev/quarrel-labs/internal/generation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the client's retry policy.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Advise runs one advisor or arbiter call.
func (c *Client) Advise(ctx context.Context, req Request) (Result, error) {
	resp, err := do(ctx, c, "advise", func(ctx context.Context) (TextResponse, error) {
		return c.transport.GenerateText(ctx, TextRequest{
			Persona:     req.Persona,
			Prompt:      BuildPrompt(req),
			Temperature: AdvisorTemperature,
			Format:      FormatText,
		})
	})
	if err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, fmt.Errorf("advise: %w", ErrEmptyResponse)
	}
	return Result{Text: text}, nil
}

// Classify runs a structured selection call returning a list of tokens.
func (c *Client) Classify(ctx context.Context, persona, prompt string) ([]string, error) {
	resp, err := do(ctx, c, "classify", func(ctx context.Context) (TextResponse, error) {
		return c.transport.GenerateText(ctx, TextRequest{
			Persona:     persona,
			Prompt:      prompt,
			Temperature: ClassifyTemperature,
			Format:      FormatJSONArray,
		})
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Analyze runs an image analysis call.
func (c *Client) Analyze(ctx context.Context, req VisionRequest) (Result, error) {
	resp, err := do(ctx, c, "analyze", func(ctx context.Context) (VisionResponse, error) {
		return c.transport.AnalyzeImage(ctx, req)
	})
	if err != nil {
		return Result{}, err
	}
	desc := strings.TrimSpace(resp.Description)
	if desc == "" && len(resp.Image) == 0 {
		return Result{}, fmt.Errorf("analyze: %w", ErrEmptyResponse)
	}
	res := Result{Text: desc}
	if len(resp.Image) > 0 {
		res.Media = &Media{Image: resp.Image, ImageMIMEType: resp.ImageMIMEType}
	}
	return res, nil
}

// Speak runs a speech synthesis call.
func (c *Client) Speak(ctx context.Context, req SpeechRequest) (Result, error) {
	resp, err := do(ctx, c, "speak", func(ctx context.Context) (SpeechResponse, error) {
		return c.transport.Synthesize(ctx, req)
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Audio) == 0 {
		return Result{}, fmt.Errorf("speak: %w", ErrEmptyResponse)
	}
	return Result{Media: &Media{Audio: resp.Audio}}, nil
}

// do is the retry wrapper every call passes through.
func do[T any](ctx context.Context, c *Client, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		spanCtx, span := c.tracer.Start(ctx, "generation."+op, trace.WithAttributes(
			attribute.Int("generation.attempt", attempt+1),
		))
		out, err := call(spanCtx)
		if err == nil {
			span.End()
			return out, nil
		}
		kind := Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		span.End()

		switch kind {
		case KindInvalidRequest:
			c.logger.Warn("generation request rejected", "op", op, "error", err)
			return zero, fmt.Errorf("%s: %w", op, err)
		case KindRateLimited:
			lastErr = err
		default:
			return zero, err
		}

		if attempt == c.policy.MaxAttempts-1 {
			break
		}
		delay := c.policy.Delay(attempt)
		c.logger.Debug("generation rate limited, retrying",
			"op", op,
			"attempt", attempt+1,
			"delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return zero, errors.Join(err, lastErr)
		}
	}

	c.logger.Warn("generation retry budget exhausted", "op", op, "attempts", c.policy.MaxAttempts, "error", lastErr)
	return zero, fmt.Errorf("%s after %d attempts: %w: %w", op, c.policy.MaxAttempts, ErrQuotaExhausted, lastErr)
}
