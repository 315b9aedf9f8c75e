package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const gatewayServiceName = "quarrel.generation.v1.Gateway"

const (
	methodGenerateText = "/" + gatewayServiceName + "/GenerateText"
	methodAnalyzeImage = "/" + gatewayServiceName + "/AnalyzeImage"
	methodSynthesize   = "/" + gatewayServiceName + "/Synthesize"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GatewayConfig holds configuration for the gRPC generation gateway client.
type GatewayConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGatewayConfig returns default configuration.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   60 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GatewayTransport implements Transport against a generation gateway sidecar
// speaking gRPC with structpb payloads.
type GatewayTransport struct {
	conn           *grpc.ClientConn
	requestTimeout time.Duration
	logger         *slog.Logger
}

var _ Transport = (*GatewayTransport)(nil)

// DialGateway connects to the gateway and waits until the connection is ready.
func DialGateway(cfg GatewayConfig, logger *slog.Logger) (*GatewayTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultGatewayConfig()
	if cfg.Address == "" {
		cfg.Address = defaults.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = defaults.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = defaults.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to generation gateway at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("generation gateway at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to generation gateway", "address", cfg.Address)
	return NewGatewayTransport(conn, cfg.RequestTimeout, logger), nil
}

// NewGatewayTransport wraps an existing connection.
func NewGatewayTransport(conn *grpc.ClientConn, requestTimeout time.Duration, logger *slog.Logger) *GatewayTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayTransport{conn: conn, requestTimeout: requestTimeout, logger: logger}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (t *GatewayTransport) Close() {
	if t.conn != nil {
		if err := t.conn.Close(); err != nil {
			t.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func (t *GatewayTransport) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, InvalidRequest(fmt.Errorf("encode gateway request: %w", err))
	}
	if t.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.requestTimeout)
		defer cancel()
	}
	out := &structpb.Struct{}
	if err := t.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, classifyGRPCError(err)
	}
	return out, nil
}

// GenerateText implements Transport.
func (t *GatewayTransport) GenerateText(ctx context.Context, req TextRequest) (TextResponse, error) {
	format := "text"
	if req.Format == FormatJSONArray {
		format = "json-array"
	}
	out, err := t.invoke(ctx, methodGenerateText, map[string]any{
		"personaInstructions": req.Persona,
		"prompt":              req.Prompt,
		"temperature":         float64(req.Temperature),
		"responseFormat":      format,
	})
	if err != nil {
		return TextResponse{}, err
	}
	fields := out.GetFields()
	resp := TextResponse{Text: fields["text"].GetStringValue()}
	for _, v := range fields["items"].GetListValue().GetValues() {
		resp.Items = append(resp.Items, v.GetStringValue())
	}
	return resp, nil
}

// AnalyzeImage implements Transport.
func (t *GatewayTransport) AnalyzeImage(ctx context.Context, req VisionRequest) (VisionResponse, error) {
	out, err := t.invoke(ctx, methodAnalyzeImage, map[string]any{
		"personaInstructions": req.Persona,
		"imageBytes":          base64.StdEncoding.EncodeToString(req.Image),
		"mimeType":            req.MIMEType,
		"instructionText":     req.Instruction,
	})
	if err != nil {
		return VisionResponse{}, err
	}
	fields := out.GetFields()
	resp := VisionResponse{
		Description:   fields["descriptionText"].GetStringValue(),
		ImageMIMEType: fields["transformedMimeType"].GetStringValue(),
	}
	if raw := fields["transformedImageBytes"].GetStringValue(); raw != "" {
		img, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return VisionResponse{}, fmt.Errorf("decode transformed image: %w", err)
		}
		resp.Image = img
	}
	return resp, nil
}

// Synthesize implements Transport.
func (t *GatewayTransport) Synthesize(ctx context.Context, req SpeechRequest) (SpeechResponse, error) {
	out, err := t.invoke(ctx, methodSynthesize, map[string]any{
		"text":         req.Text,
		"voiceProfile": req.Voice,
	})
	if err != nil {
		return SpeechResponse{}, err
	}
	fields := out.GetFields()
	audio, err := base64.StdEncoding.DecodeString(fields["audioBytes"].GetStringValue())
	if err != nil {
		return SpeechResponse{}, fmt.Errorf("decode audio: %w", err)
	}
	rate := int(fields["sampleRate"].GetNumberValue())
	if rate == 0 {
		rate = SpeechSampleRate
	}
	return SpeechResponse{Audio: audio, SampleRate: rate}, nil
}

func classifyGRPCError(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return RateLimited(err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return InvalidRequest(err)
	default:
		return err
	}
}

// grpcStatus converts a Transport failure into a gRPC status for gateway servers.
func grpcStatus(err error) error {
	switch Classify(err) {
	case KindRateLimited:
		return status.Error(codes.ResourceExhausted, err.Error())
	case KindInvalidRequest:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
