package generation

import (
	"context"
	"log/slog"
	"time"
)

// OpenConfig selects a transport. A non-empty GatewayAddr routes through
// the gRPC gateway; otherwise Gemini is called directly.
type OpenConfig struct {
	GatewayAddr    string
	RequestTimeout time.Duration
	Genai          GenaiConfig
}

// Open creates the configured transport and returns a func releasing it.
func Open(ctx context.Context, cfg OpenConfig, logger *slog.Logger) (Transport, func(), error) {
	if cfg.GatewayAddr != "" {
		gw := DefaultGatewayConfig()
		gw.Address = cfg.GatewayAddr
		if cfg.RequestTimeout > 0 {
			gw.RequestTimeout = cfg.RequestTimeout
		}
		t, err := DialGateway(gw, logger)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	}

	t, err := NewGenaiTransport(ctx, cfg.Genai)
	if err != nil {
		return nil, nil, err
	}
	return t, func() {}, nil
}
