// Quarrel Labs - generation gateway
//
// Serves the Gemini transport over gRPC so several battle servers can share
// one API key and quota via GENERATION_GATEWAY_ADDR.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/quarrel-labs/internal/config"
	"github.com/ashureev/quarrel-labs/internal/generation"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.UseGateway() {
		slog.Error("GENERATION_GATEWAY_ADDR is set; the gateway must talk to Gemini directly")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := generation.NewGenaiTransport(ctx, cfg.GenerationOpenConfig().Genai)
	if err != nil {
		slog.Error("Failed to initialize Gemini transport", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Generation.GatewayListen)
	if err != nil {
		slog.Error("Failed to listen", "addr", cfg.Generation.GatewayListen, "error", err)
		os.Exit(1)
	}

	srv := grpc.NewServer()
	generation.RegisterGatewayServer(srv, transport)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		slog.Info("Gateway listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			slog.Error("Gateway failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	srv.GracefulStop()
	slog.Info("Gateway stopped successfully")
}
