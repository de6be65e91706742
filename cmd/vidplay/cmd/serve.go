package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internalhttp "github.com/jmylchreest/vidplay/internal/http"
	"github.com/jmylchreest/vidplay/internal/http/handlers"
	"github.com/jmylchreest/vidplay/internal/observability"
	"github.com/jmylchreest/vidplay/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vidplay server",
	Long: `Start the vidplay HTTP control plane.

The server provides:
- REST API to open sources and control playback
- Latest frame snapshots as PNG, JPEG, BMP or TIFF
- Player events as Server-Sent Events and raw PCM audio streaming
- Health check endpoint and Prometheus metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().Int("port", 8090, "Port to listen on")
	serveCmd.Flags().String("open", "", "Source to open once the server is up")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	svc, err := newPlaybackService(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			observability.WithError(logger, err).Warn("closing player")
		}
	}()

	server := internalhttp.NewServer(cfg.Server, cfg.Metrics, logger, version.Version)

	healthHandler := handlers.NewHealthHandler(version.Version, svc.Player())
	healthHandler.Register(server.API())

	playerHandler := handlers.NewPlayerHandler(svc)
	playerHandler.Register(server.API())

	streamHandler := handlers.NewStreamHandler(svc, logger)
	streamHandler.SetAudioStreaming(cfg.Server.AudioChunk.Int(), cfg.Server.AudioPoll)
	streamHandler.Register(server.API())
	streamHandler.RegisterStreams(server.Router())

	if source, _ := cmd.Flags().GetString("open"); source != "" {
		if err := svc.Open(source); err != nil {
			logger.Warn("failed to open initial source",
				slog.String("source", observability.RedactSource(source)),
				slog.String("error", err.Error()),
			)
		}
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting vidplay server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
