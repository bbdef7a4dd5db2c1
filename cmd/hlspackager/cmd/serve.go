package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nullshard/hlspackager/internal/config"
	internalhttp "github.com/nullshard/hlspackager/internal/http"
	"github.com/nullshard/hlspackager/internal/http/handlers"
	"github.com/nullshard/hlspackager/internal/observability"
	"github.com/nullshard/hlspackager/internal/session"
	"github.com/nullshard/hlspackager/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hlspackager HTTP server and session supervisor",
	Long: `Run the hlspackager HTTP server.

The server provides:
- Media and master playlist endpoints, including the blocking-reload
  long-poll protocol for LL-HLS players
- Segment, partial segment, and init segment delivery
- Session status/control endpoints for operators
- Push destination circuit breaker status, for HTTP destinations
- A health check endpoint

Sessions themselves are started by an embedding application through the
internal/session package's Go API, supplying a TrackOracle over its own
source material (the MP4 reader / sample table oracle is out of scope for
this engine per its specification); this command only runs the supervisor
that tracks whatever sessions that application starts, plus the HTTP
surface players and operators talk to.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	supervisor, err := session.NewSupervisor(cfg.Session, logger)
	if err != nil {
		return fmt.Errorf("starting session supervisor: %w", err)
	}

	serverConfig := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	healthHandler := handlers.NewHealthHandler(version.Version)
	server.Router().Get("/healthz", healthHandler.ServeHTTP)

	playlistHandler := handlers.NewPlaylistHandler(supervisor)
	playlistHandler.Register(server.Router())

	segmentHandler := handlers.NewSegmentHandler(supervisor)
	segmentHandler.Register(server.Router())

	sessionAPIHandler := handlers.NewSessionAPIHandler(supervisor)
	sessionAPIHandler.Register(server.Router())

	pushStatusHandler := handlers.NewPushStatusHandler(nil)
	pushStatusHandler.Register(server.Router())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting hlspackager server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("session supervisor shutdown did not complete cleanly", slog.String("error", err.Error()))
	}

	return serveErr
}
