package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/server"
	"github.com/54b3r/docchat-go/internal/tracing"
)

// NewServeCmd constructs the `docchat serve` command, which starts the HTTP
// server exposing sessions, document upload and streamed chat.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docchat HTTP server",
		Long: `Start the docchat HTTP server.

The server exposes a REST API for sessions and document uploads, streams
chat answers as Server-Sent Events on POST /api/chat, and serves
/api/health, /api/ready and /metrics.

Set DOCCHAT_API_KEY to require a Bearer token on /api/*.

Examples:
  docchat serve
  docchat serve --port 9090
  MODEL_PROVIDER=openai EMBEDDING_PROVIDER=openai docchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Env and config file are loaded in PersistentPreRunE, after
			// flag defaults were set.
			if !cmd.Flags().Changed("host") {
				host = envOr("DOCCHAT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = envInt("DOCCHAT_PORT", port)
			}

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)

			st, err := buildStack(ctx, log, metrics)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			metrics.WatchEmbedder(st.embedder)

			cfg := &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				APIKey:  os.Getenv("DOCCHAT_API_KEY"),
				Metrics: metrics,
				Pingers: []server.Pinger{
					server.NewLLMPinger(st.providerCfg.HealthCheck(), string(st.providerCfg.Backend)),
					server.NewEmbedderPinger(st.embedder),
				},
				Embedder: st.embedder,
			}
			if v, err := strconv.ParseInt(os.Getenv("DOCCHAT_MAX_UPLOAD_BYTES"), 10, 64); err == nil && v > 0 {
				cfg.MaxUploadBytes = v
			}

			archive, err := openArchive(log)
			if err != nil {
				log.Warn("archive: failed to open store, disabling", slog.Any("error", err))
			} else if archive != nil {
				defer func() { _ = archive.Close() }()
				cfg.Archive = archive
			}

			srv, err := server.New(st.engine, cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env DOCCHAT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env DOCCHAT_PORT)")

	return cmd
}

// envOr returns the env var key, or def when it is unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns the env var key parsed as an int, or def.
func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}
