package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(flagConfig, flagDB)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := append(a.engOpts, engine.WithMetrics(engine.NewMetrics()))
	srv := server.New(a.db, VersionString(),
		server.WithEngineOptions(opts...),
		server.WithLogger(a.logger),
		server.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...))
	addr := a.cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Embed any neurons missing vectors
	if a.cfg.Embedding.Provider != "none" {
		go func() {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			eng := engine.New(a.db, "", opts...)
			emb, err := a.embedder(ctx, eng)
			if err != nil || emb == nil {
				a.logger.Warn("embedder unavailable", zap.Error(err))
				return
			}
			if n, err := eng.EmbedMissing(ctx, emb, 0); err != nil {
				a.logger.Warn("embed missing", zap.Error(err))
			} else if n > 0 {
				a.logger.Info("embedded missing neurons", zap.Int("count", n), zap.String("model", emb.Model()))
			}
		}()
	}

	interval := time.Duration(a.cfg.Server.MaintenanceMinutes) * time.Minute
	go srv.RunMaintenance(ctx, interval)

	errc := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "hebbian serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", a.db.Path)
		if interval > 0 {
			fmt.Fprintf(os.Stderr, "  maintenance: every %s\n", interval)
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
