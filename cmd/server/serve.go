package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devnewz/internal/db"
	"devnewz/internal/logger"
	"devnewz/internal/middleware"
	"devnewz/internal/router"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout     = 10 * time.Second
	limiterCleanupEvery = 5 * time.Minute
	limiterMaxIdle      = 10 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		conn, err := db.Open(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close(conn)
		if err := db.Migrate(conn); err != nil {
			return err
		}
		logger.Log.Info().Msg("migration complete")
		return nil
	},
}

var rerankCmd = &cobra.Command{
	Use:   "rerank",
	Short: "Recompute the stored velocity of every post",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		n, err := a.worker.RefreshAll(cmd.Context())
		if err != nil {
			return err
		}
		a.ranking.PostsChanged(cmd.Context())
		logger.Log.Info().Int("posts", n).Dur("took", time.Since(start)).Msg("rerank complete")
		return nil
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 异步排名 worker
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.worker.Run(ctx)
	}()

	limiter := middleware.NewVoteLimiter(cfg.VoteRatePerSecond, cfg.VoteBurst)
	go func() {
		ticker := time.NewTicker(limiterCleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Cleanup(limiterMaxIdle); n > 0 {
					logger.Log.Debug().Int("removed", n).Msg("vote limiters cleaned up")
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, a.routerDeps(limiter)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", srv.Addr).Str("env", cfg.Environment).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			<-workerDone
			return err
		}
	case <-ctx.Done():
	}

	logger.Log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("server shutdown failed")
	}
	<-workerDone
	logger.Log.Info().Msg("shutdown complete")
	return nil
}
