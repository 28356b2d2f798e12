// Package main implements the kokoro-tts API server: it exposes the job
// submission and status endpoints and, by default, runs the processing
// workers in the same process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/konsultti/kokoro-tts/internal/api"
	"github.com/konsultti/kokoro-tts/internal/config"
	"github.com/konsultti/kokoro-tts/internal/executor"
	"github.com/konsultti/kokoro-tts/internal/manager"
	"github.com/konsultti/kokoro-tts/internal/platform/audio"
	"github.com/konsultti/kokoro-tts/internal/platform/logger"
	"github.com/konsultti/kokoro-tts/internal/platform/sqlite"
	"github.com/konsultti/kokoro-tts/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func run() error {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	slogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	slogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"database", cfg.Database.Path,
		"workers", cfg.Worker.Count)

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	jobStore := sqlite.NewJobStore(db)
	jobManager := manager.New(jobStore, slogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, slogger)

	var wg sync.WaitGroup

	// In-process workers. Worker.Count 0 means this deployment runs
	// cmd/worker separately.
	exec := executor.NewAudiobook(
		audio.TextChapterSource{},
		audio.CommandSynthesizer{Command: cfg.Audio.TTSCommand},
		cfg.Audio.WorkDir,
	)
	encoder := audio.FFmpegEncoder{Path: cfg.Audio.FFmpegPath}
	workerCfg := worker.Config{
		PollInterval:      cfg.Worker.PollInterval,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		StaleAfter:        cfg.Worker.StaleAfter,
	}
	for i := 0; i < cfg.Worker.Count; i++ {
		w := worker.New("", jobStore, exec, encoder, workerCfg, slogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(ctx)
		}()
	}

	if cfg.Cleanup.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runCleanup(ctx, jobManager, cfg.Cleanup, slogger)
		}()
	}

	router := api.NewRouter(api.NewJobHandler(jobManager))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slogger.Info("http server listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	slogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slogger.Error("http shutdown failed", "error", err)
	}

	wg.Wait()
	slogger.Info("shutdown complete")
	return nil
}

// runCleanup periodically removes completed jobs past the retention
// window.
func runCleanup(ctx context.Context, m *manager.Manager, cfg config.CleanupConfig, slogger *slog.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CleanupOldJobs(ctx, retention); err != nil && !errors.Is(err, context.Canceled) {
				slogger.Error("cleanup sweep failed", "error", err)
			}
		}
	}
}
