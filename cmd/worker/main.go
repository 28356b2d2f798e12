// Package main implements a standalone worker process. It shares the
// SQLite database with the API server, so extra workers can be added
// on the same host without restarting the server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/konsultti/kokoro-tts/internal/config"
	"github.com/konsultti/kokoro-tts/internal/executor"
	"github.com/konsultti/kokoro-tts/internal/platform/audio"
	"github.com/konsultti/kokoro-tts/internal/platform/logger"
	"github.com/konsultti/kokoro-tts/internal/platform/sqlite"
	"github.com/konsultti/kokoro-tts/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	slogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	jobStore := sqlite.NewJobStore(db)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, slogger)

	count := cfg.Worker.Count
	if count < 1 {
		count = 1
	}
	slogger.Info("starting workers", "count", count, "database", cfg.Database.Path)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		w := worker.New("", jobStore, exec, encoder, workerCfg, slogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(ctx)
		}()
	}

	wg.Wait()
	slogger.Info("all workers stopped")
	return nil
}
