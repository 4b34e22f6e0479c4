package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exteroid/internal/config"
	"exteroid/internal/listener"
	"exteroid/internal/logger"
	"exteroid/internal/ocr"
	"exteroid/internal/pipeline"
	"exteroid/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := logger.Init("mail-intake", cfg.LogEnv)
	defer log.SafeSync()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	runner, err := ocr.NewRunnerFromConfig(cfg, log)
	if err != nil {
		log.Warnw("ocr disabled, image attachments will be reported as failures", "error", err)
		runner = nil
	}

	svc := listener.NewService(db, cfg, log, pipeline.NewProcessingService(db, cfg, log, nil, runner))
	if last, err := svc.LastCycle(); err == nil && !last.IsZero() {
		log.Infow("resuming mail intake", "provider", cfg.MailListenerProvider, "last_cycle", last.Format(time.RFC3339))
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
