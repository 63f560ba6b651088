package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/connectors"
	"github.com/rodrigosardinha/gerador-query-darm/internal/listener"
	"github.com/rodrigosardinha/gerador-query-darm/internal/logging"
	"github.com/rodrigosardinha/gerador-query-darm/internal/pipeline"
	"github.com/rodrigosardinha/gerador-query-darm/internal/recognition"
	"github.com/rodrigosardinha/gerador-query-darm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(cfg.Validate())
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recognizer, err := recognition.New(cfg, log)
	must(err)
	conn, err := connectors.New(ctx, cfg, cfg.MailListenerProvider, log)
	must(err)

	fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, log)
	processor := pipeline.NewProcessingService(db, cfg, recognizer, log)
	svc := listener.NewService(cfg, cfg.MailListenerProvider, fetch, processor, log)

	log.WithField("provider", cfg.MailListenerProvider).Info("listener started")
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
