// Package listener polls a mailbox and turns new payment mail into SQL batches.
package listener

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	"github.com/rodrigosardinha/gerador-query-darm/internal/connectors"
	"github.com/rodrigosardinha/gerador-query-darm/internal/pipeline"
)

type Service struct {
	cfg       config.Config
	provider  string
	fetch     *connectors.FetchService
	processor *pipeline.ProcessingService
	log       logrus.FieldLogger
}

type CycleResult struct {
	Fetch  connectors.FetchResult
	Emails int
	Run    pipeline.RunResult
}

func NewService(cfg config.Config, provider string, fetch *connectors.FetchService, processor *pipeline.ProcessingService, log logrus.FieldLogger) *Service {
	return &Service{
		cfg:       cfg,
		provider:  provider,
		fetch:     fetch,
		processor: processor,
		log:       log.WithField("provider", provider),
	}
}

// Run polls until ctx is done. Cycle errors are logged and the next tick retries.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Error("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	fetched, err := s.fetch.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailSearch, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}

	run, emails, err := s.processor.ProcessPendingEmails(ctx, s.cfg.MailListenerProcessBatch, s.provider)
	if err != nil {
		return CycleResult{Fetch: fetched}, err
	}

	s.log.WithFields(logrus.Fields{
		"fetched":      fetched.Fetched,
		"stored":       fetched.Stored,
		"emails":       emails,
		"rows":         run.Stats.Rows,
		"consolidated": run.Consolidated,
	}).Info("listener cycle done")
	return CycleResult{Fetch: fetched, Emails: emails, Run: run}, nil
}
