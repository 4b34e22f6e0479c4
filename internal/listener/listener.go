package listener

import (
	"context"
	"strings"
	"time"

	"exteroid/internal/config"
	"exteroid/internal/connectors"
	"exteroid/internal/logger"
	"exteroid/internal/pipeline"
	"exteroid/internal/storage"
)

// Service polls one mailbox and turns new contact mail into exports.
type Service struct {
	db        *storage.DB
	cfg       config.Config
	log       *logger.Logger
	processor *pipeline.ProcessingService
	connect   func(ctx context.Context, provider string) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, log *logger.Logger, processor *pipeline.ProcessingService) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{db: db, cfg: cfg, log: log, processor: processor}
	s.connect = func(ctx context.Context, provider string) (connectors.MailConnector, error) {
		return connectors.New(ctx, provider, s.cfg)
	}
	return s
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Rows      int
}

// Run repeats cycles until ctx is done. A failing cycle is logged and the
// loop carries on.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.log.Infow("listener started", "provider", s.provider(), "label", s.cfg.MailListenerLabel, "interval", interval.String())
	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Errorw("listener cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.log.Infow("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// LastCycleKey is the metadata key holding the time of the provider's last
// completed cycle.
func LastCycleKey(provider string) string {
	return "listener." + provider + ".lastCycle"
}

// LastCycle reports when the provider last completed a cycle, or zero.
func (s *Service) LastCycle() (time.Time, error) {
	v, err := s.db.GetMetadata(LastCycleKey(s.provider()))
	if err != nil || v == nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, *v)
}

func (s *Service) provider() string {
	return strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
}

// RunCycle fetches new mail and, with auto export on, processes pending mail
// of the listener's provider.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx = logger.ContextWithTraceID(ctx, pipeline.NewTraceID())
	provider := s.provider()

	conn, err := s.connect(ctx, provider)
	if err != nil {
		return CycleResult{}, err
	}
	fetch := connectors.NewFetchService(s.db, s.cfg.RawMailDir, conn, s.log)
	fetched, err := fetch.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Fetched: fetched.Fetched, Stored: fetched.Stored}

	if s.cfg.MailListenerAutoExport {
		res.Processed, res.Rows, err = s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
		if err != nil {
			return res, err
		}
	}

	if err := s.db.SetMetadata(LastCycleKey(provider), time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.log.WarnwCtx(ctx, "listener metadata update failed", "error", err)
	}
	s.log.InfowCtx(ctx, "listener cycle done",
		"provider", provider,
		"fetched", res.Fetched,
		"stored", res.Stored,
		"processed", res.Processed,
		"rows", res.Rows,
	)
	return res, nil
}
