package connectors

import (
	"context"

	"exteroid/internal/logger"
	"exteroid/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       *logger.Logger
}

type FetchResult struct {
	Fetched    int `json:"fetched"`
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, log *logger.Logger) *FetchService {
	if log == nil {
		log = logger.Nop()
	}
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       log,
	}
}

// FetchAndStore pulls up to max messages and records the new ones as
// fetched. Messages seen before keep their processing status.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		stored, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if stored.Duplicate {
			res.Duplicates++
			s.log.DebugwCtx(ctx, "mail already stored", "provider", msg.Provider, "message_id", msg.MessageID, "email_id", stored.Email.ID)
			continue
		}
		res.Stored++
	}

	s.log.InfowCtx(ctx, "mail fetched", "label", label, "fetched", res.Fetched, "stored", res.Stored, "duplicates", res.Duplicates)
	return res, nil
}
