package connectors

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       logrus.FieldLogger
}

type FetchResult struct {
	Fetched   int
	Stored    int
	Unchanged int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, log logrus.FieldLogger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       log,
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label, search string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, search, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		stored, err := s.store.Store(msg)
		if err != nil {
			return result, err
		}
		if stored.Fresh {
			result.Stored++
		} else {
			result.Unchanged++
		}
		s.log.WithFields(logrus.Fields{
			"provider":  msg.Provider,
			"messageId": msg.MessageID,
			"status":    stored.Email.Status,
			"fresh":     stored.Fresh,
		}).Debug("message stored")
	}
	return result, nil
}
