package connectors

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
	"github.com/rodrigosardinha/gerador-query-darm/internal/storage"
)

// MailStoreService keeps each raw message once on disk, addressed by content hash.
type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
}

type Stored struct {
	Email internal.EmailRow
	// Fresh is false when the same provider message was already stored with
	// identical content.
	Fresh bool
}

func NewMailStoreService(db *storage.DB, rawMailDir string) *MailStoreService {
	return &MailStoreService{db: db, rawMailDir: rawMailDir}
}

func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (Stored, error) {
	sum := xxh3.Hash128(msg.Raw).Bytes()
	hash := fmt.Sprintf("%x", sum[:])

	existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID)
	if err != nil {
		return Stored{}, err
	}
	if existing != nil && existing.Hash == hash {
		return Stored{Email: *existing}, nil
	}

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return Stored{}, err
	}
	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return Stored{}, err
		}
	}

	row, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, "fetched")
	if err != nil {
		return Stored{}, err
	}
	return Stored{Email: row, Fresh: true}, nil
}
