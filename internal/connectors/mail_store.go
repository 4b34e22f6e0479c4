package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"exteroid/internal"
	"exteroid/internal/storage"
)

const statusFetched = "fetched"

type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
}

func NewMailStoreService(db *storage.DB, rawMailDir string) *MailStoreService {
	return &MailStoreService{db: db, rawMailDir: rawMailDir}
}

// StoreResult reports whether the message was new. A message whose raw bytes
// were already stored under another id is not stored again.
type StoreResult struct {
	Email     internal.EmailRow
	Duplicate bool
}

func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (StoreResult, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID)
	if err != nil {
		return StoreResult{}, err
	}
	if existing == nil {
		same, err := s.db.GetEmailByHash(msg.Provider, hash)
		if err != nil {
			return StoreResult{}, err
		}
		if same != nil {
			return StoreResult{Email: *same, Duplicate: true}, nil
		}
	}

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return StoreResult{}, err
	}
	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return StoreResult{}, err
		}
	}

	row, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, statusFetched)
	if err != nil {
		return StoreResult{}, err
	}
	return StoreResult{Email: row, Duplicate: existing != nil}, nil
}
