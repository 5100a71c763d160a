package storage

import (
	"context"
	"errors"
	"time"

	"starcast/internal/domain"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store is the persistence boundary consumed by the core. Content mutations
// are publish (insert) and administrative hard delete only; purchases are
// append-only.
type Store interface {
	SaveContent(ctx context.Context, c *domain.Content) (int64, error)
	GetContent(ctx context.Context, id int64) (*domain.Content, error)
	ListActiveContent(ctx context.Context) ([]domain.Content, error)
	DeleteContent(ctx context.Context, id int64) (bool, error)

	UpsertRecipient(ctx context.Context, r domain.Recipient) error
	ListRecipients(ctx context.Context) ([]int64, error)

	RecordPurchase(ctx context.Context, userID, contentID int64, stars int, paymentRef string) error
	HasPurchased(ctx context.Context, userID, contentID int64) (bool, error)

	Stats(ctx context.Context) (domain.Stats, error)
	Close() error
}
