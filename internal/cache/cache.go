package cache

import (
	"context"
	"time"

	"dukaanpos/backend/internal/domain"
)

// ReceiptCache keeps rendered receipts so re-prints of an unchanged
// sale skip the formatter. Entries are keyed by sale id plus edit
// timestamp, so editing a sale naturally misses the stale render.
type ReceiptCache interface {
	Get(ctx context.Context, key string) (*domain.ReceiptResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.ReceiptResponse, ttl time.Duration) error
}

type NoopReceiptCache struct{}

func (NoopReceiptCache) Get(_ context.Context, _ string) (*domain.ReceiptResponse, bool, error) {
	return nil, false, nil
}

func (NoopReceiptCache) Set(_ context.Context, _ string, _ *domain.ReceiptResponse, _ time.Duration) error {
	return nil
}
