package ports

import (
	"context"
	"time"

	"github.com/polycopy/engine/internal/domain"
)

// ProcessedTradeLedger is the idempotency store for observed trades.
type ProcessedTradeLedger interface {
	// TryMarkProcessed atomically records (wallet, transactionID) as handled.
	// Returns true if this call performed the insert, false if the pair was
	// already present. This is the single check-and-set the whole pipeline
	// relies on to never process a trade twice.
	TryMarkProcessed(ctx context.Context, wallet domain.Wallet, transactionID string) (bool, error)

	// PurgeOlderThan removes records older than the retention window.
	PurgeOlderThan(ctx context.Context, retention time.Duration) error
}
