package ports

import (
	"context"

	"github.com/polycopy/engine/internal/domain"
)

// TradeSource fetches recent trades for a wallet from the market-data API.
type TradeSource interface {
	// FetchRecentTrades returns up to limit recent trades for the wallet,
	// newest first as the API delivers them. Returns domain.ErrNoTrades when
	// the wallet has no activity (not a failure).
	FetchRecentTrades(ctx context.Context, wallet domain.Wallet, limit int) ([]domain.Trade, error)
}
