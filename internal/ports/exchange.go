package ports

import (
	"context"

	"github.com/polycopy/engine/internal/domain"
)

// Exchange submits replica orders to the order-entry endpoint.
type Exchange interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest, creds domain.Credentials) (domain.PlacedOrder, error)
}

// BalanceChecker is the optional on-chain pre-check consulted before
// submission when enabled. Returns the available collateral balance.
type BalanceChecker interface {
	Balance(ctx context.Context, address string) (float64, error)
}
