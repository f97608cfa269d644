package ports

import (
	"context"

	"github.com/polycopy/engine/internal/domain"
)

// SubscriptionDirectory maps wallets to subscribed users and tracks per-user
// bot state. Always read fresh — additions, removals and start/stop must take
// effect within one polling interval without a restart.
type SubscriptionDirectory interface {
	// ListWallets returns the distinct set of wallets any user subscribes to.
	ListWallets(ctx context.Context) ([]domain.Wallet, error)

	// SubscribersOf returns the user IDs subscribed to the wallet.
	SubscribersOf(ctx context.Context, wallet domain.Wallet) ([]string, error)

	// RunState returns the user's bot state; stopped if never started.
	RunState(ctx context.Context, userID string) (domain.BotRunState, error)

	// ExecutionIdentity returns the address the user trades through,
	// or "" when none is configured.
	ExecutionIdentity(ctx context.Context, userID string) (string, error)
}
