package domain

import (
	"strings"
	"time"
)

// Side of the observed fill.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Wallet is a monitored blockchain address, always lowercase.
type Wallet string

// NormalizeWallet lowercases and trims an address so the same wallet never
// appears twice under different casings.
func NormalizeWallet(addr string) Wallet {
	return Wallet(strings.ToLower(strings.TrimSpace(addr)))
}

// Trade is one observed fill on a source wallet. Immutable after ingestion.
type Trade struct {
	TransactionID string
	MarketID      string
	Outcome       string
	Side          string // SideBuy or SideSell
	Size          float64
	Price         float64 // probability-priced: 0 < price <= 1
	Timestamp     time.Time
	Title         string // carried through to notifications
	Slug          string
}

// NewTradeEvent is emitted by the monitor for every newly observed trade.
type NewTradeEvent struct {
	Wallet Wallet
	Trade  Trade
}

// MonitorError reports a contained per-wallet failure during a poll cycle.
// The next cycle retries the wallet naturally.
type MonitorError struct {
	Wallet Wallet
	Err    error
}

// BotRunState is the per-user copy-bot state, re-read at every dispatch.
type BotRunState string

const (
	RunStateRunning BotRunState = "running"
	RunStateStopped BotRunState = "stopped"
)

// Subscription links a user to a wallet they copy. Unique per (user, wallet).
type Subscription struct {
	UserID    string
	Wallet    Wallet
	CreatedAt time.Time
}

// Credentials are the exchange API credentials a user trades through.
// Opaque to the core; the store keeps them encrypted at rest.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}
