// Package executor turns an observed trade into one bounded replica order
// per subscriber. Exactly one submission attempt per (trade, user) pairing;
// retrying a possibly-placed order risks doubling the position.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/ports"
)

// Config controls execution behaviour.
type Config struct {
	CallTimeout time.Duration // budget per external call, default 10s

	// CheckBalance gates submission on an on-chain collateral read. Off by
	// default: the read costs an RPC round trip per execution and the
	// exchange rejects underfunded orders anyway.
	CheckBalance bool
}

func (c *Config) setDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
}

// Executor copies trades for individual users.
type Executor struct {
	cfg       Config
	exchange  ports.Exchange
	resolvers []ports.CredentialResolver
	directory ports.SubscriptionDirectory
	balances  ports.BalanceChecker // nil unless CheckBalance
}

// New creates an Executor. Resolvers are tried in order; the first one that
// returns credentials wins.
func New(cfg Config, exchange ports.Exchange, directory ports.SubscriptionDirectory, resolvers ...ports.CredentialResolver) *Executor {
	cfg.setDefaults()
	return &Executor{
		cfg:       cfg,
		exchange:  exchange,
		directory: directory,
		resolvers: resolvers,
	}
}

// WithBalanceChecker enables the pre-submission collateral check.
func (e *Executor) WithBalanceChecker(bc ports.BalanceChecker) *Executor {
	e.balances = bc
	e.cfg.CheckBalance = true
	return e
}

// ExecuteCopyTrade validates, sizes and submits the replica of one observed
// trade for one user. Always returns a terminal result, never panics the
// pipeline; failures come back classified in the result.
func (e *Executor) ExecuteCopyTrade(ctx context.Context, userID string, observed domain.Trade, rc domain.RiskConfig) domain.ExecutionResult {
	result := domain.ExecutionResult{
		UserID:        userID,
		MarketID:      observed.MarketID,
		Title:         observed.Title,
		Outcome:       observed.Outcome,
		Side:          domain.SideBuy,
		OriginalSize:  observed.Size,
		OriginalPrice: observed.Price,
		ExecutedAt:    time.Now(),
	}

	if err := domain.ValidateTrade(observed); err != nil {
		return e.fail(result, err)
	}

	result.Size = domain.CopySize(observed.Size, rc)
	result.Price = domain.CopyPrice(observed.Price, rc.SlippageTolerance)

	creds, err := e.resolveCredentials(ctx, userID)
	if err != nil {
		return e.fail(result, err)
	}

	if e.cfg.CheckBalance && e.balances != nil {
		if err := e.checkBalance(ctx, userID, result.Size*result.Price); err != nil {
			return e.fail(result, err)
		}
	}

	req := domain.OrderRequest{
		MarketID: observed.MarketID,
		Outcome:  observed.Outcome,
		Side:     domain.SideBuy,
		Size:     result.Size,
		Price:    result.Price,
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	placed, err := e.exchange.SubmitOrder(submitCtx, req, *creds)
	if err != nil {
		return e.fail(result, err)
	}

	result.Success = true
	result.OrderID = placed.OrderID
	result.Status = placed.Status
	if placed.Price > 0 {
		// Report the tick-aligned price the exchange actually received.
		result.Price = placed.Price
	}

	slog.Info("copy trade executed",
		"user", userID,
		"market", observed.MarketID,
		"outcome", observed.Outcome,
		"size", result.Size,
		"price", result.Price,
		"order_id", placed.OrderID,
	)
	return result
}

// resolveCredentials walks the resolver chain. A resolver error stops the
// chain; a (nil, nil) answer moves on to the next strategy.
func (e *Executor) resolveCredentials(ctx context.Context, userID string) (*domain.Credentials, error) {
	for _, r := range e.resolvers {
		resolveCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		creds, err := r.Resolve(resolveCtx, userID)
		cancel()
		if err != nil {
			// A resolver error is a store/transport problem, not a missing
			// configuration; keep the two distinguishable.
			return nil, domain.NewFailure(domain.FailInternal, err)
		}
		if creds != nil {
			return creds, nil
		}
	}
	return nil, domain.NewFailure(domain.FailNeedsCredentials, domain.ErrNoCredentials)
}

// checkBalance compares available collateral with the order cost.
func (e *Executor) checkBalance(ctx context.Context, userID string, cost float64) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	address, err := e.directory.ExecutionIdentity(callCtx, userID)
	if err != nil {
		return domain.NewFailure(domain.FailInternal, fmt.Errorf("execution identity: %w", err))
	}
	if address == "" {
		// No configured trading address means nothing to check against.
		return nil
	}

	available, err := e.balances.Balance(callCtx, address)
	if err != nil {
		return domain.NewFailure(domain.FailInternal, fmt.Errorf("balance check: %w", err))
	}
	if available < cost {
		return domain.NewFailure(domain.FailInsufficientFunds,
			fmt.Errorf("need %.2f, have %.2f", cost, available))
	}
	return nil
}

func (e *Executor) fail(result domain.ExecutionResult, err error) domain.ExecutionResult {
	result.Success = false
	result.FailureKind = domain.ClassifyFailure(err)
	result.Error = err.Error()

	slog.Warn("copy trade failed",
		"user", result.UserID,
		"market", result.MarketID,
		"kind", result.FailureKind,
		"err", err,
	)
	return result
}
