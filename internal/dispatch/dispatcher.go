// Package dispatch fans detected trades out to their subscribers, one
// independent execution per (trade, user) pairing.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/ports"
)

// TradeExecutor is what the dispatcher needs from the execution layer.
type TradeExecutor interface {
	ExecuteCopyTrade(ctx context.Context, userID string, observed domain.Trade, rc domain.RiskConfig) domain.ExecutionResult
}

// notifiedCap bounds the detection-dedup set; reaching it resets the set.
// Worst case after a reset is a duplicate notification, never a duplicate
// execution, which the ledger already prevents upstream.
const notifiedCap = 8192

// Dispatcher consumes the monitor's event stream and drives executions.
type Dispatcher struct {
	directory ports.SubscriptionDirectory
	executor  TradeExecutor
	publisher ports.Publisher
	risk      domain.RiskConfig

	notifiedMu sync.Mutex
	notified   map[string]struct{} // userID|wallet|txID

	wg sync.WaitGroup
}

// New creates a Dispatcher.
func New(directory ports.SubscriptionDirectory, executor TradeExecutor, publisher ports.Publisher, risk domain.RiskConfig) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		executor:  executor,
		publisher: publisher,
		risk:      risk,
		notified:  make(map[string]struct{}),
	}
}

// Run consumes events until the context is cancelled or the channel closes,
// then waits for in-flight executions.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.NewTradeEvent) {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.HandleTrade(ctx, ev)
		}
	}
}

// HandleTrade resolves the wallet's subscribers and starts one concurrent
// execution per user whose bot is running right now. Stopped users are
// skipped without touching the event; an empty subscriber set is a no-op.
func (d *Dispatcher) HandleTrade(ctx context.Context, ev domain.NewTradeEvent) {
	users, err := d.directory.SubscribersOf(ctx, ev.Wallet)
	if err != nil {
		slog.Warn("failed to resolve subscribers", "wallet", ev.Wallet, "err", err)
		return
	}
	if len(users) == 0 {
		return
	}

	for _, userID := range users {
		// Every subscriber hears about the detection; only running ones
		// get an execution.
		d.notifyDetected(userID, ev)

		state, err := d.directory.RunState(ctx, userID)
		if err != nil {
			slog.Warn("failed to read run state", "user", userID, "err", err)
			continue
		}
		if state != domain.RunStateRunning {
			slog.Debug("subscriber stopped, not executing", "user", userID, "wallet", ev.Wallet)
			continue
		}

		userID := userID
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.execute(ctx, userID, ev)
		}()
	}
}

// Wait blocks until all in-flight executions have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// notifyDetected publishes the detection event at most once per
// (user, wallet, transaction).
func (d *Dispatcher) notifyDetected(userID string, ev domain.NewTradeEvent) {
	key := userID + "|" + string(ev.Wallet) + "|" + ev.Trade.TransactionID

	d.notifiedMu.Lock()
	if _, dup := d.notified[key]; dup {
		d.notifiedMu.Unlock()
		return
	}
	if len(d.notified) >= notifiedCap {
		d.notified = make(map[string]struct{})
	}
	d.notified[key] = struct{}{}
	d.notifiedMu.Unlock()

	trade := ev.Trade
	d.publisher.Publish(domain.Event{
		ID:     uuid.NewString(),
		Kind:   domain.EventTradeDetected,
		UserID: userID,
		Wallet: ev.Wallet,
		Trade:  &trade,
		At:     time.Now(),
	})
}

// execute runs one copy attempt and publishes its terminal outcome.
func (d *Dispatcher) execute(ctx context.Context, userID string, ev domain.NewTradeEvent) {
	result := d.executor.ExecuteCopyTrade(ctx, userID, ev.Trade, d.risk)

	kind := domain.EventTradeExecuted
	if !result.Success {
		kind = domain.EventTradeFailed
	}
	d.publisher.Publish(domain.Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		UserID: userID,
		Wallet: ev.Wallet,
		Result: &result,
		At:     time.Now(),
	})
}
