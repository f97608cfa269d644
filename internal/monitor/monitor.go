// Package monitor polls subscribed wallets for new trades and emits a
// deduplicated, time-bounded stream of NewTrade events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/ports"
)

// Config controls the polling behaviour.
type Config struct {
	PollInterval    time.Duration // default 5s
	TradeFetchLimit int           // trades requested per wallet, default 20
	CheckTimeout    time.Duration // budget per external call, default 10s

	// Ledger cleanup runs every CleanupEveryCycles poll cycles, dropping
	// records older than Retention.
	CleanupEveryCycles int
	Retention          time.Duration

	EventBuffer int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       5 * time.Second,
		TradeFetchLimit:    20,
		CheckTimeout:       10 * time.Second,
		CleanupEveryCycles: 180,
		Retention:          30 * 24 * time.Hour,
		EventBuffer:        256,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.TradeFetchLimit <= 0 {
		c.TradeFetchLimit = d.TradeFetchLimit
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = d.CheckTimeout
	}
	if c.CleanupEveryCycles <= 0 {
		c.CleanupEveryCycles = d.CleanupEveryCycles
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
}

// Monitor is the wallet-activity poller.
type Monitor struct {
	cfg       Config
	source    ports.TradeSource
	ledger    ports.ProcessedTradeLedger
	directory ports.SubscriptionDirectory

	events chan domain.NewTradeEvent
	errs   chan domain.MonitorError

	// startedAt bounds detection: trades observed before this instant are
	// historical and must never trigger a copy.
	startedAt time.Time

	// inFlight guards against polling the same wallet concurrently with
	// itself; overlapping checks of different wallets are expected.
	inFlight   map[domain.Wallet]struct{}
	inFlightMu sync.Mutex

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New creates a Monitor with all collaborators injected.
func New(cfg Config, source ports.TradeSource, ledger ports.ProcessedTradeLedger, directory ports.SubscriptionDirectory) *Monitor {
	cfg.setDefaults()
	return &Monitor{
		cfg:       cfg,
		source:    source,
		ledger:    ledger,
		directory: directory,
		events:    make(chan domain.NewTradeEvent, cfg.EventBuffer),
		errs:      make(chan domain.MonitorError, 64),
		inFlight:  make(map[domain.Wallet]struct{}),
	}
}

// Events is the stream consumed by the dispatcher.
func (m *Monitor) Events() <-chan domain.NewTradeEvent {
	return m.events
}

// Errors surfaces contained per-wallet failures.
func (m *Monitor) Errors() <-chan domain.MonitorError {
	return m.errs
}

// StartedAt returns the detection lower bound, zero before Start.
func (m *Monitor) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// Start begins polling. The wallet set is re-read from the directory at the
// start of every cycle so additions and removals take effect within one
// interval.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("monitor: already started")
	}
	m.started = true
	m.startedAt = time.Now()

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run(ctx)

	slog.Info("wallet monitor started",
		"interval", m.cfg.PollInterval,
		"fetch_limit", m.cfg.TradeFetchLimit,
	)
	return nil
}

// Stop cancels the poll loop and waits for in-flight wallet checks to finish
// or time out. No new cycles are scheduled after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	slog.Info("wallet monitor stopped")
}

// run drives poll cycles until the context is cancelled.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.pollCycle(ctx, 0)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle++
			m.pollCycle(ctx, cycle)
		}
	}
}

// pollCycle reloads the wallet set and fans out per-wallet checks. A wallet
// still busy from the previous cycle is skipped, not queued.
func (m *Monitor) pollCycle(ctx context.Context, cycle int) {
	wallets, err := m.directory.ListWallets(ctx)
	if err != nil {
		slog.Warn("failed to load wallet set", "err", err)
		return
	}

	for _, w := range wallets {
		wallet := w
		if !m.acquire(wallet) {
			slog.Debug("wallet check still in flight, skipping", "wallet", wallet)
			continue
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer m.release(wallet)
			m.CheckWallet(ctx, wallet)
		}()
	}

	if cycle > 0 && cycle%m.cfg.CleanupEveryCycles == 0 {
		cleanupCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
		defer cancel()
		if err := m.ledger.PurgeOlderThan(cleanupCtx, m.cfg.Retention); err != nil {
			slog.Warn("ledger cleanup failed", "err", err)
		} else {
			slog.Debug("ledger cleanup complete", "retention", m.cfg.Retention)
		}
	}
}

// CheckWallet fetches and processes one wallet's recent trades. Exported for
// tests and the one-shot CLI path; production traffic arrives via Start.
func (m *Monitor) CheckWallet(ctx context.Context, wallet domain.Wallet) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	trades, err := m.source.FetchRecentTrades(fetchCtx, wallet, m.cfg.TradeFetchLimit)
	if err != nil {
		if errors.Is(err, domain.ErrNoTrades) {
			return
		}
		m.reportError(wallet, err)
		return
	}

	// Oldest first, so downstream per-market accounting stays FIFO.
	fresh := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp.Before(m.StartedAt()) {
			continue
		}
		fresh = append(fresh, t)
	}
	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Timestamp.Before(fresh[j].Timestamp)
	})

	for _, trade := range fresh {
		m.processTrade(ctx, wallet, trade)
	}
}

// processTrade runs the dedup-and-mark step and emits the event when someone
// is listening. Subscriber state is resolved before the mark: once a trade
// is marked its fate (emit or suppress) is already decided, so a transient
// directory failure leaves the trade unmarked and the next cycle retries it.
func (m *Monitor) processTrade(ctx context.Context, wallet domain.Wallet, trade domain.Trade) {
	if trade.TransactionID == "" {
		return
	}

	markCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	active, err := m.hasRunningSubscriber(markCtx, wallet)
	if err != nil {
		m.reportError(wallet, fmt.Errorf("resolve subscribers: %w", err))
		return
	}

	inserted, err := m.ledger.TryMarkProcessed(markCtx, wallet, trade.TransactionID)
	if err != nil {
		// An unmarked trade must not be emitted: abort this trade entirely
		// and let the next cycle retry it.
		m.reportError(wallet, fmt.Errorf("mark processed %s: %w", trade.TransactionID, err))
		return
	}
	if !inserted {
		return
	}

	if !active {
		// Stays marked: a trade seen while every subscriber is stopped is
		// consumed, not replayed later.
		slog.Debug("trade suppressed, no running subscriber",
			"wallet", wallet, "tx", trade.TransactionID)
		return
	}

	select {
	case m.events <- domain.NewTradeEvent{Wallet: wallet, Trade: trade}:
		slog.Info("new trade detected",
			"wallet", wallet,
			"tx", trade.TransactionID,
			"market", trade.Title,
			"outcome", trade.Outcome,
			"size", trade.Size,
			"price", trade.Price,
		)
	case <-ctx.Done():
	}
}

// hasRunningSubscriber reports whether any subscriber of the wallet has a
// running bot right now. State is read fresh, never cached across cycles.
func (m *Monitor) hasRunningSubscriber(ctx context.Context, wallet domain.Wallet) (bool, error) {
	users, err := m.directory.SubscribersOf(ctx, wallet)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		state, err := m.directory.RunState(ctx, u)
		if err != nil {
			return false, err
		}
		if state == domain.RunStateRunning {
			return true, nil
		}
	}
	return false, nil
}

func (m *Monitor) acquire(wallet domain.Wallet) bool {
	m.inFlightMu.Lock()
	defer m.inFlightMu.Unlock()
	if _, busy := m.inFlight[wallet]; busy {
		return false
	}
	m.inFlight[wallet] = struct{}{}
	return true
}

func (m *Monitor) release(wallet domain.Wallet) {
	m.inFlightMu.Lock()
	delete(m.inFlight, wallet)
	m.inFlightMu.Unlock()
}

func (m *Monitor) reportError(wallet domain.Wallet, err error) {
	slog.Warn("wallet check failed", "wallet", wallet, "err", err)
	select {
	case m.errs <- domain.MonitorError{Wallet: wallet, Err: err}:
	default:
	}
}
