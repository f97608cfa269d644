package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycopy/engine/internal/dispatch"
	"github.com/polycopy/engine/internal/domain"
)

type fakeDirectory struct {
	subs   map[domain.Wallet][]string
	states map[string]domain.BotRunState
}

func (f *fakeDirectory) ListWallets(context.Context) ([]domain.Wallet, error) { return nil, nil }

func (f *fakeDirectory) SubscribersOf(_ context.Context, wallet domain.Wallet) ([]string, error) {
	return f.subs[wallet], nil
}

func (f *fakeDirectory) RunState(_ context.Context, userID string) (domain.BotRunState, error) {
	if s, ok := f.states[userID]; ok {
		return s, nil
	}
	return domain.RunStateStopped, nil
}

func (f *fakeDirectory) ExecutionIdentity(context.Context, string) (string, error) {
	return "", nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	users   []string
	failFor map[string]bool
}

func (f *fakeExecutor) ExecuteCopyTrade(_ context.Context, userID string, observed domain.Trade, _ domain.RiskConfig) domain.ExecutionResult {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()

	if f.failFor[userID] {
		return domain.ExecutionResult{
			UserID:      userID,
			FailureKind: domain.FailExchangeRejected,
			Error:       "status 400",
		}
	}
	return domain.ExecutionResult{
		UserID:  userID,
		Success: true,
		OrderID: "ord-" + userID,
		Size:    observed.Size,
		Price:   observed.Price,
	}
}

func (f *fakeExecutor) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.users...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(event domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) byKind(kind string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func tradeEvent(wallet domain.Wallet, txID string) domain.NewTradeEvent {
	return domain.NewTradeEvent{
		Wallet: wallet,
		Trade: domain.Trade{
			TransactionID: txID,
			MarketID:      "0xcond",
			Outcome:       "Yes",
			Side:          domain.SideBuy,
			Size:          50,
			Price:         0.42,
			Timestamp:     time.Now(),
		},
	}
}

func TestHandleTradeExecutesOnlyRunningSubscribers(t *testing.T) {
	wallet := domain.Wallet("0xabc")
	dir := &fakeDirectory{
		subs: map[domain.Wallet][]string{wallet: {"u1", "u2"}},
		states: map[string]domain.BotRunState{
			"u1": domain.RunStateRunning,
			"u2": domain.RunStateStopped,
		},
	}
	exec := &fakeExecutor{}
	pub := &recordingPublisher{}
	d := dispatch.New(dir, exec, pub, domain.DefaultRiskConfig())

	d.HandleTrade(context.Background(), tradeEvent(wallet, "tx-1"))
	d.Wait()

	assert.Equal(t, []string{"u1"}, exec.executed())

	// Both subscribers hear about the detection, stopped or not.
	detected := pub.byKind(domain.EventTradeDetected)
	require.Len(t, detected, 2)
	var detectedUsers []string
	for _, ev := range detected {
		detectedUsers = append(detectedUsers, ev.UserID)
		require.NotNil(t, ev.Trade)
		assert.Equal(t, "tx-1", ev.Trade.TransactionID)
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, detectedUsers)

	executed := pub.byKind(domain.EventTradeExecuted)
	require.Len(t, executed, 1)
	assert.Equal(t, "u1", executed[0].UserID)
	assert.Equal(t, "ord-u1", executed[0].Result.OrderID)
}

func TestHandleTradeFailureIsolation(t *testing.T) {
	wallet := domain.Wallet("0xabc")
	dir := &fakeDirectory{
		subs: map[domain.Wallet][]string{wallet: {"u1", "u2"}},
		states: map[string]domain.BotRunState{
			"u1": domain.RunStateRunning,
			"u2": domain.RunStateRunning,
		},
	}
	exec := &fakeExecutor{failFor: map[string]bool{"u1": true}}
	pub := &recordingPublisher{}
	d := dispatch.New(dir, exec, pub, domain.DefaultRiskConfig())

	d.HandleTrade(context.Background(), tradeEvent(wallet, "tx-1"))
	d.Wait()

	assert.ElementsMatch(t, []string{"u1", "u2"}, exec.executed())

	failed := pub.byKind(domain.EventTradeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "u1", failed[0].UserID)
	assert.Equal(t, domain.FailExchangeRejected, failed[0].Result.FailureKind)

	executed := pub.byKind(domain.EventTradeExecuted)
	require.Len(t, executed, 1)
	assert.Equal(t, "u2", executed[0].UserID)
}

func TestHandleTradeNoSubscribersIsNoOp(t *testing.T) {
	dir := &fakeDirectory{subs: map[domain.Wallet][]string{}}
	exec := &fakeExecutor{}
	pub := &recordingPublisher{}
	d := dispatch.New(dir, exec, pub, domain.DefaultRiskConfig())

	d.HandleTrade(context.Background(), tradeEvent("0xnobody", "tx-1"))
	d.Wait()

	assert.Empty(t, exec.executed())
	assert.Empty(t, pub.events)
}

func TestDetectionNotifiedOncePerTradeAndUser(t *testing.T) {
	wallet := domain.Wallet("0xabc")
	dir := &fakeDirectory{
		subs:   map[domain.Wallet][]string{wallet: {"u1"}},
		states: map[string]domain.BotRunState{"u1": domain.RunStateRunning},
	}
	exec := &fakeExecutor{}
	pub := &recordingPublisher{}
	d := dispatch.New(dir, exec, pub, domain.DefaultRiskConfig())

	ev := tradeEvent(wallet, "tx-1")
	d.HandleTrade(context.Background(), ev)
	d.HandleTrade(context.Background(), ev)
	d.Wait()

	assert.Len(t, pub.byKind(domain.EventTradeDetected), 1)
}

func TestRunDrainsChannelUntilCancelled(t *testing.T) {
	wallet := domain.Wallet("0xabc")
	dir := &fakeDirectory{
		subs:   map[domain.Wallet][]string{wallet: {"u1"}},
		states: map[string]domain.BotRunState{"u1": domain.RunStateRunning},
	}
	exec := &fakeExecutor{}
	pub := &recordingPublisher{}
	d := dispatch.New(dir, exec, pub, domain.DefaultRiskConfig())

	events := make(chan domain.NewTradeEvent, 2)
	events <- tradeEvent(wallet, "tx-1")
	events <- tradeEvent(wallet, "tx-2")
	close(events)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	assert.Len(t, exec.executed(), 2)
}

func TestHandleTradeDirectoryErrorIsContained(t *testing.T) {
	exec := &fakeExecutor{}
	pub := &recordingPublisher{}
	d := dispatch.New(erroringDirectory{}, exec, pub, domain.DefaultRiskConfig())

	d.HandleTrade(context.Background(), tradeEvent("0xabc", "tx-1"))
	d.Wait()

	assert.Empty(t, exec.executed())
}

type erroringDirectory struct{}

func (erroringDirectory) ListWallets(context.Context) ([]domain.Wallet, error) { return nil, nil }
func (erroringDirectory) SubscribersOf(context.Context, domain.Wallet) ([]string, error) {
	return nil, errors.New("database is locked")
}
func (erroringDirectory) RunState(context.Context, string) (domain.BotRunState, error) {
	return domain.RunStateStopped, nil
}
func (erroringDirectory) ExecutionIdentity(context.Context, string) (string, error) {
	return "", nil
}
