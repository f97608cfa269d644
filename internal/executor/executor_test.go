package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/executor"
)

type fakeExchange struct {
	placed domain.PlacedOrder
	err    error

	calls []domain.OrderRequest
	creds []domain.Credentials
}

func (f *fakeExchange) SubmitOrder(_ context.Context, req domain.OrderRequest, creds domain.Credentials) (domain.PlacedOrder, error) {
	f.calls = append(f.calls, req)
	f.creds = append(f.creds, creds)
	if f.err != nil {
		return domain.PlacedOrder{}, f.err
	}
	return f.placed, nil
}

type staticResolver struct {
	creds *domain.Credentials
	err   error
}

func (r staticResolver) Resolve(context.Context, string) (*domain.Credentials, error) {
	return r.creds, r.err
}

type fakeDirectory struct {
	identity string
}

func (f *fakeDirectory) ListWallets(context.Context) ([]domain.Wallet, error) { return nil, nil }
func (f *fakeDirectory) SubscribersOf(context.Context, domain.Wallet) ([]string, error) {
	return nil, nil
}
func (f *fakeDirectory) RunState(context.Context, string) (domain.BotRunState, error) {
	return domain.RunStateRunning, nil
}
func (f *fakeDirectory) ExecutionIdentity(context.Context, string) (string, error) {
	return f.identity, nil
}

type fakeBalance struct {
	available float64
	err       error
}

func (f *fakeBalance) Balance(context.Context, string) (float64, error) {
	return f.available, f.err
}

func observedTrade() domain.Trade {
	return domain.Trade{
		TransactionID: "0xtx",
		MarketID:      "0xcond",
		Outcome:       "Yes",
		Side:          domain.SideBuy,
		Size:          500,
		Price:         0.40,
		Timestamp:     time.Now(),
		Title:         "Will it rain tomorrow?",
	}
}

var testCreds = domain.Credentials{APIKey: "key", Secret: "c2VjcmV0", Passphrase: "pass"}

func TestExecuteCopyTradeSubmitsBoundedOrder(t *testing.T) {
	// 0.405 is the tick-aligned price the exchange reports back.
	exch := &fakeExchange{placed: domain.PlacedOrder{OrderID: "ord-1", Status: "matched", Price: 0.405}}
	ex := executor.New(executor.Config{}, exch, &fakeDirectory{}, staticResolver{creds: &testCreds})

	rc := domain.RiskConfig{CopyRatio: 0.1, MinPositionSize: 1, MaxPositionSize: 25, SlippageTolerance: 0.01}
	res := ex.ExecuteCopyTrade(context.Background(), "user-1", observedTrade(), rc)

	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, "matched", res.Status)

	require.Len(t, exch.calls, 1)
	req := exch.calls[0]
	assert.Equal(t, domain.SideBuy, req.Side)
	assert.Equal(t, 25.0, req.Size, "500 * 0.1 clamps to max")
	assert.InDelta(t, 0.404, req.Price, 1e-9, "0.40 * 1.01")
	assert.Equal(t, testCreds, exch.creds[0])

	assert.Equal(t, 500.0, res.OriginalSize)
	assert.Equal(t, 0.40, res.OriginalPrice)
	assert.Equal(t, 0.405, res.Price, "result reports the price actually submitted")
}

func TestExecuteCopyTradeNeedsCredentials(t *testing.T) {
	exch := &fakeExchange{}
	ex := executor.New(executor.Config{}, exch, &fakeDirectory{}, staticResolver{})

	res := ex.ExecuteCopyTrade(context.Background(), "user-1", observedTrade(), domain.DefaultRiskConfig())

	assert.False(t, res.Success)
	assert.Equal(t, domain.FailNeedsCredentials, res.FailureKind)
	assert.Empty(t, exch.calls, "no order attempt without credentials")
}

func TestExecuteCopyTradeResolverChain(t *testing.T) {
	exch := &fakeExchange{placed: domain.PlacedOrder{OrderID: "ord-2", Status: "live"}}
	// First strategy has nothing; second provides.
	ex := executor.New(executor.Config{}, exch, &fakeDirectory{},
		staticResolver{}, staticResolver{creds: &testCreds})

	res := ex.ExecuteCopyTrade(context.Background(), "user-1", observedTrade(), domain.DefaultRiskConfig())

	require.True(t, res.Success)
	require.Len(t, exch.creds, 1)
	assert.Equal(t, testCreds, exch.creds[0])
}

func TestExecuteCopyTradeInvalidTrade(t *testing.T) {
	exch := &fakeExchange{}
	ex := executor.New(executor.Config{}, exch, &fakeDirectory{}, staticResolver{creds: &testCreds})

	bad := observedTrade()
	bad.Price = 0

	res := ex.ExecuteCopyTrade(context.Background(), "user-1", bad, domain.DefaultRiskConfig())

	assert.False(t, res.Success)
	assert.Equal(t, domain.FailInvalidTradeData, res.FailureKind)
	assert.Empty(t, exch.calls)
}

func TestExecuteCopyTradeExchangeRejected(t *testing.T) {
	exch := &fakeExchange{err: domain.NewFailure(domain.FailExchangeRejected, errors.New("status 400: invalid order"))}
	ex := executor.New(executor.Config{}, exch, &fakeDirectory{}, staticResolver{creds: &testCreds})

	res := ex.ExecuteCopyTrade(context.Background(), "user-1", observedTrade(), domain.DefaultRiskConfig())

	assert.False(t, res.Success)
	assert.Equal(t, domain.FailExchangeRejected, res.FailureKind)
	assert.Contains(t, res.Error, "status 400")
	assert.Len(t, exch.calls, 1, "exactly one attempt, no retries")
}

func TestExecuteCopyTradeInsufficientFunds(t *testing.T) {
	exch := &fakeExchange{placed: domain.PlacedOrder{OrderID: "ord-3"}}
	ex := executor.New(executor.Config{}, exch, &fakeDirectory{identity: "0xuser"}, staticResolver{creds: &testCreds}).
		WithBalanceChecker(&fakeBalance{available: 0.5})

	res := ex.ExecuteCopyTrade(context.Background(), "user-1", observedTrade(), domain.DefaultRiskConfig())

	assert.False(t, res.Success)
	assert.Equal(t, domain.FailInsufficientFunds, res.FailureKind)
	assert.Empty(t, exch.calls)
}

func TestBalanceCheckSkippedWithoutIdentity(t *testing.T) {
	exch := &fakeExchange{placed: domain.PlacedOrder{OrderID: "ord-4", Status: "live"}}
	ex := executor.New(executor.Config{}, exch, &fakeDirectory{}, staticResolver{creds: &testCreds}).
		WithBalanceChecker(&fakeBalance{available: 0})

	res := ex.ExecuteCopyTrade(context.Background(), "user-1", observedTrade(), domain.DefaultRiskConfig())

	require.True(t, res.Success, "no trading address configured means no check")
	assert.Len(t, exch.calls, 1)
}
