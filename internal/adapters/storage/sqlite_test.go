package storage_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polycopy/engine/internal/adapters/storage"
	"github.com/polycopy/engine/internal/domain"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	s, err := storage.NewStore(":memory:", key)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTryMarkProcessedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wallet := domain.Wallet("0xabc")

	inserted, err := s.TryMarkProcessed(ctx, wallet, "tx-1")
	require.NoError(t, err)
	assert.True(t, inserted, "first mark performs the insert")

	inserted, err = s.TryMarkProcessed(ctx, wallet, "tx-1")
	require.NoError(t, err)
	assert.False(t, inserted, "second mark must lose")

	// Same transaction hash on another wallet is a distinct trade.
	inserted, err = s.TryMarkProcessed(ctx, domain.Wallet("0xdef"), "tx-1")
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestPurgeOlderThanKeepsRecentRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wallet := domain.Wallet("0xabc")

	_, err := s.TryMarkProcessed(ctx, wallet, "tx-1")
	require.NoError(t, err)

	require.NoError(t, s.PurgeOlderThan(ctx, 30*24*time.Hour))

	inserted, err := s.TryMarkProcessed(ctx, wallet, "tx-1")
	require.NoError(t, err)
	assert.False(t, inserted, "fresh row must survive the purge")
}

func TestSubscriptionDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wallet := domain.Wallet("0xabc")

	wallets, err := s.ListWallets(ctx)
	require.NoError(t, err)
	assert.Empty(t, wallets)

	require.NoError(t, s.AddSubscription(ctx, "u1", wallet))
	require.NoError(t, s.AddSubscription(ctx, "u2", wallet))
	require.NoError(t, s.AddSubscription(ctx, "u1", wallet)) // duplicate, no-op
	require.NoError(t, s.AddSubscription(ctx, "u1", domain.Wallet("0xdef")))

	wallets, err = s.ListWallets(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Wallet{"0xabc", "0xdef"}, wallets)

	users, err := s.SubscribersOf(ctx, wallet)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)

	require.NoError(t, s.RemoveSubscription(ctx, "u2", wallet))
	users, err = s.SubscribersOf(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestRunStateDefaultsToStopped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state, err := s.RunState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateStopped, state)

	require.NoError(t, s.SetRunState(ctx, "u1", domain.RunStateRunning))
	state, err = s.RunState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateRunning, state)

	require.NoError(t, s.SetRunState(ctx, "u1", domain.RunStateStopped))
	state, err = s.RunState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateStopped, state)
}

func TestExecutionIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addr, err := s.ExecutionIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, addr)

	require.NoError(t, s.SetExecutionIdentity(ctx, "u1", "0x1111"))
	require.NoError(t, s.SetExecutionIdentity(ctx, "u1", "0x2222")) // replace

	addr, err = s.ExecutionIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "0x2222", addr)
}

func TestCredentialRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	creds, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, creds, "absent credentials are nil, not an error")

	in := domain.Credentials{APIKey: "key-1", Secret: "c2VjcmV0", Passphrase: "phrase"}
	require.NoError(t, s.Put(ctx, "u1", in))

	out, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in, *out)

	// Replace and delete.
	in.APIKey = "key-2"
	require.NoError(t, s.Put(ctx, "u1", in))
	out, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "key-2", out.APIKey)

	require.NoError(t, s.Delete(ctx, "u1"))
	out, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCredentialStoreRequiresKey(t *testing.T) {
	s, err := storage.NewStore(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "u1")
	assert.Error(t, err)
	assert.Error(t, s.Put(context.Background(), "u1", domain.Credentials{}))
}

func TestBadEncryptionKeyRejected(t *testing.T) {
	_, err := storage.NewStore(":memory:", []byte("too short"))
	assert.Error(t, err)
}
