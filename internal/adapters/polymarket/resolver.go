package polymarket

import (
	"context"
	"log/slog"

	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/ports"
)

// DeriveResolver auto-provisions API credentials through L1 auth when a user
// has none stored. Derived credentials are persisted so the derivation runs
// at most once per user.
type DeriveResolver struct {
	client *Client
	signer *Signer
	store  ports.CredentialStore
}

// NewDeriveResolver creates the auto-derivation strategy. store may be nil;
// derived credentials are then used without being persisted.
func NewDeriveResolver(client *Client, signer *Signer, store ports.CredentialStore) *DeriveResolver {
	return &DeriveResolver{client: client, signer: signer, store: store}
}

// Resolve derives credentials from the operator key. Best effort: a failed
// derivation reports nothing for the user rather than an error, so the
// caller falls through to its NeedsCredentials outcome.
func (r *DeriveResolver) Resolve(ctx context.Context, userID string) (*domain.Credentials, error) {
	creds, err := r.client.DeriveCredentials(ctx, r.signer)
	if err != nil {
		slog.Warn("credential derivation failed", "user", userID, "err", err)
		return nil, nil
	}

	if r.store != nil {
		if err := r.store.Put(ctx, userID, creds); err != nil {
			slog.Warn("failed to persist derived credentials", "user", userID, "err", err)
		}
	}

	slog.Info("derived api credentials", "user", userID)
	return &creds, nil
}
