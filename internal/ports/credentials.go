package ports

import (
	"context"

	"github.com/polycopy/engine/internal/domain"
)

// CredentialStore keeps per-user exchange credentials, encrypted at rest.
// The core only ever sees the decrypted form in memory.
type CredentialStore interface {
	// Get returns the user's credentials, or nil when none are stored.
	Get(ctx context.Context, userID string) (*domain.Credentials, error)

	// Put stores (or replaces) the user's credentials.
	Put(ctx context.Context, userID string, creds domain.Credentials) error

	// Delete removes the user's credentials.
	Delete(ctx context.Context, userID string) error
}

// CredentialResolver is one strategy in the ordered resolution chain tried by
// the executor: stored credentials first, then best-effort auto-derivation.
// A resolver returns (nil, nil) when it simply has nothing for the user.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (*domain.Credentials, error)
}
