package executor

import (
	"context"
	"fmt"

	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/ports"
)

// StoredCredentials resolves credentials from the persistent store. First
// link in the default resolver chain.
type StoredCredentials struct {
	Store ports.CredentialStore
}

func (s StoredCredentials) Resolve(ctx context.Context, userID string) (*domain.Credentials, error) {
	creds, err := s.Store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("executor: load credentials: %w", err)
	}
	return creds, nil
}
