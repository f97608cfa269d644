package storage

// sqlite.go — single-file store backing the three persistence ports:
//
//   - processed_trades: the dedup ledger. UNIQUE(wallet, transaction_hash)
//     plus INSERT OR IGNORE gives the atomic check-and-set the monitor needs.
//   - subscriptions / bot_status / execution_wallets: the subscription
//     directory, always read fresh so start/stop and wallet changes take
//     effect within one poll interval.
//   - credentials: per-user exchange credentials, AES-256-GCM encrypted
//     before they touch disk.

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/polycopy/engine/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_trades (
    wallet           TEXT NOT NULL,
    transaction_hash TEXT NOT NULL,
    processed_at     DATETIME NOT NULL,
    PRIMARY KEY (wallet, transaction_hash)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    user_id    TEXT NOT NULL,
    wallet     TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (user_id, wallet)
);

CREATE TABLE IF NOT EXISTS bot_status (
    user_id    TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    started_at DATETIME,
    stopped_at DATETIME
);

CREATE TABLE IF NOT EXISTS execution_wallets (
    user_id TEXT PRIMARY KEY,
    address TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
    user_id    TEXT PRIMARY KEY,
    nonce_hex  TEXT NOT NULL,
    cipher_hex TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_trades(processed_at);
CREATE INDEX IF NOT EXISTS idx_sub_wallet   ON subscriptions(wallet);
`

// Store implements ports.ProcessedTradeLedger, ports.SubscriptionDirectory
// and ports.CredentialStore on SQLite (pure Go, no CGo).
type Store struct {
	db   *sql.DB
	aead cipher.AEAD // nil when no encryption key is configured
}

// NewStore opens (or creates) the database at path and applies the schema.
// encryptionKey must be 32 bytes for credential storage, or nil to disable
// the credential store.
func NewStore(path string, encryptionKey []byte) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewStore: apply schema: %w", err)
	}

	s := &Store{db: db}
	if encryptionKey != nil {
		block, err := aes.NewCipher(encryptionKey)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewStore: encryption key: %w", err)
		}
		s.aead, err = cipher.NewGCM(block)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewStore: gcm: %w", err)
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- ports.ProcessedTradeLedger ---

// TryMarkProcessed inserts the (wallet, transactionID) pair if absent.
// Returns true only when this call performed the insert.
func (s *Store) TryMarkProcessed(ctx context.Context, wallet domain.Wallet, transactionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_trades (wallet, transaction_hash, processed_at) VALUES (?, ?, ?)`,
		string(wallet), transactionID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("storage.TryMarkProcessed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.TryMarkProcessed: rows affected: %w", err)
	}
	return n == 1, nil
}

// PurgeOlderThan drops ledger rows past the retention window.
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_trades WHERE processed_at < ?`, cutoff,
	); err != nil {
		return fmt.Errorf("storage.PurgeOlderThan: %w", err)
	}
	return nil
}

// --- ports.SubscriptionDirectory ---

// ListWallets returns the distinct wallets any user subscribes to.
func (s *Store) ListWallets(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT wallet FROM subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListWallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("storage.ListWallets: scan: %w", err)
		}
		wallets = append(wallets, domain.Wallet(w))
	}
	return wallets, rows.Err()
}

// SubscribersOf returns the user IDs subscribed to the wallet.
func (s *Store) SubscribersOf(ctx context.Context, wallet domain.Wallet) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM subscriptions WHERE wallet = ? ORDER BY created_at`, string(wallet))
	if err != nil {
		return nil, fmt.Errorf("storage.SubscribersOf: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("storage.SubscribersOf: scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// RunState returns the user's bot state; stopped when never started.
func (s *Store) RunState(ctx context.Context, userID string) (domain.BotRunState, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM bot_status WHERE user_id = ?`, userID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.RunStateStopped, nil
	}
	if err != nil {
		return domain.RunStateStopped, fmt.Errorf("storage.RunState: %w", err)
	}
	if status == string(domain.RunStateRunning) {
		return domain.RunStateRunning, nil
	}
	return domain.RunStateStopped, nil
}

// ExecutionIdentity returns the address the user trades through, or "".
func (s *Store) ExecutionIdentity(ctx context.Context, userID string) (string, error) {
	var addr string
	err := s.db.QueryRowContext(ctx,
		`SELECT address FROM execution_wallets WHERE user_id = ?`, userID,
	).Scan(&addr)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage.ExecutionIdentity: %w", err)
	}
	return addr, nil
}

// --- subscription management ---

// AddSubscription subscribes a user to a wallet. Adding the same pair twice
// is a no-op.
func (s *Store) AddSubscription(ctx context.Context, userID string, wallet domain.Wallet) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (user_id, wallet, created_at) VALUES (?, ?, ?)`,
		userID, string(wallet), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage.AddSubscription: %w", err)
	}
	return nil
}

// RemoveSubscription drops the (user, wallet) pair.
func (s *Store) RemoveSubscription(ctx context.Context, userID string, wallet domain.Wallet) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND wallet = ?`,
		userID, string(wallet),
	); err != nil {
		return fmt.Errorf("storage.RemoveSubscription: %w", err)
	}
	return nil
}

// SetRunState records the user's bot state, stamping the transition time.
func (s *Store) SetRunState(ctx context.Context, userID string, state domain.BotRunState) error {
	now := time.Now().UTC()
	var query string
	if state == domain.RunStateRunning {
		query = `INSERT INTO bot_status (user_id, status, started_at) VALUES (?, ?, ?)
		         ON CONFLICT(user_id) DO UPDATE SET status = excluded.status, started_at = excluded.started_at`
	} else {
		query = `INSERT INTO bot_status (user_id, status, stopped_at) VALUES (?, ?, ?)
		         ON CONFLICT(user_id) DO UPDATE SET status = excluded.status, stopped_at = excluded.stopped_at`
	}
	if _, err := s.db.ExecContext(ctx, query, userID, string(state), now); err != nil {
		return fmt.Errorf("storage.SetRunState: %w", err)
	}
	return nil
}

// SetExecutionIdentity records the address the user trades through.
func (s *Store) SetExecutionIdentity(ctx context.Context, userID, address string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_wallets (user_id, address) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET address = excluded.address`,
		userID, address,
	); err != nil {
		return fmt.Errorf("storage.SetExecutionIdentity: %w", err)
	}
	return nil
}

// --- ports.CredentialStore ---

// Get returns the user's decrypted credentials, or nil when none are stored.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Credentials, error) {
	if s.aead == nil {
		return nil, fmt.Errorf("storage.Get: no encryption key configured")
	}

	var nonceHex, cipherHex string
	err := s.db.QueryRowContext(ctx,
		`SELECT nonce_hex, cipher_hex FROM credentials WHERE user_id = ?`, userID,
	).Scan(&nonceHex, &cipherHex)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Get: %w", err)
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return nil, fmt.Errorf("storage.Get: decode nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return nil, fmt.Errorf("storage.Get: decode cipher: %w", err)
	}

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("storage.Get: decrypt credentials for %s: %w", userID, err)
	}

	var creds domain.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("storage.Get: parse credentials: %w", err)
	}
	return &creds, nil
}

// Put encrypts and stores (or replaces) the user's credentials.
func (s *Store) Put(ctx context.Context, userID string, creds domain.Credentials) error {
	if s.aead == nil {
		return fmt.Errorf("storage.Put: no encryption key configured")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("storage.Put: marshal: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("storage.Put: nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, nonce_hex, cipher_hex, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			nonce_hex = excluded.nonce_hex,
			cipher_hex = excluded.cipher_hex,
			updated_at = excluded.updated_at`,
		userID, hex.EncodeToString(nonce), hex.EncodeToString(ciphertext), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage.Put: %w", err)
	}
	return nil
}

// Delete removes the user's credentials.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("storage.Delete: %w", err)
	}
	return nil
}
