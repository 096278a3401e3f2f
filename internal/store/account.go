package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tunnelkit/support/internal/crypto"
	dbpkg "github.com/tunnelkit/support/internal/db"
	"github.com/tunnelkit/support/internal/support"
)

// ErrNoAccount is returned by Load when no account has been saved.
var ErrNoAccount = errors.New("store: no account configured")

type accountRecord struct {
	AccountToken string `json:"accountToken"`
}

// AccountStore keeps the signed-in account encrypted at rest in a single row.
// It implements support.AccountReader.
type AccountStore struct {
	db      *sql.DB
	driver  string
	crypter *crypto.Crypter
	now     func() time.Time
}

func NewAccountStore(db *sql.DB, driver string, crypter *crypto.Crypter) *AccountStore {
	return &AccountStore{db: db, driver: driver, crypter: crypter, now: time.Now}
}

// Account returns the current account context. A missing account yields an
// empty context so reports can still be sent while signed out.
func (s *AccountStore) Account(ctx context.Context) (support.AccountContext, error) {
	acct, err := s.Load(ctx)
	if errors.Is(err, ErrNoAccount) {
		return support.AccountContext{}, nil
	}
	return acct, err
}

// Load decrypts and returns the saved account.
func (s *AccountStore) Load(ctx context.Context) (support.AccountContext, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM account WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return support.AccountContext{}, ErrNoAccount
	}
	if err != nil {
		return support.AccountContext{}, fmt.Errorf("query account: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return support.AccountContext{}, fmt.Errorf("decode account: %w", err)
	}
	plaintext, err := s.crypter.Decrypt(ciphertext)
	if err != nil {
		slog.Error("account: decryption failed", "err", err)
		return support.AccountContext{}, fmt.Errorf("decrypt account: %w", err)
	}

	var rec accountRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return support.AccountContext{}, fmt.Errorf("unmarshal account: %w", err)
	}
	return support.AccountContext{AccountToken: rec.AccountToken}, nil
}

// Save encrypts and persists the account, replacing any previous one.
func (s *AccountStore) Save(ctx context.Context, acct support.AccountContext) error {
	raw, err := json.Marshal(accountRecord{AccountToken: acct.AccountToken})
	if err != nil {
		return err
	}
	ciphertext, err := s.crypter.Encrypt(raw)
	if err != nil {
		return fmt.Errorf("encrypt account: %w", err)
	}

	q := dbpkg.Rebind(s.driver, `
		INSERT INTO account (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, q,
		base64.StdEncoding.EncodeToString(ciphertext),
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	slog.Info("account: saved")
	return nil
}

// Clear removes the saved account. Clearing an empty store is not an error.
func (s *AccountStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM account WHERE id = 1`); err != nil {
		return fmt.Errorf("clear account: %w", err)
	}
	slog.Info("account: cleared")
	return nil
}

// Ping reports whether the database is reachable.
func (s *AccountStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
