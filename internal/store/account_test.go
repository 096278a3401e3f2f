package store

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunnelkit/support/internal/crypto"
	dbpkg "github.com/tunnelkit/support/internal/db"
	"github.com/tunnelkit/support/internal/support"
)

func newTestStore(t *testing.T) *AccountStore {
	t.Helper()
	conn, err := dbpkg.Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "support.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	key, err := crypto.DeriveKey(strings.Repeat("s", 40), "account")
	require.NoError(t, err)
	c, err := crypto.New(key)
	require.NoError(t, err)

	return NewAccountStore(conn, dbpkg.DriverSQLite, c)
}

func TestAccountStore_EmptyReturnsNoAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoAccount)

	acct, err := s.Account(ctx)
	require.NoError(t, err)
	assert.False(t, acct.HasToken())
}

func TestAccountStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, support.AccountContext{AccountToken: "1234567890123456"}))

	acct, err := s.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1234567890123456", acct.AccountToken)

	require.NoError(t, s.Save(ctx, support.AccountContext{AccountToken: "6543210987654321"}))
	acct, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6543210987654321", acct.AccountToken)
}

func TestAccountStore_TokenEncryptedAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, support.AccountContext{AccountToken: "1234567890123456"}))

	var data string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT data FROM account WHERE id = 1`).Scan(&data))
	assert.NotContains(t, data, "1234567890123456")

	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "1234567890123456")
}

func TestAccountStore_Clear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Save(ctx, support.AccountContext{AccountToken: "tok"}))
	require.NoError(t, s.Clear(ctx))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestAccountStore_ImplementsAccountReader(t *testing.T) {
	var _ support.AccountReader = (*AccountStore)(nil)
}
