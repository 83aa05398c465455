package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/storage/sqlitestore"
	"github.com/jrsteele09/go-auth-client/storage/storagetest"
)

func TestSQLiteStore(t *testing.T) {
	storagetest.RunRepoSuite(t, func(t *testing.T) storage.Repo {
		s, err := sqlitestore.Open(context.Background(), ":memory:")
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	first, err := sqlitestore.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, map[string]string{"access_token": "abc", "token_expires_at": "1700000000000"}))
	require.NoError(t, first.Close())

	second, err := sqlitestore.Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	v, ok, err := second.Get(ctx, "token_expires_at")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1700000000000", v)
}

func TestOpenRequiresSource(t *testing.T) {
	_, err := sqlitestore.Open(context.Background(), "")
	require.Error(t, err)
}
