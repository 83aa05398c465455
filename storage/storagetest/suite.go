// Package storagetest holds the behaviour every storage.Repo backend must
// share, run by each backend's own tests.
package storagetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/storage"
)

// NewRepoFunc returns an empty repo. The suite closes it.
type NewRepoFunc func(t *testing.T) storage.Repo

func RunRepoSuite(t *testing.T, newRepo NewRepoFunc) {
	t.Run("get missing key", func(t *testing.T) {
		repo := newRepo(t)
		defer repo.Close()

		v, ok, err := repo.Get(context.Background(), "missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		repo := newRepo(t)
		defer repo.Close()
		ctx := context.Background()

		require.NoError(t, repo.Set(ctx, map[string]string{"a": "1", "b": `{"json":true}`}))
		require.NoError(t, repo.Set(ctx, map[string]string{"a": "2"}))

		requireValue(t, repo, "a", "2")
		requireValue(t, repo, "b", `{"json":true}`)
	})

	t.Run("empty value is stored", func(t *testing.T) {
		repo := newRepo(t)
		defer repo.Close()

		require.NoError(t, repo.Set(context.Background(), map[string]string{"blank": ""}))
		v, ok, err := repo.Get(context.Background(), "blank")
		require.NoError(t, err)
		require.True(t, ok)
		require.Empty(t, v)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		repo := newRepo(t)
		defer repo.Close()

		require.Error(t, repo.Set(context.Background(), map[string]string{"": "x"}))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		defer repo.Close()
		ctx := context.Background()

		require.NoError(t, repo.Set(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}))
		require.NoError(t, repo.Delete(ctx, "a", "b", "never-written"))
		require.NoError(t, repo.Delete(ctx, "a", "b"))
		require.NoError(t, repo.Delete(ctx))

		present := []string{}
		for _, k := range []string{"a", "b", "c"} {
			if _, ok, err := repo.Get(ctx, k); err == nil && ok {
				present = append(present, k)
			}
		}
		sort.Strings(present)
		require.Equal(t, []string{"c"}, present)
	})
}

func requireValue(t *testing.T, repo storage.Repo, key, want string) {
	t.Helper()
	v, ok, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "key %q missing", key)
	require.Equal(t, want, v)
}
