package repofake_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/storage/repofake"
	"github.com/jrsteele09/go-auth-client/storage/storagetest"
)

func TestFakeRepo(t *testing.T) {
	storagetest.RunRepoSuite(t, func(t *testing.T) storage.Repo {
		return repofake.NewFakeRepo()
	})
}

func TestFakeRepoClosed(t *testing.T) {
	repo := repofake.NewFakeRepo()
	require.NoError(t, repo.Close())

	_, _, err := repo.Get(context.Background(), "a")
	require.ErrorIs(t, err, interrors.ErrStoreClosed)
	require.ErrorIs(t, repo.Set(context.Background(), map[string]string{"a": "1"}), interrors.ErrStoreClosed)
}
