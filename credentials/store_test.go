package credentials_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/credentials"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/storage/filestore"
	"github.com/jrsteele09/go-auth-client/storage/repofake"
	"github.com/jrsteele09/go-auth-client/users"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type storeFixture struct {
	repo  storage.Repo
	store *credentials.Store
	now   time.Time
}

func setupStoreFixture(t *testing.T, repo storage.Repo) *storeFixture {
	t.Helper()
	f := &storeFixture{repo: repo, now: baseTime}
	store, err := credentials.NewStore(repo,
		credentials.WithNowTime(func() time.Time { return f.now }),
		credentials.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	f.store = store
	return f
}

func testProfile() users.Profile {
	return users.Profile{
		Username: "jdoe",
		Email:    "jdoe@example.com",
		FullName: utils.Ptr("John Doe"),
		Role:     users.RoleUser,
		IsActive: true,
		UserSub:  utils.Ptr("5f0c2c8e-sub"),
	}
}

func (f *storeFixture) save(t *testing.T, expiresIn int64, refresh *string) credentials.Record {
	t.Helper()
	rec := credentials.NewRecord("access", "id", refresh, expiresIn, testProfile(), f.now)
	require.NoError(t, f.store.Save(context.Background(), rec))
	return rec
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := setupStoreFixture(t, repofake.NewFakeRepo())
	ctx := context.Background()
	f.save(t, 3600, utils.Ptr("refresh"))

	raw, ok, err := f.repo.Get(ctx, credentials.KeyExpiresAt)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1740823200000", raw)

	rec, ok, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access", rec.AccessToken)
	require.Equal(t, "id", rec.IDToken)
	require.Equal(t, "refresh", utils.Value(rec.RefreshToken))
	require.True(t, rec.Profile.Equal(testProfile()))

	tok := rec.OAuth2Token()
	require.Equal(t, "access", tok.AccessToken)
	require.Equal(t, "id", tok.Extra("id_token"))
}

func TestExpiryBoundary(t *testing.T) {
	f := setupStoreFixture(t, repofake.NewFakeRepo())
	ctx := context.Background()
	f.save(t, 60, nil)

	f.now = baseTime.Add(59*time.Second + 999*time.Millisecond)
	require.True(t, f.store.IsValid(ctx))

	f.now = baseTime.Add(60 * time.Second)
	require.False(t, f.store.IsValid(ctx))
	_, ok, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// expiry alone never deletes anything
	v, ok, err := f.repo.Get(ctx, credentials.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access", v)
}

func TestInvalidWithoutAccessTokenOrExpiry(t *testing.T) {
	tests := map[string]map[string]string{
		"empty store":        {},
		"expiry only":        {credentials.KeyExpiresAt: "9999999999999"},
		"token only":         {credentials.KeyAccessToken: "access"},
		"unparsable expiry":  {credentials.KeyAccessToken: "access", credentials.KeyExpiresAt: "tomorrow"},
		"empty access token": {credentials.KeyAccessToken: "", credentials.KeyExpiresAt: "9999999999999"},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			f := setupStoreFixture(t, repofake.NewFakeRepo())
			require.NoError(t, f.repo.Set(context.Background(), values))
			require.False(t, f.store.IsValid(context.Background()))
		})
	}
}

func TestClearIsIdempotent(t *testing.T) {
	repo := repofake.NewFakeRepo()
	f := setupStoreFixture(t, repo)
	ctx := context.Background()

	require.NoError(t, f.store.Clear(ctx))

	f.save(t, 3600, utils.Ptr("refresh"))
	require.NoError(t, f.store.RememberEmail(ctx, "jdoe@example.com"))
	require.NoError(t, f.store.Clear(ctx))
	require.NoError(t, f.store.Clear(ctx))

	require.Equal(t, []string{credentials.KeyRememberedEmail}, repo.Keys())
	require.False(t, f.store.IsValid(ctx))
}

func TestSaveWithoutRefreshTokenDropsStaleOne(t *testing.T) {
	f := setupStoreFixture(t, repofake.NewFakeRepo())
	ctx := context.Background()

	f.save(t, 3600, utils.Ptr("old-refresh"))
	f.save(t, 3600, nil)

	_, err := f.store.RefreshToken(ctx)
	require.ErrorIs(t, err, interrors.ErrNoRefreshToken)
}

func TestCorruptProfileIsPurged(t *testing.T) {
	tests := map[string]string{
		"not json":       "{oops",
		"wrong shape":    `["a","b"]`,
		"missing fields": `{"email":"jdoe@example.com"}`,
		"unknown role":   `{"username":"jdoe","email":"jdoe@example.com","role":"root","is_active":true}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			f := setupStoreFixture(t, repofake.NewFakeRepo())
			ctx := context.Background()
			f.save(t, 3600, nil)
			require.NoError(t, f.repo.Set(ctx, map[string]string{credentials.KeyUserInfo: raw}))

			p, err := f.store.Profile(ctx)
			require.NoError(t, err)
			require.Nil(t, p)

			_, ok, err := f.repo.Get(ctx, credentials.KeyUserInfo)
			require.NoError(t, err)
			require.False(t, ok)

			rec, ok, err := f.store.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Nil(t, rec.Profile)
		})
	}
}

func TestUpdateTokensKeepsProfileAndRefreshToken(t *testing.T) {
	f := setupStoreFixture(t, repofake.NewFakeRepo())
	ctx := context.Background()
	f.save(t, 60, utils.Ptr("refresh"))

	f.now = baseTime.Add(time.Minute)
	require.NoError(t, f.store.UpdateTokens(ctx, "access-2", "id-2", 120))

	rec, ok, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access-2", rec.AccessToken)
	require.WithinDuration(t, baseTime.Add(3*time.Minute), rec.ExpiresAt, 0)
	require.Equal(t, "refresh", utils.Value(rec.RefreshToken))
	require.NotNil(t, rec.Profile)

	require.Error(t, f.store.UpdateTokens(ctx, "", "id", 60))
}

func TestSaveProfileOnly(t *testing.T) {
	f := setupStoreFixture(t, repofake.NewFakeRepo())
	ctx := context.Background()
	f.save(t, 3600, nil)

	updated := testProfile()
	updated.Role = users.RoleAdmin
	require.NoError(t, f.store.SaveProfile(ctx, updated))

	rec, ok, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access", rec.AccessToken)
	require.True(t, rec.Profile.IsAdmin())
}

func TestAccessTokenIgnoresExpiry(t *testing.T) {
	f := setupStoreFixture(t, repofake.NewFakeRepo())
	ctx := context.Background()
	f.save(t, 1, nil)
	f.now = baseTime.Add(time.Hour)

	tok, ok, err := f.store.AccessToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access", tok)
}

func TestRememberedEmail(t *testing.T) {
	f := setupStoreFixture(t, repofake.NewFakeRepo())
	ctx := context.Background()

	_, ok, err := f.store.RememberedEmail(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.store.RememberEmail(ctx, "jdoe@example.com"))
	email, ok, err := f.store.RememberedEmail(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "jdoe@example.com", email)

	require.NoError(t, f.store.RememberEmail(ctx, ""))
	_, ok, err = f.store.RememberedEmail(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	repo, err := filestore.New(path, filestore.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	f := setupStoreFixture(t, repo)
	f.save(t, 3600, utils.Ptr("refresh"))

	reopened, err := filestore.New(path, filestore.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	g := setupStoreFixture(t, reopened)
	rec, ok, err := g.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "refresh", utils.Value(rec.RefreshToken))
}

func TestNewStoreRequiresRepo(t *testing.T) {
	_, err := credentials.NewStore(nil)
	require.Error(t, err)
}
