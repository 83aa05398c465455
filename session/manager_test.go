package session_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/gateway/gatewayfake"
	"github.com/jrsteele09/go-auth-client/idtoken"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/storage/repofake"
	"github.com/jrsteele09/go-auth-client/users"
)

const (
	testEmail    = "jane.doe@example.com"
	testPassword = "Sup3r$ecret"
	testAccess   = "access-token-1"
	testIDToken  = "id-token-1"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type managerFixture struct {
	repo    *repofake.FakeRepo
	store   *credentials.Store
	gateway *gatewayfake.FakeGateway
	clock   *clock
}

func setupManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	c := &clock{now: baseTime}
	repo := repofake.NewFakeRepo()
	store, err := credentials.NewStore(repo, credentials.WithNowTime(c.Now), credentials.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	return &managerFixture{
		repo:    repo,
		store:   store,
		gateway: gatewayfake.NewFakeGateway(),
		clock:   c,
	}
}

func (f *managerFixture) newManager(t *testing.T, opts ...session.ManagerOption) *session.Manager {
	t.Helper()
	opts = append([]session.ManagerOption{session.WithLogger(zerolog.Nop())}, opts...)
	m, err := session.New(f.gateway, f.store, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// seedSession stores a session as if signed in earlier by another process.
func (f *managerFixture) seedSession(t *testing.T, expiresIn int64, profile users.Profile) {
	t.Helper()
	rec := credentials.NewRecord(testAccess, testIDToken, utils.Ptr("refresh-1"), expiresIn, profile, f.clock.Now())
	require.NoError(t, f.store.Save(context.Background(), rec))
}

func (f *managerFixture) signInSucceeds(expiresIn int64, profile users.Profile) {
	f.gateway.SignInFunc = func(_ context.Context, req gateway.SignInRequest) (*gateway.SignInResponse, error) {
		if req.Email != testEmail || req.Password != testPassword {
			return nil, gateway.NewInvalidCredentials("")
		}
		return &gateway.SignInResponse{
			AccessToken:  testAccess,
			IDToken:      testIDToken,
			RefreshToken: utils.Ptr("refresh-1"),
			ExpiresIn:    expiresIn,
			TokenType:    "bearer",
			User:         profile,
		}, nil
	}
}

func testProfile(name string) users.Profile {
	return users.Profile{
		Username: "jane",
		Email:    testEmail,
		FullName: utils.Ptr(name),
		Role:     users.RoleUser,
		IsActive: true,
	}
}

func waitReady(t *testing.T, m *session.Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestStartWithEmptyStore(t *testing.T) {
	f := setupManagerFixture(t)
	m := f.newManager(t)

	waitReady(t, m)
	snap := m.Snapshot(context.Background())
	require.Equal(t, session.Unauthenticated, snap.Status)
	require.False(t, snap.IsAuthenticated)
	require.False(t, snap.IsLoading)
	require.Nil(t, snap.User)
	require.Equal(t, 0, f.gateway.Calls("GetCurrentUser"))
}

func TestStartWithExpiredSessionClearsStore(t *testing.T) {
	f := setupManagerFixture(t)
	f.seedSession(t, 60, testProfile("Jane Doe"))
	require.NoError(t, f.store.RememberEmail(context.Background(), testEmail))
	f.clock.Advance(61 * time.Second)

	m := f.newManager(t)
	waitReady(t, m)

	require.False(t, m.IsAuthenticated(context.Background()))
	require.Equal(t, []string{credentials.KeyRememberedEmail}, f.repo.Keys())
	require.Equal(t, 0, f.gateway.Calls("GetCurrentUser"))
}

func TestStartRestoresThenVerifiesSession(t *testing.T) {
	f := setupManagerFixture(t)
	f.seedSession(t, 3600, testProfile("Jane Doe"))

	release := make(chan struct{})
	f.gateway.GetCurrentUserFunc = func(ctx context.Context, accessToken string) (*users.Profile, error) {
		assert.Equal(t, testAccess, accessToken)
		<-release
		p := testProfile("Jane Q. Doe")
		return &p, nil
	}

	m := f.newManager(t)
	m.Start(context.Background())

	snap := m.Snapshot(context.Background())
	require.Equal(t, session.Authenticated, snap.Status)
	require.Equal(t, session.Unverified, snap.Verification)
	require.True(t, snap.IsAuthenticated)
	require.True(t, snap.IsLoading)
	require.Equal(t, "Jane Doe", utils.Value(snap.User.FullName))

	close(release)
	waitReady(t, m)

	snap = m.Snapshot(context.Background())
	require.Equal(t, session.Verified, snap.Verification)
	require.False(t, snap.IsLoading)
	require.Equal(t, "Jane Q. Doe", utils.Value(snap.User.FullName))

	stored, err := f.store.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Jane Q. Doe", utils.Value(stored.FullName))
}

func TestStartKeepsSnapshotWhenVerificationFails(t *testing.T) {
	tests := map[string]error{
		"network failure":     gateway.NewNetworkFailure(context.DeadlineExceeded),
		"server error":        gateway.NewServerError(503, "unavailable"),
		"invalid credentials": gateway.NewInvalidCredentials(""),
	}
	for name, gwErr := range tests {
		t.Run(name, func(t *testing.T) {
			f := setupManagerFixture(t)
			f.seedSession(t, 3600, testProfile("Jane Doe"))
			f.gateway.GetCurrentUserFunc = func(context.Context, string) (*users.Profile, error) {
				return nil, gwErr
			}

			m := f.newManager(t)
			waitReady(t, m)

			snap := m.Snapshot(context.Background())
			require.True(t, snap.IsAuthenticated)
			require.False(t, snap.IsLoading)
			require.Equal(t, session.Unverified, snap.Verification)
			require.Equal(t, "Jane Doe", utils.Value(snap.User.FullName))
			require.True(t, f.store.IsValid(context.Background()))
		})
	}
}

func TestStartWithCorruptProfileSnapshot(t *testing.T) {
	f := setupManagerFixture(t)
	f.seedSession(t, 3600, testProfile("Jane Doe"))
	require.NoError(t, f.repo.Set(context.Background(), map[string]string{credentials.KeyUserInfo: "{not json"}))

	m := f.newManager(t)
	waitReady(t, m)

	snap := m.Snapshot(context.Background())
	require.True(t, snap.IsAuthenticated)
	require.Nil(t, snap.User)

	_, ok, err := f.repo.Get(context.Background(), credentials.KeyUserInfo)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignInRoundTrip(t *testing.T) {
	f := setupManagerFixture(t)
	f.signInSucceeds(3600, testProfile("Jane Doe"))
	m := f.newManager(t)
	ctx := context.Background()

	user, err := m.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, testEmail, user.Email)

	snap := m.Snapshot(ctx)
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, session.Verified, snap.Verification)
	require.Equal(t, testEmail, snap.User.Email)

	rec, ok, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testAccess, rec.AccessToken)
	require.Equal(t, testIDToken, rec.IDToken)
	require.Equal(t, "refresh-1", utils.Value(rec.RefreshToken))
	require.WithinDuration(t, baseTime.Add(time.Hour), rec.ExpiresAt, 0)

	f.clock.Advance(time.Hour - time.Millisecond)
	require.True(t, m.IsAuthenticated(ctx))

	f.clock.Advance(time.Millisecond)
	require.False(t, m.IsAuthenticated(ctx))
	require.Nil(t, m.User(ctx))
	require.Equal(t, session.Unauthenticated, m.Snapshot(ctx).Status)
	require.Equal(t, 0, f.repo.Len())
}

func TestSignInWithOverlongExpiryStaysSignedIn(t *testing.T) {
	f := setupManagerFixture(t)
	f.signInSucceeds(10_000_000_000, testProfile("Jane Doe"))
	m := f.newManager(t)
	ctx := context.Background()

	_, err := m.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)

	expiresAt, ok, err := f.store.ExpiresAt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, expiresAt.After(baseTime.Add(200*365*24*time.Hour)))
	require.True(t, m.IsAuthenticated(ctx))
}

func TestSnapshotDuringOperationAfterExpiry(t *testing.T) {
	f := setupManagerFixture(t)
	f.seedSession(t, 60, testProfile("Jane Doe"))
	m := f.newManager(t)
	ctx := context.Background()
	waitReady(t, m)
	require.True(t, m.IsAuthenticated(ctx))

	entered := make(chan struct{})
	release := make(chan struct{})
	f.gateway.SignInFunc = func(context.Context, gateway.SignInRequest) (*gateway.SignInResponse, error) {
		close(entered)
		<-release
		return &gateway.SignInResponse{AccessToken: "access-token-2", IDToken: testIDToken, ExpiresIn: 3600, User: testProfile("Jane Doe")}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.SignIn(ctx, testEmail, testPassword)
		done <- err
	}()
	<-entered

	f.clock.Advance(2 * time.Minute)
	snap := m.Snapshot(ctx)
	require.Equal(t, session.Unauthenticated, snap.Status)
	require.False(t, snap.IsAuthenticated)
	require.Nil(t, snap.User)
	require.Nil(t, m.User(ctx))

	close(release)
	require.NoError(t, <-done)
	snap = m.Snapshot(ctx)
	require.Equal(t, session.Authenticated, snap.Status)
	require.True(t, snap.IsAuthenticated)
	require.NotNil(t, snap.User)
}

func TestSignInFailureChangesNothing(t *testing.T) {
	f := setupManagerFixture(t)
	f.signInSucceeds(3600, testProfile("Jane Doe"))
	m := f.newManager(t)
	ctx := context.Background()

	user, err := m.SignIn(ctx, testEmail, "wrong")
	require.Nil(t, user)
	require.ErrorIs(t, err, gateway.ErrInvalidCredentials)
	require.False(t, m.IsAuthenticated(ctx))
	require.Equal(t, 0, f.repo.Len())
}

func TestSignInMalformedResponseChangesNothing(t *testing.T) {
	f := setupManagerFixture(t)
	f.gateway.SignInFunc = func(context.Context, gateway.SignInRequest) (*gateway.SignInResponse, error) {
		return nil, gateway.NewMalformedResponse(nil)
	}
	m := f.newManager(t)

	_, err := m.SignIn(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, gateway.ErrMalformedResponse)
	require.Equal(t, 0, f.repo.Len())
}

func TestSignInRejectsUnverifiableIDToken(t *testing.T) {
	f := setupManagerFixture(t)
	f.signInSucceeds(3600, testProfile("Jane Doe"))
	verifier := idtoken.VerifierFunc(func(_ context.Context, raw string) (*idtoken.Claims, error) {
		require.Equal(t, testIDToken, raw)
		return nil, idtoken.ErrNotJWT
	})
	m := f.newManager(t, session.WithIDTokenVerifier(verifier))

	_, err := m.SignIn(context.Background(), testEmail, testPassword)
	require.ErrorIs(t, err, gateway.ErrMalformedResponse)
	require.False(t, m.IsAuthenticated(context.Background()))
	require.Equal(t, 0, f.repo.Len())
}

func TestSignOutClearsEvenWhenRemoteFails(t *testing.T) {
	f := setupManagerFixture(t)
	f.signInSucceeds(3600, testProfile("Jane Doe"))
	f.gateway.SignOutFunc = func(_ context.Context, accessToken string) (*gateway.MessageResponse, error) {
		require.Equal(t, testAccess, accessToken)
		return nil, gateway.NewServerError(500, "boom")
	}
	m := f.newManager(t)
	ctx := context.Background()

	_, err := m.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, m.RememberEmail(ctx, testEmail))

	require.NoError(t, m.SignOut(ctx))
	require.Equal(t, 1, f.gateway.Calls("SignOut"))
	require.False(t, m.IsAuthenticated(ctx))
	require.Nil(t, m.User(ctx))
	require.Equal(t, []string{credentials.KeyRememberedEmail}, f.repo.Keys())

	email, ok, err := m.RememberedEmail(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testEmail, email)
}

func TestSignOutIsIdempotent(t *testing.T) {
	f := setupManagerFixture(t)
	m := f.newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SignOut(ctx))
	require.NoError(t, m.SignOut(ctx))
	require.Equal(t, session.Unauthenticated, m.Snapshot(ctx).Status)
	require.Equal(t, 0, f.gateway.Calls("SignOut"))
}

func TestRefreshUser(t *testing.T) {
	t.Run("no-op when signed out", func(t *testing.T) {
		f := setupManagerFixture(t)
		m := f.newManager(t)

		require.NoError(t, m.RefreshUser(context.Background()))
		require.Equal(t, 0, f.gateway.Calls("GetCurrentUser"))
	})

	t.Run("success replaces user", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.signInSucceeds(3600, testProfile("Jane Doe"))
		f.gateway.GetCurrentUserFunc = func(context.Context, string) (*users.Profile, error) {
			p := testProfile("Jane Smith")
			p.Role = users.RoleAdmin
			return &p, nil
		}
		m := f.newManager(t)
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		require.NoError(t, m.RefreshUser(ctx))
		user := m.User(ctx)
		require.Equal(t, "Jane Smith", utils.Value(user.FullName))
		require.True(t, user.IsAdmin())

		stored, err := f.store.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, users.RoleAdmin, stored.Role)
	})

	t.Run("failure signs out", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.signInSucceeds(3600, testProfile("Jane Doe"))
		f.gateway.GetCurrentUserFunc = func(context.Context, string) (*users.Profile, error) {
			return nil, gateway.NewNetworkFailure(nil)
		}
		m := f.newManager(t)
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		err = m.RefreshUser(ctx)
		require.ErrorIs(t, err, gateway.ErrNetworkFailure)
		require.False(t, m.IsAuthenticated(ctx))
		require.Equal(t, 0, f.repo.Len())
	})

	t.Run("failure with a store that cannot clear returns the gateway error", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.signInSucceeds(3600, testProfile("Jane Doe"))
		f.gateway.GetCurrentUserFunc = func(context.Context, string) (*users.Profile, error) {
			return nil, gateway.NewInvalidCredentials("token revoked")
		}
		logs := &bytes.Buffer{}
		m := f.newManager(t, session.WithLogger(zerolog.New(logs)))
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		diskFull := errors.New("disk full")
		f.repo.FailDeletes(diskFull)
		err = m.RefreshUser(ctx)
		require.ErrorIs(t, err, gateway.ErrInvalidCredentials)
		require.NotErrorIs(t, err, diskFull)
		require.False(t, m.IsAuthenticated(ctx))
		require.Contains(t, logs.String(), "Clearing credentials failed")
		require.Contains(t, logs.String(), "disk full")
	})
}

func TestRefreshTokens(t *testing.T) {
	t.Run("renews access token", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.signInSucceeds(60, testProfile("Jane Doe"))
		f.gateway.RefreshTokenFunc = func(_ context.Context, req gateway.RefreshTokenRequest) (*gateway.RefreshTokenResponse, error) {
			require.Equal(t, "refresh-1", req.RefreshToken)
			require.Equal(t, testEmail, req.Email)
			return &gateway.RefreshTokenResponse{AccessToken: "access-token-2", IDToken: "id-token-2", ExpiresIn: 3600}, nil
		}
		m := f.newManager(t)
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		f.clock.Advance(30 * time.Second)
		require.NoError(t, m.RefreshTokens(ctx))

		rec, ok, err := f.store.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "access-token-2", rec.AccessToken)
		require.WithinDuration(t, baseTime.Add(30*time.Second+time.Hour), rec.ExpiresAt, 0)
		require.Equal(t, "refresh-1", utils.Value(rec.RefreshToken))

		f.clock.Advance(time.Minute)
		require.True(t, m.IsAuthenticated(ctx))
	})

	t.Run("renews an expired access token", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.signInSucceeds(60, testProfile("Jane Doe"))
		f.gateway.RefreshTokenFunc = func(_ context.Context, req gateway.RefreshTokenRequest) (*gateway.RefreshTokenResponse, error) {
			require.Equal(t, "refresh-1", req.RefreshToken)
			return &gateway.RefreshTokenResponse{AccessToken: "access-token-2", IDToken: "id-token-2", ExpiresIn: 3600}, nil
		}
		m := f.newManager(t)
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		require.NoError(t, m.RefreshTokens(ctx))

		rec, ok, err := f.store.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "access-token-2", rec.AccessToken)
		require.WithinDuration(t, baseTime.Add(2*time.Minute+time.Hour), rec.ExpiresAt, 0)
		require.True(t, m.IsAuthenticated(ctx))
		require.Equal(t, testEmail, m.User(ctx).Email)
	})

	t.Run("expired without refresh token signs out", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.gateway.SignInFunc = func(context.Context, gateway.SignInRequest) (*gateway.SignInResponse, error) {
			return &gateway.SignInResponse{AccessToken: testAccess, IDToken: testIDToken, ExpiresIn: 60, User: testProfile("Jane Doe")}, nil
		}
		m := f.newManager(t)
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		require.ErrorIs(t, m.RefreshTokens(ctx), interrors.ErrNoRefreshToken)
		require.Equal(t, session.Unauthenticated, m.Snapshot(ctx).Status)
		require.Equal(t, 0, f.repo.Len())
	})

	t.Run("no refresh token", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.gateway.SignInFunc = func(context.Context, gateway.SignInRequest) (*gateway.SignInResponse, error) {
			return &gateway.SignInResponse{AccessToken: testAccess, IDToken: testIDToken, ExpiresIn: 3600, User: testProfile("Jane Doe")}, nil
		}
		m := f.newManager(t)
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		require.ErrorIs(t, m.RefreshTokens(ctx), interrors.ErrNoRefreshToken)
		require.True(t, m.IsAuthenticated(ctx))
		require.Equal(t, 0, f.gateway.Calls("RefreshToken"))
	})

	t.Run("rejection signs out", func(t *testing.T) {
		f := setupManagerFixture(t)
		f.signInSucceeds(3600, testProfile("Jane Doe"))
		f.gateway.RefreshTokenFunc = func(context.Context, gateway.RefreshTokenRequest) (*gateway.RefreshTokenResponse, error) {
			return nil, gateway.NewInvalidCredentials("Invalid refresh token")
		}
		m := f.newManager(t)
		ctx := context.Background()
		_, err := m.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)

		require.ErrorIs(t, m.RefreshTokens(ctx), gateway.ErrInvalidCredentials)
		require.False(t, m.IsAuthenticated(ctx))
		require.Equal(t, 0, f.repo.Len())
	})
}

func TestSubscribeSeesTransitions(t *testing.T) {
	f := setupManagerFixture(t)
	f.signInSucceeds(3600, testProfile("Jane Doe"))
	m := f.newManager(t)
	ctx := context.Background()
	waitReady(t, m)

	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	_, err := m.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	snap := <-updates
	require.Equal(t, session.Authenticated, snap.Status)
	require.Equal(t, testEmail, snap.User.Email)

	require.NoError(t, m.SignOut(ctx))
	snap = <-updates
	require.Equal(t, session.Unauthenticated, snap.Status)
	require.Nil(t, snap.User)

	unsubscribe()
	_, open := <-updates
	require.False(t, open)
}

func TestConcurrentOperationsAreSerialized(t *testing.T) {
	f := setupManagerFixture(t)
	f.signInSucceeds(3600, testProfile("Jane Doe"))
	f.gateway.SignOutFunc = func(context.Context, string) (*gateway.MessageResponse, error) {
		return &gateway.MessageResponse{Message: "Successfully signed out"}, nil
	}
	m := f.newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.SignIn(ctx, testEmail, testPassword)
		}()
		go func() {
			defer wg.Done()
			_ = m.SignOut(ctx)
		}()
	}
	wg.Wait()

	// Whatever order the calls ran in, memory and storage agree.
	snap := m.Snapshot(ctx)
	require.Equal(t, f.store.IsValid(ctx), snap.IsAuthenticated)
	require.Equal(t, snap.IsAuthenticated, snap.User != nil)
}

func TestNewRequiresDependencies(t *testing.T) {
	f := setupManagerFixture(t)

	_, err := session.New(nil, f.store)
	require.Error(t, err)
	_, err = session.New(f.gateway, nil)
	require.Error(t, err)
}
