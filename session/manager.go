// Package session owns the signed-in state of the client: it reconciles the
// stored credentials with the identity service at startup and orchestrates
// sign in, sign out and refresh.
//
// A Manager serializes its operations. Two overlapping calls (for example a
// SignIn issued while a RefreshUser is waiting on the network) run one after
// the other in the order they acquired the operation lock; neither is
// cancelled. In-memory state is guarded separately and is never locked
// across network I/O, so Snapshot stays responsive while an operation is in
// flight.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/idtoken"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
)

// Manager is the single owner of the session. Create one per process with
// New and release it with Close.
type Manager struct {
	gateway  gateway.Gateway
	store    *credentials.Store
	verifier idtoken.Verifier
	logger   zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	startOnce sync.Once
	ready     chan struct{}

	// opMu serializes public operations and the reconciliation fetch
	opMu sync.Mutex

	mu      sync.Mutex
	state   state
	loading bool
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithIDTokenVerifier rejects sign-in responses whose ID token fails
// verification.
func WithIDTokenVerifier(v idtoken.Verifier) ManagerOption {
	return func(m *Manager) {
		m.verifier = v
	}
}

// New creates a Manager in the Initializing state. Reconciliation runs on
// the first call to Start or to any other method.
func New(gw gateway.Gateway, store *credentials.Store, options ...ManagerOption) (*Manager, error) {
	if gw == nil {
		return nil, errors.New("[session.New] gateway is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		gateway: gw,
		store:   store,
		logger:  log.Logger,
		baseCtx: ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		state:   initializing(),
		loading: true,
		subs:    make(map[int]chan Snapshot),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Start runs startup reconciliation once. The decision based on stored
// credentials is made before Start returns; the profile fetch for a stored
// session continues in the background until Ready is closed.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.opMu.Lock()
		m.reconcile(ctx)
	})
}

// Ready is closed once reconciliation has completed.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Wait blocks until reconciliation completes or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.Start(ctx)
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reconcile is entered with opMu held and hands it to the background fetch
// when there is one.
func (m *Manager) reconcile(ctx context.Context) {
	rec, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Err(err).Msg("Reading stored credentials failed, starting signed out")
		ok = false
	}

	if !ok {
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Err(err).Msg("Clearing stale credentials failed")
		}
		m.setState(unauthenticated())
		m.finishReconcile()
		m.opMu.Unlock()
		return
	}

	m.setState(authenticated(rec.Profile, Unverified))
	go m.verifyStoredSession(rec.AccessToken)
}

// verifyStoredSession refreshes the profile of a restored session. Failure
// keeps the stored snapshot: a transient outage at startup must not sign the
// user out.
func (m *Manager) verifyStoredSession(accessToken string) {
	defer m.opMu.Unlock()
	defer m.finishReconcile()

	profile, err := m.gateway.GetCurrentUser(m.baseCtx, accessToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Could not verify stored session, keeping cached profile")
		return
	}
	if err := m.store.SaveProfile(m.baseCtx, *profile); err != nil {
		m.logger.Err(err).Msg("Persisting refreshed profile failed")
	}
	m.setState(authenticated(profile, Verified))
}

func (m *Manager) finishReconcile() {
	m.mu.Lock()
	m.loading = false
	m.publishLocked()
	m.mu.Unlock()
	close(m.ready)
}

// Snapshot returns the current session. Authentication is re-derived from
// the credential store on every call, so a session whose token expired is
// reported as signed out; when no operation is in flight the leftover record
// is also cleared.
func (m *Manager) Snapshot(ctx context.Context) Snapshot {
	m.Start(ctx)

	m.mu.Lock()
	snap := m.state.snapshot(m.loading)
	m.mu.Unlock()

	if !snap.IsAuthenticated || m.store.IsValid(ctx) {
		return snap
	}

	if m.opMu.TryLock() {
		m.expireLocked(ctx)
		m.opMu.Unlock()
	}

	m.mu.Lock()
	snap = m.state.snapshot(m.loading)
	m.mu.Unlock()
	if snap.Status == Authenticated {
		// Expired while an operation holds opMu; report it signed out and
		// leave the state change to that operation or the next query.
		snap = unauthenticated().snapshot(snap.IsLoading)
	}
	return snap
}

// IsAuthenticated reports whether a non-expired access token is stored and
// the session is signed in.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	return m.Snapshot(ctx).IsAuthenticated
}

// User returns a copy of the current profile, or nil.
func (m *Manager) User(ctx context.Context) *users.Profile {
	snap := m.Snapshot(ctx)
	if !snap.IsAuthenticated {
		return nil
	}
	return snap.User
}

// IsLoading is true until reconciliation completes.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// expireLocked demotes an authenticated session whose credentials are no
// longer valid. Caller holds opMu.
func (m *Manager) expireLocked(ctx context.Context) {
	m.mu.Lock()
	status := m.state.status
	m.mu.Unlock()
	if status != Authenticated || m.store.IsValid(ctx) {
		return
	}
	m.logger.Info().Msg("Session credentials expired")
	_ = m.signOutLocal(ctx) // logged by signOutLocal
}

// SignIn authenticates with the identity service, then persists the full
// credential record and transitions to Authenticated. On failure nothing is
// stored or changed and the gateway error is returned.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*users.Profile, error) {
	m.Start(ctx)
	m.opMu.Lock()
	defer m.opMu.Unlock()

	resp, err := m.gateway.SignIn(ctx, gateway.SignInRequest{Email: email, Password: password})
	if err != nil {
		m.logger.Info().Err(err).Str("email", email).Msg("Sign in failed")
		return nil, err
	}

	if m.verifier != nil {
		if _, err := m.verifier.Verify(ctx, resp.IDToken); err != nil {
			m.logger.Warn().Err(err).Str("email", email).Msg("Rejecting sign in with unverifiable ID token")
			return nil, gateway.NewMalformedResponse(err)
		}
	}

	rec := credentials.NewRecord(resp.AccessToken, resp.IDToken, resp.RefreshToken, resp.ExpiresIn, resp.User, m.store.Now())
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "[Manager.SignIn] persist credentials")
	}

	m.setState(authenticated(&resp.User, Verified))
	m.logger.Info().Str("email", resp.User.Email).Time("expires_at", rec.ExpiresAt).Msg("Signed in")

	user := resp.User
	return &user, nil
}

// SignOut clears local credentials and transitions to Unauthenticated before
// telling the identity service. The remote call is best effort: its failure
// is logged and never returned. Only a failure to clear local storage is
// reported, and even then the in-memory session is signed out.
func (m *Manager) SignOut(ctx context.Context) error {
	m.Start(ctx)
	m.opMu.Lock()
	defer m.opMu.Unlock()

	token, hasToken, err := m.store.AccessToken(ctx)
	if err != nil {
		m.logger.Err(err).Msg("Reading access token for sign out failed")
	}

	clearErr := m.signOutLocal(ctx)

	if hasToken {
		if _, err := m.gateway.SignOut(ctx, token); err != nil {
			m.logger.Warn().Err(err).Msg("Remote sign out failed, local session already cleared")
		}
	}
	return clearErr
}

// signOutLocal clears the store and transitions to Unauthenticated.
// Caller holds opMu.
func (m *Manager) signOutLocal(ctx context.Context) error {
	err := m.store.Clear(ctx)
	if err != nil {
		m.logger.Err(err).Msg("Clearing credentials failed")
	}
	m.setState(unauthenticated())
	return errors.Wrap(err, "[Manager.signOutLocal]")
}

// RefreshUser re-fetches the profile. It does nothing when signed out. A
// failed fetch signs the user out, since an explicit refresh being rejected
// means the session is no longer good; the gateway error is returned.
func (m *Manager) RefreshUser(ctx context.Context) error {
	m.Start(ctx)
	m.opMu.Lock()
	defer m.opMu.Unlock()

	rec, ok := m.activeRecord(ctx)
	if !ok {
		return nil
	}

	profile, err := m.gateway.GetCurrentUser(ctx, rec.AccessToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Refreshing user failed, signing out")
		_ = m.signOutLocal(ctx) // logged by signOutLocal; the gateway error is the one callers act on
		return err
	}

	if err := m.store.SaveProfile(ctx, *profile); err != nil {
		m.logger.Err(err).Msg("Persisting refreshed profile failed")
	}
	m.setState(authenticated(profile, Verified))
	return nil
}

// RefreshTokens exchanges the stored refresh token for a new access token.
// It also renews a session whose access token has expired, as long as the
// expired record has not been cleared yet. It does nothing when signed out
// and returns ErrNoRefreshToken when the session has none. A rejected
// refresh signs the user out.
func (m *Manager) RefreshTokens(ctx context.Context) error {
	m.Start(ctx)
	m.opMu.Lock()
	defer m.opMu.Unlock()

	refresher, ok := m.gateway.(gateway.TokenRefresher)
	if !ok {
		return errors.Wrap(interrors.ErrNotSupported, "[Manager.RefreshTokens] gateway cannot refresh tokens")
	}

	m.mu.Lock()
	status := m.state.status
	email := ""
	if m.state.user != nil {
		email = m.state.user.Email
	}
	m.mu.Unlock()
	if status != Authenticated {
		return nil
	}

	refreshToken, err := m.store.RefreshToken(ctx)
	if err != nil {
		m.expireLocked(ctx)
		return err
	}

	resp, err := refresher.RefreshToken(ctx, gateway.RefreshTokenRequest{RefreshToken: refreshToken, Email: email})
	if err != nil {
		m.logger.Warn().Err(err).Msg("Token refresh rejected, signing out")
		_ = m.signOutLocal(ctx) // logged by signOutLocal; the gateway error is the one callers act on
		return err
	}

	if err := m.store.UpdateTokens(ctx, resp.AccessToken, resp.IDToken, resp.ExpiresIn); err != nil {
		return errors.Wrap(err, "[Manager.RefreshTokens] persist tokens")
	}
	m.logger.Debug().Int64("expires_in", resp.ExpiresIn).Msg("Access token refreshed")
	return nil
}

// activeRecord returns the stored record when the session is authenticated
// and still valid, expiring it otherwise. Caller holds opMu.
func (m *Manager) activeRecord(ctx context.Context) (credentials.Record, bool) {
	m.mu.Lock()
	status := m.state.status
	m.mu.Unlock()
	if status != Authenticated {
		return credentials.Record{}, false
	}

	rec, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Err(err).Msg("Reading stored credentials failed")
		return credentials.Record{}, false
	}
	if !ok {
		m.expireLocked(ctx)
		return credentials.Record{}, false
	}
	return rec, true
}

// SignUp registers a new account. It does not sign the user in.
func (m *Manager) SignUp(ctx context.Context, req gateway.SignUpRequest) (*gateway.SignUpResponse, error) {
	resp, err := m.gateway.SignUp(ctx, req)
	if err != nil {
		m.logger.Info().Err(err).Str("email", req.Email).Msg("Sign up failed")
		return nil, err
	}
	return resp, nil
}

// ConfirmSignUp submits the confirmation code sent after sign up.
func (m *Manager) ConfirmSignUp(ctx context.Context, req gateway.ConfirmSignUpRequest) (*gateway.MessageResponse, error) {
	confirmer, ok := m.gateway.(gateway.SignUpConfirmer)
	if !ok {
		return nil, errors.Wrap(interrors.ErrNotSupported, "[Manager.ConfirmSignUp] gateway cannot confirm sign ups")
	}
	return confirmer.ConfirmSignUp(ctx, req)
}

// RememberEmail stores (or, when empty, forgets) the email to prefill at the
// next sign in. It is kept across sign out.
func (m *Manager) RememberEmail(ctx context.Context, email string) error {
	return m.store.RememberEmail(ctx, email)
}

func (m *Manager) RememberedEmail(ctx context.Context) (string, bool, error) {
	return m.store.RememberedEmail(ctx)
}

// Subscribe delivers the session after every transition. Slow readers only
// see the latest value. Call the returned function to unsubscribe.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// Close stops any background reconciliation and closes subscriber channels.
// The credential store is left as is so the session survives a restart.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) setState(s state) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.status
	m.state = s
	if from != s.status {
		m.logger.Debug().Stringer("from", from).Stringer("to", s.status).Msg("Session transition")
	}
	m.publishLocked()
}

// publishLocked sends the current snapshot to subscribers, replacing any
// value they have not read yet. Caller holds mu.
func (m *Manager) publishLocked() {
	snap := m.state.snapshot(m.loading)
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
