package credentials

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/users"
)

// Store maps a Record onto the keys of a storage.Repo. Validity is always
// computed from the stored expiry and the clock at the time of the call.
type Store struct {
	repo    storage.Repo
	nowTime func() time.Time
	logger  zerolog.Logger
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

func NewStore(repo storage.Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] storage repo is required")
	}
	s := &Store{
		repo:    repo,
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.nowTime()
}

// Save writes every field of r together. A record without a refresh token
// removes any refresh token left over from an earlier session.
func (s *Store) Save(ctx context.Context, r Record) error {
	if r.AccessToken == "" {
		return errors.New("[Store.Save] access token is required")
	}
	values := map[string]string{
		KeyAccessToken: r.AccessToken,
		KeyIDToken:     r.IDToken,
		KeyExpiresAt:   strconv.FormatInt(utils.EpochMillis(r.ExpiresAt), 10),
	}
	if r.Profile != nil {
		info, err := r.Profile.Marshal()
		if err != nil {
			return errors.Wrap(err, "[Store.Save]")
		}
		values[KeyUserInfo] = info
	}
	if r.RefreshToken != nil {
		values[KeyRefreshToken] = *r.RefreshToken
	}
	if err := s.repo.Set(ctx, values); err != nil {
		return errors.Wrap(err, "[Store.Save] set")
	}
	if r.RefreshToken == nil {
		if err := s.repo.Delete(ctx, KeyRefreshToken); err != nil {
			return errors.Wrap(err, "[Store.Save] drop stale refresh token")
		}
	}
	return nil
}

// UpdateTokens replaces the access and ID tokens and the expiry after a token
// refresh, leaving the refresh token and profile snapshot untouched.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, idToken string, expiresIn int64) error {
	if accessToken == "" {
		return errors.New("[Store.UpdateTokens] access token is required")
	}
	expiresAt := utils.ExpiresAt(s.nowTime(), expiresIn)
	err := s.repo.Set(ctx, map[string]string{
		KeyAccessToken: accessToken,
		KeyIDToken:     idToken,
		KeyExpiresAt:   strconv.FormatInt(utils.EpochMillis(expiresAt), 10),
	})
	return errors.Wrap(err, "[Store.UpdateTokens]")
}

// SaveProfile overwrites only the profile snapshot.
func (s *Store) SaveProfile(ctx context.Context, p users.Profile) error {
	info, err := p.Marshal()
	if err != nil {
		return errors.Wrap(err, "[Store.SaveProfile]")
	}
	if err := s.repo.Set(ctx, map[string]string{KeyUserInfo: info}); err != nil {
		return errors.Wrap(err, "[Store.SaveProfile] set")
	}
	return nil
}

// Load returns the stored record when it is valid right now. A record with
// no access token, an unreadable expiry, or an expiry in the past is
// reported as absent even if some of its keys remain.
func (s *Store) Load(ctx context.Context) (Record, bool, error) {
	access, ok, err := s.repo.Get(ctx, KeyAccessToken)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "[Store.Load] access token")
	}
	if !ok || access == "" {
		return Record{}, false, nil
	}

	expiresAt, ok, err := s.expiresAt(ctx)
	if err != nil {
		return Record{}, false, err
	}
	if !ok {
		return Record{}, false, nil
	}

	r := Record{AccessToken: access, ExpiresAt: expiresAt}
	if !r.ValidAt(s.nowTime()) {
		return Record{}, false, nil
	}

	if r.IDToken, _, err = s.repo.Get(ctx, KeyIDToken); err != nil {
		return Record{}, false, errors.Wrap(err, "[Store.Load] id token")
	}
	refresh, ok, err := s.repo.Get(ctx, KeyRefreshToken)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "[Store.Load] refresh token")
	}
	if ok && refresh != "" {
		r.RefreshToken = &refresh
	}
	if r.Profile, err = s.Profile(ctx); err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// IsValid reports whether a non-expired access token is stored. Storage
// failures count as invalid.
func (s *Store) IsValid(ctx context.Context) bool {
	_, ok, err := s.Load(ctx)
	if err != nil {
		s.logger.Err(err).Msg("Credential store unreadable, treating session as invalid")
		return false
	}
	return ok
}

// Profile returns the stored profile snapshot, or nil when there is none. A
// snapshot that does not decode is deleted and reported as absent.
func (s *Store) Profile(ctx context.Context) (*users.Profile, error) {
	raw, ok, err := s.repo.Get(ctx, KeyUserInfo)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Profile]")
	}
	if !ok {
		return nil, nil
	}
	p, err := users.ParseProfile([]byte(raw))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Purging unreadable user profile snapshot")
		if delErr := s.repo.Delete(ctx, KeyUserInfo); delErr != nil {
			return nil, errors.Wrap(delErr, "[Store.Profile] purge corrupt snapshot")
		}
		return nil, nil
	}
	return &p, nil
}

// RefreshToken returns the stored refresh token regardless of access token
// expiry, since refreshing is how an expired session is renewed.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	v, ok, err := s.repo.Get(ctx, KeyRefreshToken)
	if err != nil {
		return "", errors.Wrap(err, "[Store.RefreshToken]")
	}
	if !ok || v == "" {
		return "", interrors.ErrNoRefreshToken
	}
	return v, nil
}

// ExpiresAt returns the stored expiry, if any, without judging validity.
func (s *Store) ExpiresAt(ctx context.Context) (time.Time, bool, error) {
	return s.expiresAt(ctx)
}

// Clear removes every record key, including ones this process never wrote.
// Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, RecordKeys...); err != nil {
		return errors.Wrap(err, "[Store.Clear]")
	}
	return nil
}

// RememberEmail stores the address used to prefill the next sign-in. It
// survives Clear.
func (s *Store) RememberEmail(ctx context.Context, email string) error {
	if email == "" {
		return s.ForgetEmail(ctx)
	}
	err := s.repo.Set(ctx, map[string]string{KeyRememberedEmail: email})
	return errors.Wrap(err, "[Store.RememberEmail]")
}

func (s *Store) RememberedEmail(ctx context.Context) (string, bool, error) {
	v, ok, err := s.repo.Get(ctx, KeyRememberedEmail)
	if err != nil {
		return "", false, errors.Wrap(err, "[Store.RememberedEmail]")
	}
	return v, ok && v != "", nil
}

func (s *Store) ForgetEmail(ctx context.Context) error {
	return errors.Wrap(s.repo.Delete(ctx, KeyRememberedEmail), "[Store.ForgetEmail]")
}

func (s *Store) expiresAt(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := s.repo.Get(ctx, KeyExpiresAt)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "[Store.expiresAt]")
	}
	if !ok {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn().Str("value", raw).Msg("Ignoring unparsable token expiry")
		return time.Time{}, false, nil
	}
	return utils.FromEpochMillis(ms), true, nil
}

// AccessToken returns the stored access token even when it has expired, for
// best-effort revocation on sign out.
func (s *Store) AccessToken(ctx context.Context) (string, bool, error) {
	v, ok, err := s.repo.Get(ctx, KeyAccessToken)
	if err != nil {
		return "", false, errors.Wrap(err, "[Store.AccessToken]")
	}
	return v, ok && v != "", nil
}
