package credentials

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/users"
)

// Logical storage keys. The names match what the browser client kept in
// local storage so that stores can be inspected by hand.
const (
	KeyAccessToken     = "access_token"
	KeyIDToken         = "id_token"
	KeyRefreshToken    = "refresh_token"
	KeyExpiresAt       = "token_expires_at"
	KeyUserInfo        = "user_info"
	KeyRememberedEmail = "remembered_email"
)

// RecordKeys lists every key a Record occupies. Clear removes all of them.
var RecordKeys = []string{
	KeyAccessToken,
	KeyIDToken,
	KeyRefreshToken,
	KeyExpiresAt,
	KeyUserInfo,
}

// Record is the persisted bundle of tokens, expiry and cached profile that
// represents one signed-in session.
type Record struct {
	AccessToken  string
	IDToken      string
	RefreshToken *string
	ExpiresAt    time.Time      // Absolute, millisecond precision
	Profile      *users.Profile // Nil when the stored snapshot is absent or unreadable
}

// NewRecord computes ExpiresAt as now + expiresIn seconds.
func NewRecord(accessToken, idToken string, refreshToken *string, expiresIn int64, profile users.Profile, now time.Time) Record {
	return Record{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    utils.FromEpochMillis(utils.EpochMillis(utils.ExpiresAt(now, expiresIn))),
		Profile:      &profile,
	}
}

// ValidAt reports whether the record authenticates a user at t.
func (r Record) ValidAt(t time.Time) bool {
	return r.AccessToken != "" && t.Before(r.ExpiresAt)
}

// OAuth2Token exposes the record as a bearer token for x/oauth2 transports.
func (r Record) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: utils.Value(r.RefreshToken),
		Expiry:       r.ExpiresAt,
	}
	return tok.WithExtra(map[string]any{"id_token": r.IDToken})
}
