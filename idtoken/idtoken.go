// Package idtoken inspects and verifies the OpenID Connect ID tokens the
// identity service returns on sign in.
package idtoken

import (
	"context"
	"crypto"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ErrNotJWT is returned for tokens that are not compact JWTs, such as the
// opaque tokens issued by mock identity services.
var ErrNotJWT = errors.New("id token is not a JWT")

// Claims is the subset of ID token claims the client cares about.
type Claims struct {
	Subject   string    `json:"sub"`
	Issuer    string    `json:"iss"`
	Audience  []string  `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"-"`
	IssuedAt  time.Time `json:"-"`
}

// Verifier checks an ID token's signature and standard claims.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*Claims, error)
}

// VerifierFunc adapts a function into a Verifier.
type VerifierFunc func(ctx context.Context, rawIDToken string) (*Claims, error)

func (f VerifierFunc) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	return f(ctx, rawIDToken)
}

// ParseUnverified decodes the claims without checking the signature. Use it
// for display only.
func ParseUnverified(rawIDToken string) (*Claims, error) {
	if strings.Count(rawIDToken, ".") != 2 {
		return nil, ErrNotJWT
	}
	token, _, err := jwtlib.NewParser().ParseUnverified(rawIDToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[idtoken.ParseUnverified]")
	}
	mc, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[idtoken.ParseUnverified] error extracting claims")
	}

	c := &Claims{}
	c.Subject, _ = mc.GetSubject()
	c.Issuer, _ = mc.GetIssuer()
	c.Audience, _ = mc.GetAudience()
	if exp, _ := mc.GetExpirationTime(); exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		c.IssuedAt = iat.Time
	}
	c.Email, _ = mc["email"].(string)
	c.Name, _ = mc["name"].(string)
	c.Nonce, _ = mc["nonce"].(string)
	return c, nil
}

// OIDCVerifier verifies tokens with go-oidc.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ Verifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier discovers the issuer's keys through its
// .well-known/openid-configuration document.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	if issuer == "" {
		return nil, errors.New("[NewOIDCVerifier] issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCVerifier] failed to create OIDC provider")
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(oidcConfig(clientID, nil)),
	}, nil
}

// NewStaticVerifier verifies against fixed public keys, skipping discovery.
// now may be nil.
func NewStaticVerifier(issuer, clientID string, now func() time.Time, keys ...crypto.PublicKey) *OIDCVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, oidcConfig(clientID, now)),
	}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCVerifier.Verify] ID token verification failed")
	}

	var extra struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&extra); err != nil {
		return nil, errors.Wrap(err, "[OIDCVerifier.Verify] failed to extract claims")
	}

	return &Claims{
		Subject:   idToken.Subject,
		Issuer:    idToken.Issuer,
		Audience:  idToken.Audience,
		Email:     extra.Email,
		Name:      extra.Name,
		Nonce:     idToken.Nonce,
		ExpiresAt: idToken.Expiry,
		IssuedAt:  idToken.IssuedAt,
	}, nil
}

func oidcConfig(clientID string, now func() time.Time) *oidc.Config {
	return &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: clientID == "",
		Now:               now,
	}
}
