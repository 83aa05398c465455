// Package gateway is the client side of the remote identity service: the
// request/response contract, the error taxonomy callers see, and an HTTP
// implementation.
package gateway

import (
	"context"

	"github.com/jrsteele09/go-auth-client/users"
)

// Gateway is the identity service contract the session manager depends on.
// Test doubles substitute it without network access.
type Gateway interface {
	SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error)
	SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error)
	// SignOut and GetCurrentUser authenticate with the bearer access token
	SignOut(ctx context.Context, accessToken string) (*MessageResponse, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*users.Profile, error)
}

// TokenRefresher is implemented by gateways that can exchange a refresh
// token for a new access token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*RefreshTokenResponse, error)
}

// SignUpConfirmer is implemented by gateways that require a confirmation
// code after sign up.
type SignUpConfirmer interface {
	ConfirmSignUp(ctx context.Context, req ConfirmSignUpRequest) (*MessageResponse, error)
}

// HealthChecker reports identity service liveness.
type HealthChecker interface {
	Health(ctx context.Context) (*HealthResponse, error)
}
