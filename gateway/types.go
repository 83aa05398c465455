package gateway

import (
	"fmt"

	"github.com/jrsteele09/go-auth-client/users"
)

// MaxExpiresIn caps the token lifetime the client accepts, in seconds.
const MaxExpiresIn = int64(10 * 365 * 24 * 60 * 60)

type SignUpRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty"`
}

type SignUpResponse struct {
	Message       string `json:"message"`
	UserSub       string `json:"user_sub"`
	UserConfirmed bool   `json:"user_confirmed"`
}

func (r *SignUpResponse) validate() error {
	if r.UserSub == "" {
		return fmt.Errorf("sign up response missing user_sub")
	}
	return nil
}

type ConfirmSignUpRequest struct {
	Email            string `json:"email"`
	ConfirmationCode string `json:"confirmation_code"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse carries the issued tokens. ExpiresIn is the access token
// lifetime in seconds, relative to the moment the response is received.
type SignInResponse struct {
	AccessToken  string        `json:"access_token"`
	IDToken      string        `json:"id_token"`
	RefreshToken *string       `json:"refresh_token,omitempty"`
	ExpiresIn    int64         `json:"expires_in"`
	TokenType    string        `json:"token_type,omitempty"`
	User         users.Profile `json:"user"`
}

func (r *SignInResponse) validate() error {
	if r.AccessToken == "" {
		return fmt.Errorf("sign in response missing access_token")
	}
	if r.ExpiresIn <= 0 {
		return fmt.Errorf("sign in response has non-positive expires_in %d", r.ExpiresIn)
	}
	if r.ExpiresIn > MaxExpiresIn {
		return fmt.Errorf("sign in response expires_in %d exceeds %d", r.ExpiresIn, MaxExpiresIn)
	}
	if err := r.User.Validate(); err != nil {
		return fmt.Errorf("sign in response user: %w", err)
	}
	return nil
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
	Email        string `json:"email"`
}

type RefreshTokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (r *RefreshTokenResponse) validate() error {
	if r.AccessToken == "" {
		return fmt.Errorf("refresh response missing access_token")
	}
	if r.ExpiresIn <= 0 {
		return fmt.Errorf("refresh response has non-positive expires_in %d", r.ExpiresIn)
	}
	if r.ExpiresIn > MaxExpiresIn {
		return fmt.Errorf("refresh response expires_in %d exceeds %d", r.ExpiresIn, MaxExpiresIn)
	}
	return nil
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// profileResponse lets GetCurrentUser share the validation path.
type profileResponse struct {
	users.Profile
}

func (r *profileResponse) validate() error {
	return r.Profile.Validate()
}

// errorResponse is the identity service error body. Detail is either a
// string or a list of validation problems.
type errorResponse struct {
	Detail any `json:"detail"`
}

type validator interface {
	validate() error
}
