package idptest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/users"
)

const contentTypeJSON = "application/json"

// fieldError is one entry of a validation error detail list.
type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeMissingFields(w http.ResponseWriter, fields ...string) {
	errs := make([]fieldError, 0, len(fields))
	for _, f := range fields {
		errs = append(errs, fieldError{Loc: []string{"body", f}, Msg: "field required", Type: "value_error.missing"})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": errs})
}

// decodeBody writes the error response itself and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, gateway.HealthResponse{Status: "healthy"})
	}
}

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.Issuer()
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                issuer + s.prefix + gateway.RouteSignIn,
			"token_endpoint":                        issuer + s.prefix + gateway.RouteRefreshToken,
			"userinfo_endpoint":                     issuer + s.prefix + gateway.RouteCurrentUser,
			"jwks_uri":                              issuer + RouteWellKnownJWKS,
			"response_types_supported":              []string{"token", "id_token"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{RS256},
		})
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, s.keys.JWKS())
	}
}

func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gateway.SignUpRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !decodeRequired(w, map[string]string{"email": req.Email, "password": req.Password}) {
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		profile, err := s.AddUser(User{
			Email:    req.Email,
			Password: req.Password,
			FullName: utils.Value(req.FullName),
		})
		if err != nil {
			s.logger.Info().Err(err).Str("email", req.Email).Msg("Sign up rejected")
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, gateway.SignUpResponse{
			Message:       "User registered successfully. Please check your email for confirmation code.",
			UserSub:       utils.Value(profile.UserSub),
			UserConfirmed: false,
		})
	}
}

func (s *Server) ConfirmSignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gateway.ConfirmSignUpRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !decodeRequired(w, map[string]string{"email": req.Email, "confirmation_code": req.ConfirmationCode}) {
			return
		}

		s.lock.Lock()
		a, ok := s.accounts[strings.ToLower(req.Email)]
		valid := ok && a.confirmationCode == req.ConfirmationCode
		if valid {
			a.confirmed = true
		}
		s.lock.Unlock()

		if !valid {
			writeDetail(w, http.StatusBadRequest, "Invalid verification code provided, please try again.")
			return
		}
		writeJSON(w, http.StatusOK, gateway.MessageResponse{Message: "Email confirmed successfully"})
	}
}

func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gateway.SignInRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !decodeRequired(w, map[string]string{"email": req.Email, "password": req.Password}) {
			return
		}

		s.lock.Lock()
		a, ok := s.accounts[strings.ToLower(req.Email)]
		confirmed := ok && a.confirmed
		s.lock.Unlock()
		if !ok || !a.checkPassword(req.Password) {
			writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if !confirmed {
			writeDetail(w, http.StatusForbidden, "User is not confirmed")
			return
		}

		resp, err := s.issueTokens(a)
		if err != nil {
			s.logger.Err(err).Str("email", a.email).Msg("Failed to issue tokens")
			writeDetail(w, http.StatusInternalServerError, "Failed to issue tokens")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		s.lock.Lock()
		_, known := s.accessTokens[token]
		delete(s.accessTokens, token)
		s.lock.Unlock()

		if !known {
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		writeJSON(w, http.StatusOK, gateway.MessageResponse{Message: "Successfully signed out"})
	}
}

func (s *Server) CurrentUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		profile, ok := s.profileForToken(token)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gateway.RefreshTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !decodeRequired(w, map[string]string{"refresh_token": req.RefreshToken}) {
			return
		}

		s.lock.Lock()
		email, ok := s.refreshTokens[req.RefreshToken]
		a := s.accounts[email]
		s.lock.Unlock()
		if !ok || a == nil || (req.Email != "" && !strings.EqualFold(req.Email, email)) {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}

		access, idToken, err := s.newAccessToken(a)
		if err != nil {
			s.logger.Err(err).Str("email", a.email).Msg("Failed to refresh tokens")
			writeDetail(w, http.StatusInternalServerError, "Failed to refresh tokens")
			return
		}
		writeJSON(w, http.StatusOK, gateway.RefreshTokenResponse{
			AccessToken: access,
			IDToken:     idToken,
			ExpiresIn:   int64(s.lifetime / time.Second),
		})
	}
}

// decodeRequired rejects requests whose named fields are blank.
func decodeRequired(w http.ResponseWriter, fields map[string]string) bool {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		writeMissingFields(w, missing...)
		return false
	}
	return true
}

func (s *Server) profileForToken(token string) (users.Profile, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	issued, ok := s.accessTokens[token]
	if !ok {
		return users.Profile{}, false
	}
	if !s.nowTime().Before(issued.expiresAt) {
		delete(s.accessTokens, token)
		return users.Profile{}, false
	}
	a, ok := s.accounts[issued.email]
	if !ok {
		return users.Profile{}, false
	}
	return a.profile(), true
}

func (s *Server) issueTokens(a *account) (*gateway.SignInResponse, error) {
	access, idToken, err := s.newAccessToken(a)
	if err != nil {
		return nil, err
	}
	refresh := "refresh-" + uuid.NewString()

	s.lock.Lock()
	s.refreshTokens[refresh] = a.email
	profile := a.profile()
	s.lock.Unlock()

	return &gateway.SignInResponse{
		AccessToken:  access,
		IDToken:      idToken,
		RefreshToken: utils.Ptr(refresh),
		ExpiresIn:    int64(s.lifetime / time.Second),
		TokenType:    "bearer",
		User:         profile,
	}, nil
}

// newAccessToken issues an opaque access token and a signed ID token.
func (s *Server) newAccessToken(a *account) (string, string, error) {
	now := s.nowTime()
	expiresAt := now.Add(s.lifetime)

	claims := jwtlib.MapClaims{
		"iss":   s.Issuer(),
		"sub":   a.sub,
		"aud":   s.clientID,
		"email": a.email,
		"name":  utils.Value(a.fullName),
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   uuid.NewString(),
	}
	idToken, err := s.keys.Sign(claims)
	if err != nil {
		return "", "", err
	}

	access := "access-" + a.sub + "-" + uuid.NewString()
	s.lock.Lock()
	s.accessTokens[access] = issuedToken{email: a.email, expiresAt: expiresAt}
	s.lock.Unlock()
	return access, idToken, nil
}
