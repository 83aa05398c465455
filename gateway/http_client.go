package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-client/internal/config"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

var (
	_ Gateway         = (*HTTPClient)(nil)
	_ TokenRefresher  = (*HTTPClient)(nil)
	_ SignUpConfirmer = (*HTTPClient)(nil)
	_ HealthChecker   = (*HTTPClient)(nil)
)

// HTTPClient talks JSON over HTTP to the identity service.
type HTTPClient struct {
	baseURL string
	prefix  string
	hc      *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// HTTPClientOption defines a function type to modify the HTTPClient instance.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying client (e.g. httptest.Server.Client()).
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

func WithPrefix(prefix string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.prefix = strings.TrimRight(prefix, "/")
	}
}

// WithTimeout bounds each round trip. Zero means no bound beyond the context.
func WithTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		c.timeout = d
	}
}

func WithLogger(l zerolog.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// WithCircuitBreaker stops calling an identity service that keeps failing.
// Only transport failures and 5xx responses count against it; while open,
// calls fail fast as network failures.
func WithCircuitBreaker(name string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: breakerSuccess,
		})
	}
}

// NewHTTPClient returns a client rooted at baseURL (scheme and host, no path).
func NewHTTPClient(baseURL string, options ...HTTPClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.Wrap(interrors.ErrMissingGatewayURL, "[NewHTTPClient]")
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  DefaultPrefix,
		hc:      http.DefaultClient,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// NewHTTPClientFromConfig builds a client from the gateway settings.
func NewHTTPClientFromConfig(cfg config.GatewayConfig, logger zerolog.Logger, options ...HTTPClientOption) (*HTTPClient, error) {
	opts := []HTTPClientOption{
		WithPrefix(cfg.GetGatewayPrefix()),
		WithTimeout(cfg.GetRequestTimeout()),
		WithLogger(logger),
	}
	if cfg.GetBreakerEnabled() {
		opts = append(opts, WithCircuitBreaker("identity-gateway"))
	}
	return NewHTTPClient(cfg.GetGatewayURL(), append(opts, options...)...)
}

func (c *HTTPClient) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	var resp SignUpResponse
	if err := c.call(ctx, http.MethodPost, c.prefix+RouteSignUp, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ConfirmSignUp(ctx context.Context, req ConfirmSignUpRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.call(ctx, http.MethodPost, c.prefix+RouteConfirmSignUp, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	var resp SignInResponse
	if err := c.call(ctx, http.MethodPost, c.prefix+RouteSignIn, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) SignOut(ctx context.Context, accessToken string) (*MessageResponse, error) {
	if accessToken == "" {
		return nil, NewInvalidCredentials("no access token")
	}
	var resp MessageResponse
	if err := c.call(ctx, http.MethodPost, c.prefix+RouteSignOut, accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetCurrentUser(ctx context.Context, accessToken string) (*users.Profile, error) {
	if accessToken == "" {
		return nil, NewInvalidCredentials("no access token")
	}
	var resp profileResponse
	if err := c.call(ctx, http.MethodGet, c.prefix+RouteCurrentUser, accessToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Profile, nil
}

func (c *HTTPClient) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*RefreshTokenResponse, error) {
	var resp RefreshTokenResponse
	if err := c.call(ctx, http.MethodPost, c.prefix+RouteRefreshToken, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.call(ctx, http.MethodGet, RouteHealth, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call runs one request, through the breaker when configured.
func (c *HTTPClient) call(ctx context.Context, method, path, bearer string, body, out any) error {
	if c.breaker == nil {
		return c.do(ctx, method, path, bearer, body, out)
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, method, path, bearer, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewNetworkFailure(err)
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[HTTPClient.do] marshal request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "[HTTPClient.do] new request")
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	logger := c.logger.With().Str("request_id", requestID).Str("method", method).Str("path", path).Logger()
	started := time.Now()

	resp, err := c.client(ctx, bearer).Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("Identity service unreachable")
		return NewNetworkFailure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return NewNetworkFailure(err)
	}
	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(started)).Msg("Identity service responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		detail := ""
		if json.Unmarshal(raw, &e) == nil {
			detail = detailMessage(e.Detail)
		}
		return errorFromStatus(resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewMalformedResponse(err)
	}
	if v, ok := out.(validator); ok {
		if err := v.validate(); err != nil {
			return NewMalformedResponse(err)
		}
	}
	return nil
}

// client returns an http.Client that attaches the bearer token, if any.
func (c *HTTPClient) client(ctx context.Context, bearer string) *http.Client {
	if bearer == "" {
		return c.hc
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.hc)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: bearer,
		TokenType:   "Bearer",
	}))
}

func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var gErr *Error
	if !errors.As(err, &gErr) {
		return false
	}
	switch gErr.Kind {
	case KindNetworkFailure:
		return false
	case KindServerError:
		return gErr.Status < 500
	default:
		return true
	}
}
