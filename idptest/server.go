// Package idptest is an in-process identity service speaking the same JSON
// API as the production service. It backs the gateway and CLI tests and
// the CLI's mock-idp command.
package idptest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/users"
)

const (
	DefaultClientID      = "authclient"
	DefaultTokenLifetime = 3600 * time.Second
)

// Failure replaces the response of a route. A non-empty RawBody is written
// as is, which lets tests serve bodies that are not JSON.
type Failure struct {
	Status  int
	Detail  string
	RawBody string
}

type Server struct {
	mux    *http.ServeMux
	routes []string
	prefix string

	issuer   string
	clientID string
	keys     *KeyPair
	lifetime time.Duration
	cost     int
	nowTime  func() time.Time
	logger   zerolog.Logger

	lock          sync.Mutex
	accounts      map[string]*account
	accessTokens  map[string]issuedToken
	refreshTokens map[string]string
	failures      map[string]Failure
	requests      map[string]int
	lastRequestID string
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithTokenLifetime sets the expires_in reported for new access tokens.
func WithTokenLifetime(d time.Duration) ServerOption {
	return func(s *Server) {
		s.lifetime = d
	}
}

func WithClientID(clientID string) ServerOption {
	return func(s *Server) {
		s.clientID = clientID
	}
}

// WithIssuer sets the iss claim and discovery issuer. Start sets it to the
// listener URL when unset.
func WithIssuer(issuer string) ServerOption {
	return func(s *Server) {
		s.issuer = strings.TrimRight(issuer, "/")
	}
}

func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithUsers seeds accounts.
func WithUsers(seed ...User) ServerOption {
	return func(s *Server) {
		for _, u := range seed {
			if _, err := s.AddUser(u); err != nil {
				s.logger.Err(err).Str("email", u.Email).Msg("Failed to seed user")
			}
		}
	}
}

func New(options ...ServerOption) (*Server, error) {
	keys, err := GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, errors.Wrap(err, "[idptest.New]")
	}

	s := &Server{
		mux:           http.NewServeMux(),
		prefix:        gateway.DefaultPrefix,
		clientID:      DefaultClientID,
		keys:          keys,
		lifetime:      DefaultTokenLifetime,
		cost:          bcrypt.MinCost,
		nowTime:       time.Now,
		logger:        log.Logger,
		accounts:      make(map[string]*account),
		accessTokens:  make(map[string]issuedToken),
		refreshTokens: make(map[string]string),
		failures:      make(map[string]Failure),
		requests:      make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	return s, nil
}

// Start serves s on a loopback listener. Close the returned server when done.
func (s *Server) Start() *httptest.Server {
	ts := httptest.NewServer(s)
	s.lock.Lock()
	if s.issuer == "" {
		s.issuer = ts.URL
	}
	s.lock.Unlock()
	return ts
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) Issuer() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.issuer
}

func (s *Server) ClientID() string {
	return s.clientID
}

func (s *Server) Keys() *KeyPair {
	return s.keys
}

// AddUser registers an account directly, bypassing sign up.
func (s *Server) AddUser(u User) (users.Profile, error) {
	a, err := newAccount(u, s.cost)
	if err != nil {
		return users.Profile{}, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.accounts[a.email]; exists {
		return users.Profile{}, errAccountExists
	}
	s.accounts[a.email] = a
	return a.profile(), nil
}

// ConfirmationCode returns the code a sign up would have emailed.
func (s *Server) ConfirmationCode(email string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return "", errUnknownAccount
	}
	return a.confirmationCode, nil
}

// InjectFailure makes every request to route (a path such as
// gateway.RouteSignIn, relative to the API prefix) fail until cleared.
func (s *Server) InjectFailure(route string, f Failure) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failures[route] = f
}

func (s *Server) ClearFailures() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failures = make(map[string]Failure)
}

// Requests returns how many requests reached route.
func (s *Server) Requests(route string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.requests[route]
}

// LastRequestID returns the X-Request-ID of the most recent request.
func (s *Server) LastRequestID() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastRequestID
}

// ExpireAccessTokens makes every issued access token invalid.
func (s *Server) ExpireAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for tok := range s.accessTokens {
		delete(s.accessTokens, tok)
	}
}
