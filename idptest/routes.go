package idptest

import (
	"net/http"

	"github.com/jrsteele09/go-auth-client/gateway"
)

// OpenID discovery routes, served from the root like RouteHealth
const (
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
)

func (s *Server) initRoutes() {
	s.registerRoot(http.MethodGet, gateway.RouteHealth, s.HealthHandler())
	s.registerRoot(http.MethodGet, RouteWellKnownOpenIDConfig, s.WellKnownOpenIDConfig())
	s.registerRoot(http.MethodGet, RouteWellKnownJWKS, s.JWKSHandler())

	s.registerAPI(http.MethodPost, gateway.RouteSignUp, s.SignUpHandler())
	s.registerAPI(http.MethodPost, gateway.RouteConfirmSignUp, s.ConfirmSignUpHandler())
	s.registerAPI(http.MethodPost, gateway.RouteSignIn, s.SignInHandler())
	s.registerAPI(http.MethodPost, gateway.RouteSignOut, s.SignOutHandler())
	s.registerAPI(http.MethodGet, gateway.RouteCurrentUser, s.CurrentUserHandler())
	s.registerAPI(http.MethodPost, gateway.RouteRefreshToken, s.RefreshTokenHandler())
}

func (s *Server) registerRoot(method, route string, h http.HandlerFunc) {
	s.RegisterRouteFunc(method+" "+route, ChainMiddleware(h, s.APIMiddleware(route)...))
}

// registerAPI mounts route under the API prefix. Failures are injected by the
// unprefixed route name so tests do not depend on the prefix.
func (s *Server) registerAPI(method, route string, h http.HandlerFunc) {
	s.RegisterRouteFunc(method+" "+s.prefix+route, ChainMiddleware(h, s.APIMiddleware(route)...))
}
