package gateway

// Identity service paths, relative to the configured API prefix unless noted
const (
	RouteSignUp        = "/signup"
	RouteConfirmSignUp = "/confirm-signup"
	RouteSignIn        = "/signin"
	RouteSignOut       = "/signout"
	RouteCurrentUser   = "/me"
	RouteRefreshToken  = "/refresh-token"

	// RouteHealth is served from the service root, outside the API prefix
	RouteHealth = "/health"

	// DefaultPrefix is where the identity service mounts its auth router
	DefaultPrefix = "/api/v1/auth"
)

// HeaderRequestID correlates client log lines with identity service logs
const HeaderRequestID = "X-Request-ID"
