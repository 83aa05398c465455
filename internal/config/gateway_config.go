package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyGatewayURL     = "gateway-url"
	KeyGatewayPrefix  = "gateway-prefix"
	KeyGatewayTimeout = "gateway-timeout"
	KeyGatewayBreaker = "gateway-breaker"
	KeyOIDCIssuer     = "oidc-issuer"
	KeyOIDCClientID   = "oidc-client-id"
)

type GatewayConfig interface {
	GetGatewayURL() string
	GetGatewayPrefix() string
	GetRequestTimeout() time.Duration
	GetBreakerEnabled() bool
	GetOIDCIssuer() string
	GetOIDCClientID() string
}

type Gateway struct {
	v *viper.Viper
}

var _ GatewayConfig = Gateway{}

// GetGatewayURL returns the identity service base URL without a trailing slash.
func (g Gateway) GetGatewayURL() string {
	return strings.TrimRight(g.v.GetString(KeyGatewayURL), "/")
}

func (g Gateway) GetGatewayPrefix() string {
	prefix := g.v.GetString(KeyGatewayPrefix)
	if prefix != "" && prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

// GetRequestTimeout bounds a single gateway round trip. Zero disables the bound.
func (g Gateway) GetRequestTimeout() time.Duration {
	return g.v.GetDuration(KeyGatewayTimeout)
}

func (g Gateway) GetBreakerEnabled() bool {
	return g.v.GetBool(KeyGatewayBreaker)
}

// GetOIDCIssuer enables ID token verification when non-empty.
func (g Gateway) GetOIDCIssuer() string {
	return g.v.GetString(KeyOIDCIssuer)
}

func (g Gateway) GetOIDCClientID() string {
	return g.v.GetString(KeyOIDCClientID)
}
