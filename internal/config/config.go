package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the client reads,
// e.g. AUTHCLIENT_GATEWAY_URL.
const EnvPrefix = "AUTHCLIENT"

type Config interface {
	EnvConfig
	GatewayConfig
	StoreConfig
	LogConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Gateway
	Store
	Logging
}

// New wraps v. A nil v gets a fresh instance with defaults and env binding.
func New(v *viper.Viper) Config {
	if v == nil {
		v = NewViper()
	}
	return mainConfig{
		EnvVars: EnvVars{v: v},
		Gateway: Gateway{v: v},
		Store:   Store{v: v},
		Logging: Logging{v: v},
	}
}

// NewViper returns a viper instance with the client defaults registered and
// environment lookups enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every known key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAppName, "Auth Client")
	v.SetDefault(KeyEnv, "DEV")

	v.SetDefault(KeyGatewayURL, "http://localhost:8000")
	v.SetDefault(KeyGatewayPrefix, "/api/v1/auth")
	v.SetDefault(KeyGatewayTimeout, "10s")
	v.SetDefault(KeyGatewayBreaker, false)
	v.SetDefault(KeyOIDCIssuer, "")
	v.SetDefault(KeyOIDCClientID, "")

	v.SetDefault(KeyStoreBackend, BackendFile)
	v.SetDefault(KeyStorePath, "")
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyRedisKey, "authclient:session")

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}
