package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	KeyAppName = "app-name"
	KeyEnv     = "env"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(KeyAppName)
}

func (e EnvVars) GetEnv() string {
	env := strings.ToUpper(e.v.GetString(KeyEnv))
	if env == "" {
		return "DEV"
	}
	return env
}
