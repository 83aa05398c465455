package config

import (
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"
)

type LogConfig interface {
	GetLogLevel() zerolog.Level
	GetLogFormat() string
}

type Logging struct {
	v *viper.Viper
}

var _ LogConfig = Logging{}

// GetLogLevel falls back to info on unparsable input.
func (l Logging) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(l.v.GetString(KeyLogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// GetLogFormat is either "console" or "json".
func (l Logging) GetLogFormat() string {
	if l.v.GetString(KeyLogFormat) == "json" {
		return "json"
	}
	return "console"
}
