package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	KeyStoreBackend  = "store"
	KeyStorePath     = "store-path"
	KeyRedisAddr     = "redis-addr"
	KeyRedisPassword = "redis-password"
	KeyRedisDB       = "redis-db"
	KeyRedisKey      = "redis-key"
)

// Credential store backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetStorePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKey() string
}

type Store struct {
	v *viper.Viper
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() string {
	return strings.ToLower(s.v.GetString(KeyStoreBackend))
}

// GetStorePath returns the on-disk location for the file and sqlite backends.
// Defaults to a file under the user config directory.
func (s Store) GetStorePath() string {
	if p := s.v.GetString(KeyStorePath); p != "" {
		return p
	}
	name := "session.json"
	if s.GetStoreBackend() == BackendSQLite {
		name = "session.db"
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", name)
	}
	return filepath.Join(dir, "authclient", name)
}

func (s Store) GetRedisAddr() string {
	return s.v.GetString(KeyRedisAddr)
}

func (s Store) GetRedisPassword() string {
	return s.v.GetString(KeyRedisPassword)
}

func (s Store) GetRedisDB() int {
	return s.v.GetInt(KeyRedisDB)
}

func (s Store) GetRedisKey() string {
	return s.v.GetString(KeyRedisKey)
}
