// Package backend selects a storage.Repo implementation from configuration.
package backend

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-auth-client/internal/config"
	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/storage/filestore"
	"github.com/jrsteele09/go-auth-client/storage/redisstore"
	"github.com/jrsteele09/go-auth-client/storage/repofake"
	"github.com/jrsteele09/go-auth-client/storage/sqlitestore"
)

const redisDialTimeout = 5 * time.Second

// Open returns the backend named by cfg.GetStoreBackend().
func Open(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (storage.Repo, error) {
	backend := cfg.GetStoreBackend()
	logger.Debug().Str("backend", backend).Msg("Opening credential store")

	switch backend {
	case config.BackendMemory:
		return repofake.NewFakeRepo(), nil
	case config.BackendFile, "":
		return filestore.New(cfg.GetStorePath(), filestore.WithLogger(logger))
	case config.BackendSQLite:
		return sqlitestore.Open(ctx, cfg.GetStorePath())
	case config.BackendRedis:
		return redisstore.Connect(ctx, redisstore.Options{
			Addr:        cfg.GetRedisAddr(),
			Password:    cfg.GetRedisPassword(),
			DB:          cfg.GetRedisDB(),
			Key:         cfg.GetRedisKey(),
			DialTimeout: redisDialTimeout,
		})
	default:
		return nil, errors.Wrapf(interrors.ErrNotSupported, "[backend.Open] %q", backend)
	}
}
