// Package redisstore keeps the credential keys as fields of one Redis hash,
// which lets several processes on a host share a session.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
)

var _ storage.Repo = (*Store)(nil)

type Options struct {
	Addr        string
	Password    string
	DB          int
	Key         string // Hash holding the credential fields
	DialTimeout time.Duration
}

type Store struct {
	rc  *redis.Client
	key string
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("[redisstore.Connect] address is empty")
	}
	rc := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, errors.Wrap(err, "[redisstore.Connect] ping")
	}
	return New(rc, opts.Key)
}

// New wraps an existing client.
func New(rc *redis.Client, key string) (*Store, error) {
	if rc == nil {
		return nil, errors.New("[redisstore.New] redis client is nil")
	}
	if key == "" {
		return nil, errors.New("[redisstore.New] hash key is empty")
	}
	return &Store{rc: rc, key: key}, nil
}

func (s *Store) Get(ctx context.Context, field string) (string, bool, error) {
	v, err := s.rc.HGet(ctx, s.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[redisstore.Get] %s", field)
	}
	return v, true, nil
}

// Set writes every field with a single HSET, which Redis applies atomically.
func (s *Store) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		if k == "" {
			return interrors.ErrEmptyKey
		}
		args = append(args, k, v)
	}
	if err := s.rc.HSet(ctx, s.key, args...).Err(); err != nil {
		return errors.Wrap(err, "[redisstore.Set]")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.rc.HDel(ctx, s.key, fields...).Err(); err != nil {
		return errors.Wrap(err, "[redisstore.Delete]")
	}
	return nil
}

func (s *Store) Close() error {
	return s.rc.Close()
}
