package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
)

var _ storage.Repo = (*FakeRepo)(nil)

// FakeRepo is an in-memory storage.Repo. It survives nothing, which makes it
// the backend for tests and for --store memory.
type FakeRepo struct {
	values    map[string]string
	closed    bool
	deleteErr error
	lock      sync.RWMutex
}

func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		values: make(map[string]string),
	}
}

func (r *FakeRepo) Get(_ context.Context, key string) (string, bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.closed {
		return "", false, errors.ErrStoreClosed
	}
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *FakeRepo) Set(_ context.Context, values map[string]string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return errors.ErrStoreClosed
	}
	for k := range values {
		if k == "" {
			return errors.ErrEmptyKey
		}
	}
	for k, v := range values {
		r.values[k] = v
	}
	return nil
}

func (r *FakeRepo) Delete(_ context.Context, keys ...string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return errors.ErrStoreClosed
	}
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for _, k := range keys {
		delete(r.values, k)
	}
	return nil
}

func (r *FakeRepo) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.closed = true
	return nil
}

// FailDeletes makes every later Delete return err; nil restores normal
// behaviour (test helper)
func (r *FakeRepo) FailDeletes(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.deleteErr = err
}

// Keys returns a copy of the stored keys (test helper)
func (r *FakeRepo) Keys() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored keys
func (r *FakeRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.values)
}
