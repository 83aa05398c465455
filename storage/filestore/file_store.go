// Package filestore keeps credentials in a single JSON document on disk. It is
// the default backend for the CLI, standing in for a browser profile's local
// storage.
package filestore

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

var _ storage.Repo = (*Store)(nil)

// Store is safe for use by multiple goroutines in one process. Every call
// re-reads the document so edits made by another process are observed.
type Store struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
	closed bool
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates the parent directory if needed. The file itself is created on
// the first write.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("[filestore.New] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, errors.Wrap(err, "[filestore.New] create directory")
	}
	s := &Store{path: path, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, interrors.ErrStoreClosed
	}
	doc, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return interrors.ErrStoreClosed
	}
	doc, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		if k == "" {
			return interrors.ErrEmptyKey
		}
		doc[k] = v
	}
	return s.write(doc)
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return interrors.ErrStoreClosed
	}
	doc, err := s.read()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := doc[k]; ok {
			delete(doc, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.write(doc)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// read returns an empty document when the file does not exist. A document
// that cannot be decoded is discarded so that a damaged file never locks the
// user out.
func (s *Store) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[filestore.read]")
	}
	doc := map[string]string{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Discarding unreadable credential file")
		return map[string]string{}, nil
	}
	return doc, nil
}

// write replaces the document via a temp file and rename.
func (s *Store) write(doc map[string]string) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[filestore.write] marshal")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "[filestore.write] create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore.write] write temp file")
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore.write] chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[filestore.write] close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "[filestore.write] rename")
	}
	return nil
}
