// Package pbl provides a block store backed by an embedded pebble database.
package pbl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/oneconcern/porcupine/pkg/storage"
	"github.com/oneconcern/porcupine/pkg/storage/status"
)

var _ storage.Store = &Store{}

// Store is a block store in a pebble database
type Store struct {
	db        *pebble.DB
	path      string
	sync      *pebble.WriteOptions
	exclusive sync.Mutex
}

// New opens (or creates) a pebble database at path.
//
// With the InMemory option, the database lives on a memory file system.
func New(path string, opts ...Option) (*Store, error) {
	o := defaultOptions(opts)

	options := new(pebble.Options)
	options.EnsureDefaults()
	options.Logger = zapLogger{o.logger.Sugar()}
	dir := path
	if o.inMemory {
		options.FS = vfs.NewMem()
		if dir == "" {
			dir = "porcupine"
		}
	}

	db, err := pebble.Open(dir, options)
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}

	s := &Store{db: db, path: path, sync: pebble.NoSync}
	if o.syncWrites {
		s.sync = pebble.Sync
	}
	if o.inMemory {
		s.path = ""
	}

	return s, nil
}

// Close the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) String() string {
	if s.path == "" {
		return "pebble@memory"
	}
	return "pebble@" + s.path
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	_ = closer.Close()

	return true, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, status.ErrNotFound.Wrap(fmt.Errorf("key %q", key))
		}

		return nil, err
	}
	defer func() {
		_ = closer.Close()
	}()

	dest := make([]byte, len(val))
	copy(dest, val)

	return ioutil.NopCloser(bytes.NewReader(dest)), nil
}

func (s *Store) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	value, err := ioutil.ReadAll(source)
	if err != nil {
		return fmt.Errorf("read record for %q: %w", key, err)
	}

	if !exclusive {
		return s.db.Set([]byte(key), value, s.sync)
	}

	// pebble has no transactions: serialize check-then-set
	s.exclusive.Lock()
	defer s.exclusive.Unlock()

	found, err := s.Has(ctx, key)
	if err != nil {
		return err
	}
	if found {
		return status.ErrExists.Wrap(fmt.Errorf("key %q", key))
	}

	return s.db.Set([]byte(key), value, s.sync)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Delete([]byte(key), s.sync)
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	iterator, err := s.db.NewIter(nil)
	if err != nil {
		return nil, err
	}

	var keys []string
	for valid := iterator.First(); valid; valid = iterator.Next() {
		keys = append(keys, string(iterator.Key()))
	}

	if err = iterator.Close(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	for _, key := range keys {
		if err = batch.Delete([]byte(key), nil); err != nil {
			_ = batch.Close()
			return err
		}
	}

	return batch.Commit(s.sync)
}
