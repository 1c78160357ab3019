// Package bdgr provides a block store backed by an embedded badger database.
package bdgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v3"
	"github.com/oneconcern/porcupine/pkg/storage"
	"github.com/oneconcern/porcupine/pkg/storage/status"
	"go.uber.org/zap"
)

var _ storage.Store = &Store{}

// Store is a block store in a badger database. Each block is a single key.
type Store struct {
	db   *badger.DB
	path string
}

// New opens (or creates) a badger database at path.
//
// With the InMemory option, path is ignored and nothing is written to disk.
func New(path string, opts ...Option) (*Store, error) {
	o := defaultOptions(opts)

	bopts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING).
		WithLogger(zapLogger{o.logger.Sugar()}).
		WithSyncWrites(o.syncWrites)

	if o.inMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
		path = ""
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) String() string {
	if s.path == "" {
		return "badger@memory"
	}
	return "badger@" + s.path
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, e := txn.Get([]byte(key))

		return e
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, e := txn.Get([]byte(key))
		if e != nil {
			return e
		}
		value, e = item.ValueCopy(nil)

		return e
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, status.ErrNotFound.Wrap(fmt.Errorf("key %q", key))
		}

		return nil, err
	}

	return ioutil.NopCloser(bytes.NewReader(value)), nil
}

func (s *Store) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	value, err := ioutil.ReadAll(source)
	if err != nil {
		return fmt.Errorf("read record for %q: %w", key, err)
	}

	return s.retry(ctx, func(txn *badger.Txn) error {
		if exclusive {
			_, e := txn.Get([]byte(key))
			if e == nil {
				return status.ErrExists.Wrap(fmt.Errorf("key %q", key))
			}
			if !errors.Is(e, badger.ErrKeyNotFound) {
				return e
			}
		}

		return txn.Set([]byte(key), value)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.retry(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		iterator := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: false,
		})
		defer iterator.Close()

		for iterator.Rewind(); iterator.Valid(); iterator.Next() {
			keys = append(keys, string(iterator.Item().KeyCopy(nil)))
		}

		return nil
	})

	return keys, err
}

func (s *Store) Clear(ctx context.Context) error {
	return s.db.DropAll()
}

// retry an update transaction whenever it conflicts with a concurrent one
func (s *Store) retry(ctx context.Context, update func(*badger.Txn) error) error {
	return backoff.Retry(func() error {
		err := s.db.Update(update)
		if err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return err // retry
			}

			return backoff.Permanent(err)
		}

		return nil
	},
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), maxConflictRetries), ctx),
	)
}

const maxConflictRetries = 50

// zapLogger routes badger logs to zap
type zapLogger struct {
	*zap.SugaredLogger
}

func (l zapLogger) Warningf(format string, args ...interface{}) {
	l.SugaredLogger.Warnf(format, args...)
}
