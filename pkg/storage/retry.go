package storage

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/oneconcern/porcupine/pkg/storage/status"
	"go.uber.org/zap"
)

// RetryOption configures the retrying store decorator
type RetryOption func(*retryStore)

// WithMaxRetries limits the number of attempts after the first failure
func WithMaxRetries(n uint64) RetryOption {
	return func(r *retryStore) {
		r.maxRetries = n
	}
}

// WithMaxElapsed limits the total time spent retrying a single operation
func WithMaxElapsed(d time.Duration) RetryOption {
	return func(r *retryStore) {
		r.maxElapsed = d
	}
}

// WithRetryLogger logs retried failures
func WithRetryLogger(l *zap.Logger) RetryOption {
	return func(r *retryStore) {
		if l != nil {
			r.l = l
		}
	}
}

// WithRetry decorates a store so that transient failures are retried with an exponential backoff.
//
// Not-found, already-exists and invalid resource errors are considered permanent.
func WithRetry(store Store, opts ...RetryOption) Store {
	r := &retryStore{
		store:      store,
		maxRetries: 5,
		maxElapsed: 30 * time.Second,
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

type retryStore struct {
	store      Store
	maxRetries uint64
	maxElapsed time.Duration
	l          *zap.Logger
}

func (r *retryStore) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 10 * time.Millisecond
	exp.MaxElapsedTime = r.maxElapsed

	return backoff.WithContext(backoff.WithMaxRetries(exp, r.maxRetries), ctx)
}

func (r *retryStore) do(ctx context.Context, operation string, fn func() error) error {
	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	},
		r.policy(ctx),
		func(err error, wait time.Duration) {
			r.l.Warn("retrying storage operation",
				zap.String("operation", operation),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	)
}

func isPermanent(err error) bool {
	return errors.Is(err, status.ErrNotFound) ||
		errors.Is(err, status.ErrExists) ||
		errors.Is(err, status.ErrInvalidResource) ||
		errors.Is(err, status.ErrObjectTooBig) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *retryStore) Has(ctx context.Context, key string) (has bool, err error) {
	err = r.do(ctx, "has", func() error {
		var e error
		has, e = r.store.Has(ctx, key)
		return e
	})
	return
}

func (r *retryStore) Get(ctx context.Context, key string) (rdr io.ReadCloser, err error) {
	err = r.do(ctx, "get", func() error {
		var e error
		rdr, e = r.store.Get(ctx, key)
		return e
	})
	return
}

// Put buffers the source, so the content may be sent again on retry
func (r *retryStore) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	data, err := ioutil.ReadAll(source)
	if err != nil {
		return err
	}

	return r.do(ctx, "put", func() error {
		return r.store.Put(ctx, key, bytes.NewReader(data), exclusive)
	})
}

func (r *retryStore) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "delete", func() error {
		return r.store.Delete(ctx, key)
	})
}

func (r *retryStore) Keys(ctx context.Context) (keys []string, err error) {
	err = r.do(ctx, "keys", func() error {
		var e error
		keys, e = r.store.Keys(ctx)
		return e
	})
	return
}

func (r *retryStore) Clear(ctx context.Context) error {
	return r.do(ctx, "clear", func() error {
		return r.store.Clear(ctx)
	})
}

func (r *retryStore) String() string {
	return r.store.String()
}
