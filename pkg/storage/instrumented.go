// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/oneconcern/porcupine/pkg/metrics"
	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// M describes metrics for instrumented stores
type M struct {
	Volumetry struct {
		IO metrics.IOMetrics `group:"io" description:"block store IO activity"`
	} `group:"storage" description:"metrics about block stores"`
}

// Instrument decorates a store with debug logs, tracing spans and IO metrics.
//
// A nil tracer means the global opentracing tracer.
func Instrument(tr opentracing.Tracer, l *zap.Logger, store Store) Store {
	if tr == nil {
		tr = opentracing.GlobalTracer()
	}
	if l == nil {
		l = zap.NewNop()
	}
	i := &instrumentedStore{
		tr:    tr,
		store: store,
		l:     l.With(zap.String("model", store.String())),
	}
	i.EnableMetrics(true)
	i.m = metrics.Ensure[M]("storage")

	return i
}

type instrumentedStore struct {
	store Store
	tr    opentracing.Tracer
	l     *zap.Logger

	metrics.Enable
	m *M
}

func (i *instrumentedStore) opName(name string) string {
	return strings.Join([]string{"storage", i.String(), name}, ".")
}

func (i *instrumentedStore) spanFromContext(ctx context.Context, name string) opentracing.Span {
	parent := opentracing.SpanFromContext(ctx)
	var span opentracing.Span
	if parent != nil {
		span = i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	} else {
		span = i.tr.StartSpan(name)
	}
	return span
}

func (i *instrumentedStore) record(start time.Time, operation string, size int64, err error) {
	if i.MetricsEnabled() {
		i.m.Volumetry.IO.IORecord(start, operation)(size, err)
	}
}

func (i *instrumentedStore) finish(span opentracing.Span, err error) {
	if err != nil {
		span.SetTag("error", true)
		span.LogKV("message", err.Error())
	}
	span.Finish()
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (has bool, err error) {
	span := i.spanFromContext(ctx, i.opName("Has"))
	defer func(t0 time.Time) {
		i.finish(span, err)
		i.record(t0, "has", 0, err)
	}(time.Now())

	i.l.Debug("storage has", zap.String("key", key))

	return i.store.Has(ctx, key)
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (rdr io.ReadCloser, err error) {
	span := i.spanFromContext(ctx, i.opName("Get"))
	t0 := time.Now()
	i.l.Debug("storage get", zap.String("key", key))

	rdr, err = i.store.Get(ctx, key)
	if err != nil {
		i.finish(span, err)
		i.record(t0, "get", 0, err)
		return nil, err
	}

	// the operation is complete once the reader is drained and closed
	return &countingReader{
		ReadCloser: rdr,
		done: func(size int64, err error) {
			i.finish(span, err)
			i.record(t0, "get", size, err)
		},
	}, nil
}

func (i *instrumentedStore) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) (err error) {
	span := i.spanFromContext(ctx, i.opName("Put"))
	counted := &countingReader{ReadCloser: io.NopCloser(rdr)}
	defer func(t0 time.Time) {
		i.finish(span, err)
		i.record(t0, "put", counted.size, err)
	}(time.Now())

	i.l.Debug("storage put", zap.String("key", key), zap.Bool("exclusive", exclusive))

	return i.store.Put(ctx, key, counted, exclusive)
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) (err error) {
	span := i.spanFromContext(ctx, i.opName("Delete"))
	defer func(t0 time.Time) {
		i.finish(span, err)
		i.record(t0, "delete", 0, err)
	}(time.Now())

	i.l.Debug("storage delete", zap.String("key", key))

	return i.store.Delete(ctx, key)
}

func (i *instrumentedStore) Keys(ctx context.Context) (keys []string, err error) {
	span := i.spanFromContext(ctx, i.opName("Keys"))
	defer func(t0 time.Time) {
		i.finish(span, err)
		i.record(t0, "keys", 0, err)
	}(time.Now())

	i.l.Debug("storage keys")

	return i.store.Keys(ctx)
}

func (i *instrumentedStore) Clear(ctx context.Context) (err error) {
	span := i.spanFromContext(ctx, i.opName("Clear"))
	defer func(t0 time.Time) {
		i.finish(span, err)
		i.record(t0, "clear", 0, err)
	}(time.Now())

	i.l.Debug("storage clear")

	return i.store.Clear(ctx)
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}

// countingReader counts bytes flowing through a reader
type countingReader struct {
	io.ReadCloser
	size int64
	err  error
	done func(int64, error)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.size += int64(n)
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}

func (c *countingReader) Close() error {
	err := c.ReadCloser.Close()
	if c.done != nil {
		if err == nil {
			err = c.err
		}
		c.done(c.size, err)
		c.done = nil
	}
	return err
}
