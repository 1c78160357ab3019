package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/docker/go-units"
	"github.com/oneconcern/porcupine/pkg/codec"
	"github.com/oneconcern/porcupine/pkg/dlogger"
	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/oneconcern/porcupine/pkg/metrics"
	"github.com/oneconcern/porcupine/pkg/porcupine"
	"github.com/oneconcern/porcupine/pkg/storage"
	"github.com/oneconcern/porcupine/pkg/storage/bdgr"
	"github.com/oneconcern/porcupine/pkg/storage/localfs"
	"github.com/oneconcern/porcupine/pkg/storage/pbl"
	"github.com/oneconcern/porcupine/pkg/storage/status"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// descriptors are stored next to the blocks of the tree
const rootsPrefix = "roots"

type (
	tree = porcupine.Porcupine[string, string]
	nest = porcupine.Nest[string, string]
)

// session holds a tree opened from its descriptor, along with its block store
type session struct {
	name   string
	store  storage.Store
	closer io.Closer
	nest   *nest
	tree   *tree
	l      *zap.Logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func descriptorKey(name string) string {
	return path.Join(rootsPrefix, name)
}

func openBackend(l *zap.Logger) (storage.Store, io.Closer, error) {
	location := porcupineFlags.store.path

	switch porcupineFlags.store.backend {
	case backendLocalFS:
		if err := os.MkdirAll(location, 0700); err != nil {
			return nil, nil, err
		}
		fs := afero.NewBasePathFs(afero.NewOsFs(), location)
		return localfs.New(fs, localfs.WithStaging(true), localfs.WithSync(porcupineFlags.store.sync)), nopCloser{}, nil

	case backendBadger:
		store, err := bdgr.New(location, bdgr.WithLogger(l), bdgr.WithSyncWrites(porcupineFlags.store.sync))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case backendPebble:
		store, err := pbl.New(location, pbl.WithLogger(l), pbl.WithSyncWrites(porcupineFlags.store.sync))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q: expected one of %s", porcupineFlags.store.backend,
			strings.Join([]string{backendLocalFS, backendBadger, backendPebble}, ", "))
	}
}

func byteSize(flag, value string) (int, error) {
	size, err := units.RAMInBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return int(size), nil
}

func nestOptions(l *zap.Logger) ([]porcupine.NestOption, error) {
	budget, err := byteSize("cache", porcupineFlags.tree.cache)
	if err != nil {
		return nil, err
	}

	opts := []porcupine.NestOption{
		porcupine.WithCacheBudget(budget),
		porcupine.WithVerifyOnLoad(!porcupineFlags.tree.noVerify),
		porcupine.WithNestLogger(l),
		porcupine.WithNestMetrics(porcupineFlags.root.metrics),
	}
	if porcupineFlags.tree.inlineLimit != "" {
		limit, err := byteSize("inline-limit", porcupineFlags.tree.inlineLimit)
		if err != nil {
			return nil, err
		}
		opts = append(opts, porcupine.WithInlineLimit(limit))
	}

	return opts, nil
}

func treeOptions(l *zap.Logger) ([]porcupine.Option, error) {
	extent, err := byteSize("extent", porcupineFlags.tree.extent)
	if err != nil {
		return nil, err
	}

	return []porcupine.Option{
		porcupine.WithExtent(extent),
		porcupine.WithContention(porcupineFlags.tree.contention),
		porcupine.WithLogger(l),
		porcupine.WithMetrics(porcupineFlags.root.metrics),
	}, nil
}

func openSession(ctx context.Context) (*session, error) {
	l, err := dlogger.GetLogger(porcupineFlags.root.logLevel)
	if err != nil {
		return nil, err
	}
	if porcupineFlags.root.metrics {
		metrics.Init(metrics.WithLogger(l, zapcore.InfoLevel))
	}

	name := porcupineFlags.tree.name
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid tree name %q", name)
	}

	nopts, err := nestOptions(l)
	if err != nil {
		return nil, err
	}
	topts, err := treeOptions(l)
	if err != nil {
		return nil, err
	}

	backend, closer, err := openBackend(l)
	if err != nil {
		return nil, err
	}
	s := &session{
		name:   name,
		store:  storage.WithRetry(storage.Instrument(nil, l, backend), storage.WithRetryLogger(l)),
		closer: closer,
		l:      l.With(zap.String("tree", name)),
	}

	s.nest, err = porcupine.NewNest[string, string](s.store, codec.String{}, codec.String{}, nopts...)
	if err != nil {
		s.close()
		return nil, err
	}

	d, found, err := s.descriptor(ctx)
	if err != nil {
		s.close()
		return nil, err
	}
	if !found {
		s.tree = porcupine.New(s.nest, topts...)
		return s, nil
	}

	s.tree, err = porcupine.Open(ctx, s.nest, d, topts...)
	if err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}

// descriptor of the last sealed version of the tree
func (s *session) descriptor(ctx context.Context) (porcupine.Descriptor, bool, error) {
	data, err := storage.ReadAll(ctx, s.store, descriptorKey(s.name))
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return porcupine.Descriptor{}, false, nil
		}
		return porcupine.Descriptor{}, false, err
	}

	d, err := porcupine.ParseDescriptor(data)
	if err != nil {
		return d, false, err
	}
	return d, true, nil
}

// commit seals the tree and records its new descriptor
func (s *session) commit(ctx context.Context) error {
	d, err := s.tree.Seal(ctx)
	if err != nil {
		return err
	}

	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err = storage.WriteAll(ctx, s.store, descriptorKey(s.name), data, storage.OverWrite); err != nil {
		return err
	}
	s.l.Debug("tree committed", zap.String("root", d.Root), zap.Int("count", d.Count), zap.Int("height", d.Height))

	if !porcupineFlags.write.collect {
		return nil
	}

	collected, err := s.nest.Collect(ctx)
	if err != nil {
		return err
	}
	s.l.Info("obsolete blocks collected", zap.Int("blocks", collected))

	return nil
}

func (s *session) close() {
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			s.l.Warn("closing store", zap.Error(err))
		}
	}
	if porcupineFlags.root.metrics {
		metrics.Flush()
	}
	_ = s.l.Sync()
}

// withSession runs some function on the tree, and commits the tree when asked to
func withSession(mutates bool, fn func(context.Context, *session) error) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if err = fn(ctx, s); err != nil {
		return err
	}
	if !mutates {
		return nil
	}

	return s.commit(ctx)
}
