package porcupine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/oneconcern/porcupine/internal/rand"
	"github.com/oneconcern/porcupine/pkg/codec"
	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/oneconcern/porcupine/pkg/storage"
	"github.com/oneconcern/porcupine/pkg/storage/bdgr"
	"github.com/oneconcern/porcupine/pkg/storage/localfs"
	"github.com/oneconcern/porcupine/pkg/storage/pbl"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

type (
	testTree = Porcupine[uint64, string]
	testNest = Nest[uint64, string]
)

var errInjected = errors.New("injected failure")

func testFormat() *Format[uint64, string] {
	f := NewFormat[uint64, string](codec.Uint64{}, codec.String{})
	f.InlineLimit = 32
	return f
}

func memStore() storage.Store {
	return localfs.New(afero.NewMemMapFs())
}

func newTestNest(t testing.TB, store storage.Store, opts ...NestOption) *testNest {
	t.Helper()

	opts = append([]NestOption{
		WithInlineLimit(32),
		WithNestLogger(zaptest.NewLogger(t)),
	}, opts...)
	nest, err := NewNest[uint64, string](store, codec.Uint64{}, codec.String{}, opts...)
	require.NoError(t, err)

	return nest
}

func newTestTree(t testing.TB, store storage.Store, nestOpts ...NestOption) *testTree {
	t.Helper()

	return New(newTestNest(t, store, nestOpts...), WithExtent(256), WithContention(0.5), WithLogger(zaptest.NewLogger(t)))
}

// valueFor builds a value of a size which depends on the key: some values are stored out-of-line
func valueFor(k uint64) string {
	v := fmt.Sprintf("value-%d", k)
	if k%7 == 0 {
		v += strings.Repeat("#", 40)
	}
	return v
}

// model is the expected content of a tree
type model map[uint64]string

func (m model) keys() []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// responsible is the key expected from a responsible-entry lookup
func (m model) responsible(k uint64) uint64 {
	keys := m.keys()
	i := sort.Search(len(keys), func(i int) bool { return keys[i] >= k })
	if i == len(keys) {
		i--
	}
	return keys[i]
}

func fill(t testing.TB, tree *testTree, keys ...uint64) model {
	t.Helper()

	m := make(model, len(keys))
	for _, k := range keys {
		require.NoError(t, tree.Add(context.Background(), k, valueFor(k)))
		m[k] = valueFor(k)
	}
	return m
}

func shuffled(n int, seed int64) []uint64 {
	return rand.New(seed).Keys(n, 10)
}

func contentOf(t testing.TB, tree *testTree) model {
	t.Helper()

	m := make(model)
	var last uint64
	require.NoError(t, tree.Walk(context.Background(), func(k uint64, v string) error {
		if len(m) > 0 && k <= last {
			return fmt.Errorf("walk out of order: %d after %d", k, last)
		}
		last = k
		m[k] = v
		return nil
	}))
	return m
}

func backends(t testing.TB) map[string]storage.Store {
	t.Helper()

	b, err := bdgr.New("", bdgr.InMemory())
	require.NoError(t, err)
	p, err := pbl.New("", pbl.InMemory())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = b.Close()
		_ = p.Close()
	})

	return map[string]storage.Store{
		"localfs":        memStore(),
		"localfs-staged": localfs.New(afero.NewBasePathFs(afero.NewOsFs(), t.TempDir()), localfs.WithStaging(true)),
		"badger":         b,
		"pebble":         p,
	}
}

// faultyStore fails on demand
type faultyStore struct {
	storage.Store
	failPut atomic.Bool
	failGet atomic.Bool
	puts    atomic.Int64
	gets    atomic.Int64
}

func (f *faultyStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.gets.Add(1)
	if f.failGet.Load() {
		return nil, errInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyStore) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) error {
	f.puts.Add(1)
	if f.failPut.Load() {
		return errInjected
	}
	return f.Store.Put(ctx, key, rdr, exclusive)
}
