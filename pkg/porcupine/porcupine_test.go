package porcupine

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/oneconcern/porcupine/pkg/address"
	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"github.com/oneconcern/porcupine/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.uber.org/zap/zaptest"
)

func assertContent(t testing.TB, tree *testTree, expected model) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, tree.Check(ctx))
	require.Equal(t, len(expected), tree.Len())
	require.Equal(t, expected, contentOf(t, tree))
}

func TestEmptyTree(t *testing.T) {
	ctx := context.Background()
	tree := newTestTree(t, memStore())

	assert.Equal(t, StrategyEmpty, tree.Strategy())
	assert.Equal(t, 0, tree.Height())
	assert.Equal(t, 0, tree.Len())

	_, _, err := tree.Lookup(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	assert.True(t, errors.Is(err, status.ErrEmpty))

	_, err = tree.Locate(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrEmpty))

	err = tree.Remove(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))

	err = tree.Update(ctx, 1, "one")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))

	found, err := tree.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tree.Check(ctx))

	d, err := tree.Seal(ctx)
	require.NoError(t, err)
	assert.Equal(t, StrategyEmpty, d.Strategy)
	assert.Empty(t, d.Root)

	reopened, err := Open(ctx, newTestNest(t, memStore()), d)
	require.NoError(t, err)
	assert.Equal(t, StrategyEmpty, reopened.Strategy())
}

func TestSingleLeaf(t *testing.T) {
	ctx := context.Background()
	tree := newTestTree(t, memStore())
	expected := fill(t, tree, 5, 3, 8)

	assert.Equal(t, StrategyValue, tree.Strategy())
	assert.Equal(t, 1, tree.Height())
	assertContent(t, tree, expected)

	k, v, err := tree.Lookup(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), k)
	assert.Equal(t, valueFor(5), v)

	k, _, err = tree.Lookup(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), k)

	_, err = tree.Locate(ctx, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	assert.False(t, errors.Is(err, status.ErrEmpty))

	err = tree.Add(ctx, 5, "again")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrDuplicateKey))
	assertContent(t, tree, expected)

	for _, k := range []uint64{3, 5, 8} {
		require.NoError(t, tree.Remove(ctx, k))
		delete(expected, k)
		assertContent(t, tree, expected)
	}
	assert.Equal(t, StrategyEmpty, tree.Strategy())
	assert.Equal(t, 0, tree.Height())
}

func TestGrowAndShrink(t *testing.T) {
	ctx := context.Background()
	tree := newTestTree(t, memStore())
	keys := shuffled(400, 42)

	expected := fill(t, tree, keys...)
	assert.Equal(t, StrategyTree, tree.Strategy())
	assert.GreaterOrEqual(t, tree.Height(), 3)
	assertContent(t, tree, expected)

	// each leaf holds a contiguous range of keys
	for _, k := range []uint64{0, 1, 15, 999, 2005, 4000, 5000} {
		actual, v, err := tree.Lookup(ctx, k)
		require.NoError(t, err)
		assert.Equalf(t, expected.responsible(k), actual, "lookup(%d)", k)
		assert.Equal(t, expected[actual], v)
	}

	for i, k := range shuffled(400, 7) {
		require.NoError(t, tree.Remove(ctx, k))
		delete(expected, k)

		if i%25 == 0 {
			assertContent(t, tree, expected)
		}
	}

	assertContent(t, tree, model{})
	assert.Equal(t, StrategyEmpty, tree.Strategy())
	assert.Equal(t, 0, tree.Height())

	_, _, err := tree.Lookup(ctx, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrEmpty))
}

func TestRandomOperations(t *testing.T) {
	ctx := context.Background()
	tree := newTestTree(t, memStore())
	expected := model{}
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 3000; i++ {
		k := uint64(r.Intn(500))
		_, present := expected[k]

		switch op := r.Intn(10); {
		case op < 5 && !present, op < 2:
			err := tree.Add(ctx, k, valueFor(k))
			if present {
				require.Error(t, err)
				assert.True(t, errors.Is(err, status.ErrDuplicateKey))
				continue
			}
			require.NoError(t, err)
			expected[k] = valueFor(k)

		case op < 8:
			err := tree.Remove(ctx, k)
			if !present {
				require.Error(t, err)
				assert.True(t, errors.Is(err, status.ErrNotFound))
				continue
			}
			require.NoError(t, err)
			delete(expected, k)

		default:
			v := valueFor(k + uint64(r.Intn(10)))
			err := tree.Update(ctx, k, v)
			if !present {
				require.Error(t, err)
				assert.True(t, errors.Is(err, status.ErrNotFound))
				continue
			}
			require.NoError(t, err)
			expected[k] = v
		}

		found, err := tree.Exists(ctx, k)
		require.NoError(t, err)
		_, present = expected[k]
		require.Equal(t, present, found)

		if len(expected) > 0 {
			actual, _, err := tree.Lookup(ctx, k)
			require.NoError(t, err)
			require.Equal(t, expected.responsible(k), actual)
		}

		if i%300 == 0 {
			assertContent(t, tree, expected)
		}
	}

	assertContent(t, tree, expected)
}

func TestSealAndOpen(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tree := newTestTree(t, store)
			expected := fill(t, tree, shuffled(200, 3)...)

			d, err := tree.Seal(ctx)
			require.NoError(t, err)
			require.NoError(t, d.Validate())
			assert.Equal(t, StrategyTree, d.Strategy)
			assert.Equal(t, tree.Height(), d.Height)
			assert.Equal(t, 200, d.Count)
			assert.Equal(t, 256, d.Extent)
			assertContent(t, tree, expected)

			// sealing a clean tree writes nothing
			blocks := tree.Nest().Stats().Blocks
			again, err := tree.Seal(ctx)
			require.NoError(t, err)
			assert.Equal(t, d, again)
			assert.Equal(t, blocks, tree.Nest().Stats().Blocks)

			reopened, err := Open(ctx, newTestNest(t, store), d)
			require.NoError(t, err)
			assert.Equal(t, StrategyTree, reopened.Strategy())
			assert.Equal(t, d.Height, reopened.Height())
			assertContent(t, reopened, expected)

			k, v, err := reopened.Lookup(ctx, 1001)
			require.NoError(t, err)
			assert.Equal(t, expected.responsible(1001), k)
			assert.Equal(t, expected[k], v)

			// the reopened tree evolves independently
			require.NoError(t, reopened.Remove(ctx, 10))
			delete(expected, 10)
			require.NoError(t, reopened.Add(ctx, 5, valueFor(5)))
			expected[5] = valueFor(5)
			d2, err := reopened.Seal(ctx)
			require.NoError(t, err)
			assert.NotEqual(t, d.Root, d2.Root)

			latest, err := Open(ctx, newTestNest(t, store), d2)
			require.NoError(t, err)
			assertContent(t, latest, expected)
		})
	}
}

func TestSealDeterministic(t *testing.T) {
	ctx := context.Background()
	keys := shuffled(150, 9)

	d1, err := func() (Descriptor, error) {
		tree := newTestTree(t, memStore())
		fill(t, tree, keys...)
		return tree.Seal(ctx)
	}()
	require.NoError(t, err)

	d2, err := func() (Descriptor, error) {
		tree := newTestTree(t, memStore())
		fill(t, tree, keys...)
		return tree.Seal(ctx)
	}()
	require.NoError(t, err)

	assert.Equal(t, d1.Root, d2.Root)
}

func TestOpenSingleLeaf(t *testing.T) {
	ctx := context.Background()
	store := memStore()
	tree := newTestTree(t, store)
	expected := fill(t, tree, 1, 2, 3)

	d, err := tree.Seal(ctx)
	require.NoError(t, err)
	assert.Equal(t, StrategyValue, d.Strategy)
	assert.Equal(t, 1, d.Height)

	reopened, err := Open(ctx, newTestNest(t, store), d)
	require.NoError(t, err)
	assertContent(t, reopened, expected)

	// the root kind must match the strategy
	d.Strategy, d.Height = StrategyTree, 2
	_, err = Open(ctx, newTestNest(t, store), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrIntegrity))
}

func TestEviction(t *testing.T) {
	ctx := context.Background()
	store := memStore()
	tree := newTestTree(t, store, WithCacheBudget(600))
	expected := fill(t, tree, shuffled(300, 4)...)

	stats := tree.Nest().Stats()
	assert.Greater(t, stats.Evictions, 0)
	assert.Greater(t, stats.Blocks, 0, "evicted dirty nodes are sealed first")
	assert.Less(t, stats.Resident, 4*600)

	for k, v := range expected {
		actual, err := tree.Locate(ctx, k)
		require.NoError(t, err)
		require.Equal(t, v, actual)
	}
	assert.Greater(t, tree.Nest().Stats().Loads, 0)

	for _, k := range shuffled(150, 5) {
		require.NoError(t, tree.Remove(ctx, k))
		delete(expected, k)
	}
	assertContent(t, tree, expected)

	d, err := tree.Seal(ctx)
	require.NoError(t, err)
	reopened, err := Open(ctx, newTestNest(t, store, WithCacheBudget(600)), d)
	require.NoError(t, err)
	assertContent(t, reopened, expected)
}

func TestSealFailure(t *testing.T) {
	ctx := context.Background()
	faulty := &faultyStore{Store: memStore()}
	tree := newTestTree(t, faulty)
	expected := fill(t, tree, shuffled(100, 6)...)

	faulty.failPut.Store(true)
	_, err := tree.Seal(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInjected))

	// no node is marked clean
	require.NoError(t, tree.Walk(ctx, func(uint64, string) error { return nil }))
	assert.True(t, tree.root.node.Dirty())
	assert.True(t, tree.root.node.Address().IsNull())
	assertContent(t, tree, expected)

	faulty.failPut.Store(false)
	d, err := tree.Seal(ctx)
	require.NoError(t, err)
	assert.False(t, tree.root.node.Dirty())

	reopened, err := Open(ctx, newTestNest(t, faulty), d)
	require.NoError(t, err)
	assertContent(t, reopened, expected)
}

func TestRemoveLoadFailure(t *testing.T) {
	ctx := context.Background()
	faulty := &faultyStore{Store: memStore()}
	tree := newTestTree(t, faulty)
	expected := fill(t, tree, shuffled(200, 8)...)
	d, err := tree.Seal(ctx)
	require.NoError(t, err)

	// pick a key whose removal leaves its leaf undersized
	probe, err := Open(ctx, newTestNest(t, faulty), d)
	require.NoError(t, err)
	var victim uint64
	for _, k := range expected.keys() {
		path, err := probe.descend(ctx, k)
		require.NoError(t, err)
		leaf := leafOf(path)
		in, err := leaf.Locate(k)
		require.NoError(t, err)
		if leaf.Footprint()-in.Footprint() < probe.threshold() {
			victim = k
			break
		}
	}
	require.NotZero(t, victim)

	reopened, err := Open(ctx, newTestNest(t, faulty), d)
	require.NoError(t, err)
	found, err := reopened.Exists(ctx, victim)
	require.NoError(t, err)
	require.True(t, found)

	faulty.failGet.Store(true)
	err = reopened.Remove(ctx, victim)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInjected))
	faulty.failGet.Store(false)

	assert.Equal(t, len(expected), reopened.Len())
	assertContent(t, reopened, expected)

	require.NoError(t, reopened.Remove(ctx, victim))
	delete(expected, victim)
	assertContent(t, reopened, expected)
}

func TestUpdatePlacement(t *testing.T) {
	ctx := context.Background()
	store := memStore()
	tree := newTestTree(t, store)
	expected := fill(t, tree, 1, 2, 3)

	d1, err := tree.Seal(ctx)
	require.NoError(t, err)
	assert.Empty(t, tree.Nest().Obsolete())

	long := string(bytes.Repeat([]byte("L"), 64))
	require.NoError(t, tree.Update(ctx, 2, long))
	expected[2] = long
	assertContent(t, tree, expected)

	in, err := tree.root.node.Locate(2)
	require.NoError(t, err)
	assert.Equal(t, OutOfLine, in.Placement())

	d2, err := tree.Seal(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, d1.Root, d2.Root)
	valueAddr := in.Address()
	require.False(t, valueAddr.IsNull())

	root1, err := d1.Address()
	require.NoError(t, err)
	assert.Equal(t, []address.Address{root1}, tree.Nest().Obsolete())

	// back to the first version of the tree
	require.NoError(t, tree.Update(ctx, 2, valueFor(2)))
	expected[2] = valueFor(2)
	in, err = tree.root.node.Locate(2)
	require.NoError(t, err)
	assert.Equal(t, Inline, in.Placement())

	d3, err := tree.Seal(ctx)
	require.NoError(t, err)
	assert.Equal(t, d1.Root, d3.Root)

	root2, err := d2.Address()
	require.NoError(t, err)
	assert.ElementsMatch(t, []address.Address{root2, valueAddr}, tree.Nest().Obsolete())

	collected, err := tree.Nest().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, collected)
	assert.Empty(t, tree.Nest().Obsolete())

	has, err := store.Has(ctx, valueAddr.Path(valuePrefix))
	require.NoError(t, err)
	assert.False(t, has)

	reopened, err := Open(ctx, newTestNest(t, store), d3)
	require.NoError(t, err)
	assertContent(t, reopened, expected)

	err = tree.Update(ctx, 4, "four")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestCollectAfterRemovals(t *testing.T) {
	ctx := context.Background()
	store := memStore()
	tree := newTestTree(t, store)
	expected := fill(t, tree, shuffled(200, 10)...)
	_, err := tree.Seal(ctx)
	require.NoError(t, err)

	for _, k := range shuffled(100, 11) {
		require.NoError(t, tree.Remove(ctx, k))
		delete(expected, k)
	}
	d, err := tree.Seal(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tree.Nest().Obsolete())

	collected, err := tree.Nest().Collect(ctx)
	require.NoError(t, err)
	assert.Greater(t, collected, 0)

	reopened, err := Open(ctx, newTestNest(t, store), d)
	require.NoError(t, err)
	assertContent(t, reopened, expected)
}

func TestLazyValues(t *testing.T) {
	ctx := context.Background()
	store := memStore()
	tree := newTestTree(t, store)
	fill(t, tree, shuffled(50, 12)...)
	d, err := tree.Seal(ctx)
	require.NoError(t, err)

	reopened, err := Open(ctx, newTestNest(t, store), d)
	require.NoError(t, err)

	found, err := reopened.Exists(ctx, 70)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, reopened.Nest().Stats().ValueLoads)

	v, err := reopened.Locate(ctx, 70)
	require.NoError(t, err)
	assert.Equal(t, valueFor(70), v)
	assert.Equal(t, 1, reopened.Nest().Stats().ValueLoads)

	_, err = reopened.Locate(ctx, 70)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Nest().Stats().ValueLoads)

	v, err = reopened.Locate(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, valueFor(60), v)
	assert.Equal(t, 1, reopened.Nest().Stats().ValueLoads)
}

func TestCorruptedBlocks(t *testing.T) {
	ctx := context.Background()
	store := memStore()
	tree := newTestTree(t, store)
	expected := fill(t, tree, shuffled(200, 13)...)
	d, err := tree.Seal(ctx)
	require.NoError(t, err)

	first := tree.root.node.Child(0).Address()
	last := expected.keys()[len(expected)-1]

	t.Run("verify on load", func(t *testing.T) {
		data, err := storage.ReadAll(ctx, store, first.Path(nodePrefix))
		require.NoError(t, err)
		defer func() {
			require.NoError(t, storage.WriteAll(ctx, store, first.Path(nodePrefix), data, storage.OverWrite))
		}()

		tampered := append([]byte(nil), data...)
		tampered[len(tampered)-1] ^= 0xff
		require.NoError(t, storage.WriteAll(ctx, store, first.Path(nodePrefix), tampered, storage.OverWrite))

		reopened, err := Open(ctx, newTestNest(t, store), d)
		require.NoError(t, err)
		err = reopened.Walk(ctx, func(uint64, string) error { return nil })
		require.Error(t, err)
		assert.True(t, errors.Is(err, status.ErrIntegrity))

		_, err = reopened.Locate(ctx, last)
		require.NoError(t, err)
	})

	t.Run("missing block", func(t *testing.T) {
		data, err := storage.ReadAll(ctx, store, first.Path(nodePrefix))
		require.NoError(t, err)
		defer func() {
			require.NoError(t, storage.WriteAll(ctx, store, first.Path(nodePrefix), data, storage.OverWrite))
		}()
		require.NoError(t, store.Delete(ctx, first.Path(nodePrefix)))

		reopened, err := Open(ctx, newTestNest(t, store), d)
		require.NoError(t, err)
		err = reopened.Check(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, status.ErrNotFound))
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := Open(ctx, newTestNest(t, memStore()), d)
		require.Error(t, err)
		assert.True(t, errors.Is(err, status.ErrNotFound))
	})

	reopened, err := Open(ctx, newTestNest(t, store), d)
	require.NoError(t, err)
	assertContent(t, reopened, expected)
}

func TestDumpAndStats(t *testing.T) {
	ctx := context.Background()
	tree := newTestTree(t, memStore())
	fill(t, tree, shuffled(100, 14)...)

	var buf bytes.Buffer
	require.NoError(t, tree.Dump(ctx, &buf))
	out := buf.String()
	assert.Contains(t, out, "porcupine strategy=tree")
	assert.Contains(t, out, "seam [dirty]")
	assert.Contains(t, out, "quill [dirty]")
	assert.Contains(t, out, "out-of-line")

	stats := tree.Stats()
	assert.Equal(t, StrategyTree, stats.Strategy)
	assert.Equal(t, 100, stats.Count)
	assert.Equal(t, tree.Height(), stats.Height)
	assert.Equal(t, 256, stats.Extent)
	assert.Greater(t, stats.Nest.Resident, 0)
	assert.Greater(t, stats.Nest.Loaded, 0)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	store := memStore()
	tree := New(newTestNest(t, store, WithNestMetrics(true), WithCacheBudget(600)),
		WithExtent(256), WithMetrics(true), WithLogger(zaptest.NewLogger(t)))
	fill(t, tree, shuffled(200, 15)...)
	require.NoError(t, tree.Remove(ctx, 10))

	d, err := tree.Seal(ctx)
	require.NoError(t, err)
	_ = tree.Stats()

	reopened, err := Open(ctx, newTestNest(t, store, WithNestMetrics(true)), d, WithMetrics(true))
	require.NoError(t, err)
	_, _, err = reopened.Lookup(ctx, 1000)
	require.NoError(t, err)

	for _, name := range []string{
		"porcupine/usage/usageCount",
		"porcupine/tree/splits",
		"porcupine/tree/height [last]",
		"porcupine/nest/loads",
		"porcupine/nest/blocks",
		"porcupine/nest/resident [last]",
	} {
		rows, err := view.RetrieveData(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, rows, name)
	}
}
