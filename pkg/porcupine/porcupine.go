// Package porcupine implements a content-addressed, lazily loaded search tree.
//
// A tree (Porcupine) is made of leaves (quills) binding keys to values, and internal
// nodes (seams) routing keys to children. Nodes are kept within a target footprint
// (the extent): they split when they grow above it and merge with a sibling when they
// shrink below a fraction of it (the contention).
//
// Nodes are loaded from a block store on demand and unloaded when the nodes in memory
// exceed a budget, which is the job of the Nest. Sealing a tree persists all modified
// nodes as blocks addressed by their content, and yields a Descriptor from which the
// tree may be opened again.
//
// Trees are not safe for concurrent use.
package porcupine

import (
	"cmp"
	"context"
	"time"

	"github.com/oneconcern/porcupine/pkg/address"
	"github.com/oneconcern/porcupine/pkg/metrics"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"go.uber.org/zap"
)

// Strategy tells how a tree is represented
type Strategy string

const (
	// StrategyEmpty is a tree without any node
	StrategyEmpty Strategy = "empty"

	// StrategyValue is a tree held in a single leaf
	StrategyValue Strategy = "value"

	// StrategyTree is a tree with a seam at its root
	StrategyTree Strategy = "tree"
)

// step is a node visited while descending the tree, with its position in its parent
type step[K cmp.Ordered, V any] struct {
	handle *Handle[K, V]
	index  int
}

// Porcupine is a search tree
type Porcupine[K cmp.Ordered, V any] struct {
	nest       *Nest[K, V]
	format     *Format[K, V]
	root       *Handle[K, V]
	height     int
	count      int
	extent     int
	contention float64
	l          *zap.Logger

	metrics.Enable
	m *M
}

// New builds an empty tree
func New[K cmp.Ordered, V any](nest *Nest[K, V], opts ...Option) *Porcupine[K, V] {
	o := defaultOptions(opts)

	p := &Porcupine[K, V]{
		nest:       nest,
		format:     nest.Format(),
		extent:     o.extent,
		contention: o.contention,
		l:          o.l,
	}

	p.EnableMetrics(o.metrics)
	if p.MetricsEnabled() {
		p.m = metrics.Ensure[M]("porcupine")
	}

	return p
}

// Open a sealed tree from its descriptor.
//
// The extent and contention recorded in the descriptor take precedence over options.
func Open[K cmp.Ordered, V any](ctx context.Context, nest *Nest[K, V], d Descriptor, opts ...Option) (*Porcupine[K, V], error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if d.Extent > 0 {
		opts = append(opts, WithExtent(d.Extent))
	}
	if d.Contention > 0 {
		opts = append(opts, WithContention(d.Contention))
	}
	p := New(nest, opts...)
	if d.Strategy == StrategyEmpty {
		return p, nil
	}

	addr, err := d.Address()
	if err != nil {
		return nil, err
	}

	root := Reference[K, V](addr)
	node, err := nest.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	if expected := d.Strategy.rootKind(); node.kind != expected {
		nest.release(root)
		return nil, status.ErrIntegrity.Detail("a tree with strategy %q cannot have a %v root", d.Strategy, node.kind)
	}

	p.plant(root)
	p.height = d.Height
	p.count = d.Count

	p.l.Debug("tree opened",
		zap.String("root", addr.Short()),
		zap.String("strategy", string(d.Strategy)),
		zap.Int("height", d.Height),
		zap.Int("count", d.Count),
	)

	return p, nil
}

func (s Strategy) rootKind() Kind {
	if s == StrategyTree {
		return KindSeam
	}
	return KindQuill
}

// plant a new root
func (p *Porcupine[K, V]) plant(h *Handle[K, V]) {
	if p.root != nil {
		p.nest.Unpin(p.root)
	}
	p.root = h
	if h != nil {
		p.nest.Pin(h)
		p.nest.Track(h)
	}
}

// finish an operation: record usage and unload nodes beyond budget
func (p *Porcupine[K, V]) finish(ctx context.Context, start time.Time, method string, err *error) {
	if p.MetricsEnabled() {
		p.m.Usage.UsedAll(start, method)(*err)
	}
	if e := p.nest.Shrink(ctx); e != nil {
		p.l.Warn("cannot shrink node cache", zap.String("operation", method), zap.Error(e))
	}
}

// descend to the leaf responsible for a key, loading nodes on the way
func (p *Porcupine[K, V]) descend(ctx context.Context, k K) ([]step[K, V], error) {
	path := []step[K, V]{{handle: p.root, index: -1}}
	node, err := p.nest.Resolve(ctx, p.root)
	if err != nil {
		return nil, err
	}

	for node.kind == KindSeam {
		i, h, err := node.Search(k)
		if err != nil {
			return nil, err
		}
		if node, err = p.nest.Resolve(ctx, h); err != nil {
			return nil, err
		}
		path = append(path, step[K, V]{handle: h, index: i})
	}

	return path, nil
}

func leafOf[K cmp.Ordered, V any](path []step[K, V]) *Nodule[K, V] {
	return path[len(path)-1].handle.node
}

func (p *Porcupine[K, V]) errEmpty(k K) error {
	return status.ErrNotFound.Detail("key %v", k).Wrap(status.ErrEmpty)
}

// Add binds a value to a new key
func (p *Porcupine[K, V]) Add(ctx context.Context, k K, v V) (err error) {
	defer p.finish(ctx, time.Now(), "add", &err)

	if err = p.routable(k); err != nil {
		return err
	}

	in := NewInlet(p.format, k, v)
	if p.root == nil {
		leaf := NewQuill(p.format)
		if _, err = leaf.Insert(in); err != nil {
			return err
		}
		p.plant(NewHandle(leaf))
		p.height, p.count = 1, 1

		return nil
	}

	path, err := p.descend(ctx, k)
	if err != nil {
		return err
	}

	if _, err = leafOf(path).Insert(in); err != nil {
		return err
	}
	p.count++

	return p.rebalance(path, false)
}

// routable checks that seams holding a key can still split: two routing entries must fit in the extent
func (p *Porcupine[K, V]) routable(k K) error {
	if fp := BaseFootprint + 2*seamEntryFootprint(p.format.keySize(k)); fp > p.extent {
		return status.ErrOversized.Detail("key %v needs seams of %d bytes, over the extent of %d bytes", k, fp, p.extent)
	}
	return nil
}

// Remove a key
func (p *Porcupine[K, V]) Remove(ctx context.Context, k K) (err error) {
	defer p.finish(ctx, time.Now(), "remove", &err)

	if p.root == nil {
		return p.errEmpty(k)
	}

	path, err := p.descend(ctx, k)
	if err != nil {
		return err
	}

	leaf := leafOf(path)
	in, err := leaf.Locate(k)
	if err != nil {
		return err
	}

	// all loads happen before the first mutation
	if err = p.preload(ctx, path, in.Footprint()); err != nil {
		return err
	}

	if _, _, err = leaf.Delete(k); err != nil {
		return err
	}
	p.count--

	return p.rebalance(path, true)
}

// Update replaces the value bound to an existing key
func (p *Porcupine[K, V]) Update(ctx context.Context, k K, v V) (err error) {
	defer p.finish(ctx, time.Now(), "update", &err)

	if p.root == nil {
		return p.errEmpty(k)
	}

	path, err := p.descend(ctx, k)
	if err != nil {
		return err
	}

	leaf := leafOf(path)
	in, err := leaf.Locate(k)
	if err != nil {
		return err
	}

	size := p.format.Values.Size(v)
	shrink := in.Footprint() - inletFootprint(p.format.keySize(k), size, p.format.placement(size))
	if shrink > 0 {
		if err = p.preload(ctx, path, shrink); err != nil {
			return err
		}
	}

	if _, err = leaf.Replace(k, v); err != nil {
		return err
	}

	return p.rebalance(path, shrink > 0)
}

// Lookup the entry responsible for a key: the entry with the smallest key >= k,
// or the entry with the greatest key when k is above all keys.
func (p *Porcupine[K, V]) Lookup(ctx context.Context, k K) (key K, value V, err error) {
	defer p.finish(ctx, time.Now(), "lookup", &err)

	if p.root == nil {
		return key, value, p.errEmpty(k)
	}

	path, err := p.descend(ctx, k)
	if err != nil {
		return key, value, err
	}

	in, err := leafOf(path).Lookup(k)
	if err != nil {
		return key, value, err
	}

	value, err = in.Value(ctx, p.nest)

	return in.Key(), value, err
}

// Locate the value bound to exactly this key
func (p *Porcupine[K, V]) Locate(ctx context.Context, k K) (value V, err error) {
	defer p.finish(ctx, time.Now(), "locate", &err)

	if p.root == nil {
		return value, p.errEmpty(k)
	}

	path, err := p.descend(ctx, k)
	if err != nil {
		return value, err
	}

	in, err := leafOf(path).Locate(k)
	if err != nil {
		return value, err
	}

	return in.Value(ctx, p.nest)
}

// Exists tells if a key is present
func (p *Porcupine[K, V]) Exists(ctx context.Context, k K) (found bool, err error) {
	defer p.finish(ctx, time.Now(), "exists", &err)

	if p.root == nil {
		return false, nil
	}

	path, err := p.descend(ctx, k)
	if err != nil {
		return false, err
	}

	return leafOf(path).Exists(k), nil
}

// Seal persists all modified nodes, and returns the descriptor of the sealed tree
func (p *Porcupine[K, V]) Seal(ctx context.Context) (d Descriptor, err error) {
	defer p.finish(ctx, time.Now(), "seal", &err)

	if p.root == nil {
		p.nest.settle()
		return p.describe(address.Null), nil
	}

	addr, err := p.nest.seal(ctx, p.root)
	if err != nil {
		return d, err
	}
	p.nest.settle()

	p.l.Debug("tree sealed", zap.String("root", addr.Short()), zap.Int("height", p.height), zap.Int("count", p.count))

	return p.describe(addr), nil
}

func (p *Porcupine[K, V]) describe(root address.Address) Descriptor {
	d := Descriptor{
		Strategy:   p.Strategy(),
		Height:     p.height,
		Count:      p.count,
		Extent:     p.extent,
		Contention: p.contention,
	}
	if !root.IsNull() {
		d.Root = root.String()
	}
	return d
}

// Strategy tells how the tree is currently represented
func (p *Porcupine[K, V]) Strategy() Strategy {
	switch {
	case p.root == nil:
		return StrategyEmpty
	case p.height > 1:
		return StrategyTree
	default:
		return StrategyValue
	}
}

// Len is the number of keys in the tree
func (p *Porcupine[K, V]) Len() int {
	return p.count
}

// Height of the tree: 0 when empty, 1 with a single leaf
func (p *Porcupine[K, V]) Height() int {
	return p.height
}

// Nest returns the node cache of the tree
func (p *Porcupine[K, V]) Nest() *Nest[K, V] {
	return p.nest
}
