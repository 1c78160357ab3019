package porcupine

import (
	"bytes"
	"cmp"
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/porcupine/pkg/address"
	"github.com/oneconcern/porcupine/pkg/codec"
	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/oneconcern/porcupine/pkg/metrics"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"github.com/oneconcern/porcupine/pkg/storage"
	storagestatus "github.com/oneconcern/porcupine/pkg/storage/status"
	"go.uber.org/zap"
)

const (
	nodePrefix  = "nodes"
	valuePrefix = "values"

	// the recency list is bounded by the budget, not by a number of entries
	maxTrackedHandles = 1 << 30
)

// NestStats reports on the activity of a node cache
type NestStats struct {
	Loads      int
	Hits       int
	Evictions  int
	ValueLoads int
	Blocks     int
	Skipped    int
	Loaded     int
	Resident   int
	Budget     int
	Obsolete   int
}

// Nest loads, caches and unloads the nodes of a tree.
//
// Loaded nodes are tracked in least-recently-used order, and unloaded by Shrink
// whenever their total footprint exceeds the budget. Dirty nodes are sealed and
// persisted before being unloaded. A nest serves a single tree.
type Nest[K cmp.Ordered, V any] struct {
	store       storage.Store
	format      *Format[K, V]
	sealer      address.Sealer
	budget      int
	concurrency int
	verify      bool
	l           *zap.Logger

	// loaded handles, least recently used first
	recency *lru.Cache

	// clean loaded nodes by address. Entries for nodes mutated since are dropped lazily.
	nodes map[address.Address]*Nodule[K, V]

	// out-of-line values by address
	values *lru.Cache

	// retired addresses become obsolete when the tree is sealed, unless written again
	retired  []address.Address
	revived  map[address.Address]struct{}
	obsolete map[address.Address]struct{}

	stats NestStats

	metrics.Enable
	m *M
}

// NewNest builds a node cache over a block store
func NewNest[K cmp.Ordered, V any](store storage.Store, keys codec.Codec[K], values codec.Codec[V], opts ...NestOption) (*Nest[K, V], error) {
	o := defaultNestOptions(opts)

	recency, err := lru.New(maxTrackedHandles)
	if err != nil {
		return nil, err
	}
	valueCache, err := lru.New(o.valueCacheSize)
	if err != nil {
		return nil, err
	}

	format := NewFormat(keys, values)
	format.InlineLimit = o.inlineLimit

	n := &Nest[K, V]{
		store:       store,
		format:      format,
		sealer:      o.sealer,
		budget:      o.budget,
		concurrency: o.concurrency,
		verify:      o.verify,
		l:           o.l.With(zap.String("store", store.String())),
		recency:     recency,
		nodes:       make(map[address.Address]*Nodule[K, V]),
		values:      valueCache,
		revived:     make(map[address.Address]struct{}),
		obsolete:    make(map[address.Address]struct{}),
	}
	n.stats.Budget = o.budget

	n.EnableMetrics(o.metrics)
	if n.MetricsEnabled() {
		n.m = metrics.Ensure[M]("porcupine")
	}

	return n, nil
}

// Format of the nodes managed by this nest
func (n *Nest[K, V]) Format() *Format[K, V] {
	return n.format
}

// Load a node by address.
//
// As long as it stays clean and loaded, the same instance is returned for the same address.
func (n *Nest[K, V]) Load(ctx context.Context, addr address.Address) (*Nodule[K, V], error) {
	if node, ok := n.nodes[addr]; ok {
		if !node.dirty && node.address == addr {
			n.stats.Hits++
			n.observe(func(m *M) { m.Nest.Hit(node.kind.String()) })
			return node, nil
		}
		delete(n.nodes, addr)
	}

	data, err := n.fetch(ctx, addr, nodePrefix)
	if err != nil {
		return nil, err
	}

	node, err := Deserialize(n.format, data)
	if err != nil {
		n.l.Warn("invalid node block", zap.String("address", addr.String()), zap.Error(err))
		return nil, err
	}
	node.address = addr
	n.nodes[addr] = node

	n.stats.Loads++
	n.observe(func(m *M) { m.Nest.Load(node.kind.String()) })
	n.l.Debug("node loaded",
		zap.Stringer("kind", node.kind),
		zap.String("address", addr.Short()),
		zap.Int("entries", node.Len()),
		zap.Int("footprint", node.footprint),
	)

	return node, nil
}

// fetch a block and optionally verify it matches its address
func (n *Nest[K, V]) fetch(ctx context.Context, addr address.Address, prefix string) ([]byte, error) {
	if addr.IsNull() {
		return nil, status.ErrIntegrity.Detail("cannot load a %s block from a null address", prefix)
	}

	data, err := storage.ReadAll(ctx, n.store, addr.Path(prefix))
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotFound) {
			return nil, status.ErrNotFound.Detail("%s block %s", prefix, addr.Short()).Wrap(err)
		}
		return nil, err
	}

	if n.verify {
		sealed, err := n.sealer.Seal(data)
		if err != nil {
			return nil, err
		}
		if sealed != addr {
			return nil, status.ErrIntegrity.Detail("%s block %s does not match its address (got %s)", prefix, addr.Short(), sealed.Short())
		}
	}

	return data, nil
}

// Resolve returns the node behind a handle, loading it when needed.
// The handle is marked as recently used.
func (n *Nest[K, V]) Resolve(ctx context.Context, h *Handle[K, V]) (*Nodule[K, V], error) {
	if h.node != nil {
		n.Track(h)
		return h.node, nil
	}

	node, err := n.Load(ctx, h.address)
	if err != nil {
		return nil, err
	}
	h.attach(node)
	n.Track(h)

	return node, nil
}

// Track a handle to a loaded node as recently used
func (n *Nest[K, V]) Track(h *Handle[K, V]) {
	if _, found := n.recency.Get(h); !found {
		n.recency.Add(h, struct{}{})
	}
}

// Pin a handle: pinned handles and their ancestors are never unloaded
func (n *Nest[K, V]) Pin(h *Handle[K, V]) {
	h.pins++
}

// Unpin a handle
func (n *Nest[K, V]) Unpin(h *Handle[K, V]) {
	if h.pins > 0 {
		h.pins--
	}
}

// Unload a node and all its loaded descendants, sealing them first when dirty.
// The handle keeps only the address of the node.
func (n *Nest[K, V]) Unload(ctx context.Context, h *Handle[K, V]) error {
	if h.node == nil {
		return nil
	}
	if pinnedWithin(h) {
		return status.ErrIntegrity.Detail("cannot unload a pinned %v", h.node.kind)
	}

	if h.node.dirty {
		if _, err := n.seal(ctx, h); err != nil {
			return err
		}
	}

	n.release(h)

	return nil
}

func (n *Nest[K, V]) release(h *Handle[K, V]) {
	node := h.node
	if node == nil {
		return
	}
	for _, e := range node.children {
		n.release(e.item)
	}

	if cached, ok := n.nodes[node.address]; ok && cached == node {
		delete(n.nodes, node.address)
	}
	n.recency.Remove(h)
	h.release()

	n.stats.Evictions++
	n.observe(func(m *M) { m.Nest.Evict(node.kind.String()) })
	n.l.Debug("node unloaded", zap.Stringer("kind", node.kind), zap.String("address", node.address.Short()))
}

func pinnedWithin[K cmp.Ordered, V any](h *Handle[K, V]) bool {
	if h.pins > 0 {
		return true
	}
	if h.node == nil {
		return false
	}
	for _, e := range h.node.children {
		if pinnedWithin(e.item) {
			return true
		}
	}
	return false
}

func loadedFootprint[K cmp.Ordered, V any](h *Handle[K, V]) int {
	if h.node == nil {
		return 0
	}
	fp := h.node.footprint
	for _, e := range h.node.children {
		fp += loadedFootprint(e.item)
	}
	return fp
}

// Resident is the footprint of all loaded nodes
func (n *Nest[K, V]) Resident() int {
	resident := 0
	for _, key := range n.recency.Keys() {
		if node := key.(*Handle[K, V]).node; node != nil {
			resident += node.footprint
		}
	}
	return resident
}

// Shrink unloads least recently used nodes until the resident footprint fits the budget.
func (n *Nest[K, V]) Shrink(ctx context.Context) error {
	resident := n.Resident()
	defer func() {
		n.stats.Resident = resident
		n.observe(func(m *M) { m.Nest.Size(resident) })
	}()

	if resident <= n.budget {
		return nil
	}

	n.prune()
	for _, key := range n.recency.Keys() {
		if resident <= n.budget {
			break
		}

		h := key.(*Handle[K, V])
		if h.node == nil {
			n.recency.Remove(h)
			continue
		}
		if pinnedWithin(h) {
			continue
		}

		freed := loadedFootprint(h)
		if err := n.Unload(ctx, h); err != nil {
			return err
		}
		resident -= freed
	}

	return nil
}

// prune cache entries for nodes which changed since they were loaded
func (n *Nest[K, V]) prune() {
	for addr, node := range n.nodes {
		if node.dirty || node.address != addr {
			delete(n.nodes, addr)
		}
	}
}

// LoadValue materializes an out-of-line value
func (n *Nest[K, V]) LoadValue(ctx context.Context, addr address.Address) (V, error) {
	if v, ok := n.values.Get(addr); ok {
		return v.(V), nil
	}

	var zero V
	data, err := n.fetch(ctx, addr, valuePrefix)
	if err != nil {
		return zero, err
	}

	v, err := decodeValueBlock(n.format, data)
	if err != nil {
		return zero, err
	}
	n.values.Add(addr, v)
	n.stats.ValueLoads++

	return v, nil
}

// discard a handle which no longer belongs to the tree
func (n *Nest[K, V]) discard(h *Handle[K, V]) {
	n.recency.Remove(h)
	if h.node == nil {
		if !h.address.IsNull() {
			n.retired = append(n.retired, h.address)
		}
		return
	}
	n.retire(h.node)
}

// retire the blocks a node refers to no more
func (n *Nest[K, V]) retire(node *Nodule[K, V]) {
	n.retired = append(n.retired, node.retired...)
	node.retired = nil
	if !node.address.IsNull() {
		n.retired = append(n.retired, node.address)
		delete(n.nodes, node.address)
	}
}

func (n *Nest[K, V]) revive(addr address.Address) {
	delete(n.obsolete, addr)
	n.revived[addr] = struct{}{}
}

// settle declares retired blocks obsolete, once a new version of the tree is sealed
func (n *Nest[K, V]) settle() {
	for _, addr := range n.retired {
		if _, ok := n.revived[addr]; !ok {
			n.obsolete[addr] = struct{}{}
		}
	}
	n.retired = nil
	n.revived = make(map[address.Address]struct{})
}

// Obsolete lists the addresses of blocks which are not referenced by the last sealed
// version of the tree, but were referenced by a former version.
func (n *Nest[K, V]) Obsolete() []address.Address {
	addrs := make([]address.Address, 0, len(n.obsolete))
	for addr := range n.obsolete {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// Collect deletes obsolete blocks from the store. It returns the number of blocks deleted.
func (n *Nest[K, V]) Collect(ctx context.Context) (int, error) {
	collected := 0
	for _, addr := range n.Obsolete() {
		for _, prefix := range []string{nodePrefix, valuePrefix} {
			key := addr.Path(prefix)
			has, err := n.store.Has(ctx, key)
			if err != nil {
				return collected, err
			}
			if !has {
				continue
			}
			if err = n.store.Delete(ctx, key); err != nil {
				return collected, err
			}
			collected++
		}
		delete(n.obsolete, addr)
	}
	n.l.Debug("obsolete blocks collected", zap.Int("blocks", collected))

	return collected, nil
}

// Stats reports on the activity of the nest
func (n *Nest[K, V]) Stats() NestStats {
	s := n.stats
	s.Loaded = n.recency.Len()
	s.Resident = n.Resident()
	s.Obsolete = len(n.obsolete)
	return s
}
