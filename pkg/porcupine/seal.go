package porcupine

import (
	"cmp"
	"context"

	"github.com/oneconcern/porcupine/pkg/address"
	"github.com/oneconcern/porcupine/pkg/metrics"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"github.com/oneconcern/porcupine/pkg/storage"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type block struct {
	key  string
	kind string
	data []byte
}

// sealing collects the addresses and blocks computed for a subtree, before anything is persisted
type sealing[K cmp.Ordered, V any] struct {
	nodes  map[*Nodule[K, V]]address.Address
	values map[*Inlet[K, V]]address.Address
	blocks []block
}

// seal serializes, addresses and persists all dirty nodes under a handle.
//
// Sealing proceeds in three phases: addresses are computed bottom-up without altering any node,
// then blocks are persisted, and only then are nodes marked clean. A failure leaves all nodes dirty.
func (n *Nest[K, V]) seal(ctx context.Context, h *Handle[K, V]) (address.Address, error) {
	if h.node == nil || !h.node.dirty {
		return h.Address(), nil
	}

	s := &sealing[K, V]{
		nodes:  make(map[*Nodule[K, V]]address.Address),
		values: make(map[*Inlet[K, V]]address.Address),
	}
	if err := n.compute(s, h.node); err != nil {
		return address.Null, err
	}

	if err := n.persist(ctx, s.blocks); err != nil {
		n.l.Warn("sealing failed", zap.Int("blocks", len(s.blocks)), zap.Error(err))
		return address.Null, err
	}

	n.commit(s)
	n.l.Debug("sealed",
		zap.String("address", h.node.address.Short()),
		zap.Int("nodes", len(s.nodes)),
		zap.Int("values", len(s.values)),
	)

	return h.node.address, nil
}

func (n *Nest[K, V]) compute(s *sealing[K, V], node *Nodule[K, V]) error {
	for _, e := range node.children {
		if child := e.item.node; child != nil && child.dirty {
			if err := n.compute(s, child); err != nil {
				return err
			}
		}
	}

	for _, e := range node.inlets {
		in := e.item
		if in.placement != OutOfLine || !in.address.IsNull() {
			continue
		}
		if !in.materialized {
			return status.ErrIntegrity.Detail("out-of-line value at key %v has neither value nor address", in.key)
		}
		data, err := encodeValueBlock(n.format, in.key, in.value)
		if err != nil {
			return err
		}
		addr, err := n.sealer.Seal(data)
		if err != nil {
			return err
		}
		s.values[in] = addr
		s.blocks = append(s.blocks, block{key: addr.Path(valuePrefix), kind: valuePrefix, data: data})
	}

	data, err := node.serialize(
		func(h *Handle[K, V]) (address.Address, error) {
			if child := h.node; child != nil && child.dirty {
				if addr, ok := s.nodes[child]; ok {
					return addr, nil
				}
			} else if addr := h.Address(); !addr.IsNull() {
				return addr, nil
			}
			return address.Null, status.ErrIntegrity.Detail("child of a seam has no address")
		},
		func(in *Inlet[K, V]) (address.Address, error) {
			if addr, ok := s.values[in]; ok {
				return addr, nil
			}
			if !in.address.IsNull() {
				return in.address, nil
			}
			return address.Null, status.ErrIntegrity.Detail("value at key %v has no address", in.key)
		},
	)
	if err != nil {
		return err
	}

	addr, err := n.sealer.Seal(data)
	if err != nil {
		return err
	}
	s.nodes[node] = addr
	s.blocks = append(s.blocks, block{key: addr.Path(nodePrefix), kind: node.kind.String(), data: data})

	return nil
}

// persist blocks in parallel. Blocks already in store are skipped.
func (n *Nest[K, V]) persist(ctx context.Context, blocks []block) error {
	var written, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, b := range blocks {
		b := b
		g.Go(func() error {
			has, err := n.store.Has(gctx, b.key)
			if err != nil {
				return err
			}
			if has {
				skipped.Inc()
				return nil
			}

			if err = storage.WriteAll(gctx, n.store, b.key, b.data, storage.OverWrite); err != nil {
				return err
			}
			written.Inc()

			n.observe(func(m *M) {
				metrics.Inc(m.Nest.Blocks, kindTag(b.kind))
				metrics.Int64(m.Nest.BlockBytes, int64(len(b.data)), kindTag(b.kind))
			})
			return nil
		})
	}
	err := g.Wait()

	n.stats.Blocks += int(written.Load())
	n.stats.Skipped += int(skipped.Load())

	return err
}

// commit assigns addresses, once all blocks are safely persisted
func (n *Nest[K, V]) commit(s *sealing[K, V]) {
	for in, addr := range s.values {
		in.address = addr
		n.revive(addr)
	}

	for node, addr := range s.nodes {
		n.retired = append(n.retired, node.retired...)
		node.retired = nil
		node.address = addr
		node.dirty = false
		n.nodes[addr] = node
		n.revive(addr)
	}
}
