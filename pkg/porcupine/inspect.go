package porcupine

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oneconcern/porcupine/pkg/metrics"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"go.uber.org/multierr"
)

// Walk calls fn for every entry in ascending key order, until fn returns an error.
//
// Walk loads nodes as needed, and fn must not modify the tree.
func (p *Porcupine[K, V]) Walk(ctx context.Context, fn func(K, V) error) (err error) {
	defer p.finish(ctx, time.Now(), "walk", &err)

	if p.root == nil {
		return nil
	}

	return p.walk(ctx, p.root, fn)
}

func (p *Porcupine[K, V]) walk(ctx context.Context, h *Handle[K, V], fn func(K, V) error) error {
	node, err := p.nest.Resolve(ctx, h)
	if err != nil {
		return err
	}

	if node.kind == KindSeam {
		for i := 0; i < node.Len(); i++ {
			if err = p.walk(ctx, node.Child(i), fn); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 0; i < node.Len(); i++ {
		in := node.InletAt(i)
		v, err := in.Value(ctx, p.nest)
		if err != nil {
			return err
		}
		if err = fn(in.Key(), v); err != nil {
			return err
		}
	}
	return nil
}

// Check verifies the whole tree: every node, the routing keys, the depth of
// leaves and the number of entries. All violations found are reported.
func (p *Porcupine[K, V]) Check(ctx context.Context) (err error) {
	defer p.finish(ctx, time.Now(), "check", &err)

	if p.root == nil {
		if p.count != 0 || p.height != 0 {
			return status.ErrIntegrity.Detail("empty tree with count %d and height %d", p.count, p.height)
		}
		return nil
	}

	c := &checker[K, V]{p: p}
	if err = c.visit(ctx, p.root, 1); err != nil {
		// the tree cannot be loaded
		return err
	}

	if c.count != p.count {
		c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("tree holds %d entries, expected %d", c.count, p.count))
	}
	if c.depth != p.height {
		c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("leaves at depth %d, expected a height of %d", c.depth, p.height))
	}
	if p.root.node != nil && p.root.node.kind == KindSeam && p.root.node.Len() < 2 {
		c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("root seam with %d children", p.root.node.Len()))
	}

	return c.errs
}

type checker[K cmp.Ordered, V any] struct {
	p       *Porcupine[K, V]
	errs    error
	count   int
	depth   int
	last    K
	started bool
}

func (c *checker[K, V]) visit(ctx context.Context, h *Handle[K, V], depth int) error {
	node, err := c.p.nest.Resolve(ctx, h)
	if err != nil {
		return err
	}

	c.errs = multierr.Append(c.errs, node.Check())
	if node.Len() == 0 {
		c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("empty %v at depth %d", node.kind, depth))
	}
	if node.dirty && !node.address.IsNull() {
		c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("dirty %v with an address", node.kind))
	}

	if node.kind == KindSeam {
		for i := 0; i < node.Len(); i++ {
			child := node.Child(i)
			if err = c.visit(ctx, child, depth+1); err != nil {
				return err
			}
			if child.node.dirty && !node.dirty {
				c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("clean seam with a dirty child at key %v", node.KeyAt(i)))
			}
		}
		// children are all loaded now: routing keys are checked against their mayors
		c.errs = multierr.Append(c.errs, node.checkChildren())
		return nil
	}

	switch {
	case c.depth == 0:
		c.depth = depth
	case c.depth != depth:
		c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("leaf at depth %d, expected %d", depth, c.depth))
	}

	for i := 0; i < node.Len(); i++ {
		k := node.KeyAt(i)
		if c.started && cmp.Compare(c.last, k) >= 0 {
			c.errs = multierr.Append(c.errs, status.ErrIntegrity.Detail("key %v follows %v across leaves", k, c.last))
		}
		c.last, c.started = k, true
	}
	c.count += node.Len()

	return nil
}

// Dump writes a textual representation of the tree, loading all nodes
func (p *Porcupine[K, V]) Dump(ctx context.Context, w io.Writer) (err error) {
	defer p.finish(ctx, time.Now(), "dump", &err)

	if _, err = fmt.Fprintf(w, "porcupine strategy=%s height=%d count=%d extent=%d contention=%.2f\n",
		p.Strategy(), p.height, p.count, p.extent, p.contention); err != nil {
		return err
	}
	if p.root == nil {
		return nil
	}

	return p.dump(ctx, w, p.root, 1)
}

func (p *Porcupine[K, V]) dump(ctx context.Context, w io.Writer, h *Handle[K, V], depth int) error {
	node, err := p.nest.Resolve(ctx, h)
	if err != nil {
		return err
	}

	indent := strings.Repeat("  ", depth)
	state := "dirty"
	if !node.dirty {
		state = node.address.Short()
	}
	if _, err = fmt.Fprintf(w, "%s%v [%s] entries=%d footprint=%d\n", indent, node.kind, state, node.Len(), node.footprint); err != nil {
		return err
	}

	for i := 0; i < node.Len(); i++ {
		if node.kind == KindSeam {
			if _, err = fmt.Fprintf(w, "%s  <= %v\n", indent, node.KeyAt(i)); err != nil {
				return err
			}
			if err = p.dump(ctx, w, node.Child(i), depth+2); err != nil {
				return err
			}
			continue
		}

		in := node.InletAt(i)
		if _, err = fmt.Fprintf(w, "%s  %v (%v, %d bytes)\n", indent, in.Key(), in.Placement(), in.Footprint()); err != nil {
			return err
		}
	}

	return nil
}

// Stats reports on the structure of the tree and the activity of its nest
type Stats struct {
	Strategy   Strategy
	Height     int
	Count      int
	Extent     int
	Contention float64
	Nest       NestStats
}

// Stats of the tree
func (p *Porcupine[K, V]) Stats() Stats {
	p.observe(func(m *M) { metrics.Int64(m.Tree.Height, int64(p.height)) })
	return Stats{
		Strategy:   p.Strategy(),
		Height:     p.height,
		Count:      p.count,
		Extent:     p.extent,
		Contention: p.contention,
		Nest:       p.nest.Stats(),
	}
}
