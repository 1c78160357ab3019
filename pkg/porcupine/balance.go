package porcupine

import (
	"context"

	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/oneconcern/porcupine/pkg/metrics"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"go.uber.org/zap"
)

// threshold is the footprint below which a node merges with a sibling
func (p *Porcupine[K, V]) threshold() int {
	return int(float64(p.extent) * p.contention)
}

// preload loads the siblings which rebalancing may need, once a leaf on the path shrinks by some footprint.
//
// The prediction is conservative: each parent is assumed to lose an entry and have another one rekeyed.
// Whenever a merge turns out to need a sibling which is not loaded, the merge is skipped.
func (p *Porcupine[K, V]) preload(ctx context.Context, path []step[K, V], shrink int) error {
	// a root seam losing a child collapses onto the other one
	if root := path[0].handle.node; root.kind == KindSeam && root.Len() <= 2 {
		for e := 0; e < root.Len(); e++ {
			if _, err := p.nest.Resolve(ctx, root.Child(e)); err != nil {
				return err
			}
		}
	}

	for i := len(path) - 1; i > 0; i-- {
		node := path[i].handle.node
		if node.footprint-shrink >= p.threshold() {
			return nil
		}

		parent := path[i-1].handle.node
		j := path[i].index - 1
		if j < 0 {
			j = path[i].index + 1
		}
		if j < parent.Len() {
			if _, err := p.nest.Resolve(ctx, parent.Child(j)); err != nil {
				return err
			}
		}

		largest := 0
		for e := 0; e < parent.Len(); e++ {
			largest = max(largest, parent.entryFootprint(e))
		}
		shrink = 2 * largest
	}

	return nil
}

// rebalance walks up a path after its leaf was mutated: parents are rekeyed with the new
// mayor of their children, oversized nodes split, and undersized nodes merge with a loaded sibling
// when shrinking is true.
//
// Rebalancing performs no I/O.
func (p *Porcupine[K, V]) rebalance(path []step[K, V], shrinking bool) error {
	for i := len(path) - 1; i > 0; i-- {
		h, idx := path[i].handle, path[i].index
		node, parent := h.node, path[i-1].handle.node
		parent.touch()

		if node.Len() == 0 {
			if _, _, err := parent.Detach(parent.KeyAt(idx)); err != nil {
				return err
			}
			p.nest.discard(h)
			continue
		}

		if _, err := parent.Rekey(idx, node.mayor()); err != nil {
			return err
		}

		switch {
		case node.footprint > p.extent:
			if err := p.split(parent, idx); err != nil {
				return err
			}
		case shrinking && node.footprint < p.threshold():
			if err := p.merge(parent, idx); err != nil {
				return err
			}
		}
	}

	return p.settleRoot()
}

// splitAll splits a node until all the pieces fit in the extent, or cannot be split any further
func (p *Porcupine[K, V]) splitAll(node *Nodule[K, V]) ([]*Nodule[K, V], error) {
	var pieces []*Nodule[K, V]
	for current := node; current.footprint > p.extent; {
		right, _, err := current.Split(p.extent, p.contention)
		if err != nil {
			if errors.Is(err, status.ErrOversized) {
				p.l.Debug("oversized node left as is", zap.Stringer("kind", current.kind), zap.Int("footprint", current.footprint))
				break
			}
			return nil, err
		}

		p.observe(func(m *M) { metrics.Inc(m.Tree.Splits, kindTag(node.kind.String())) })
		pieces = append(pieces, right)
		current = right
	}

	return pieces, nil
}

// split the child at some position of a parent, attaching the new siblings to the parent
func (p *Porcupine[K, V]) split(parent *Nodule[K, V], idx int) error {
	node := parent.Child(idx).node
	pieces, err := p.splitAll(node)
	if err != nil || len(pieces) == 0 {
		return err
	}

	if _, err = parent.Rekey(idx, node.mayor()); err != nil {
		return err
	}
	for _, piece := range pieces {
		h := NewHandle(piece)
		p.nest.Track(h)
		if _, err = parent.Attach(piece.mayor(), h); err != nil {
			return err
		}
	}

	p.l.Debug("node split", zap.Stringer("kind", node.kind), zap.Int("pieces", len(pieces)+1))

	return nil
}

// merge the child at some position of a parent with a loaded sibling, the left one first.
//
// When the union does not fit in the extent, it is split again: the pair is rebalanced.
func (p *Porcupine[K, V]) merge(parent *Nodule[K, V], idx int) error {
	left, right := idx-1, idx
	if left < 0 || !parent.Child(left).Loaded() {
		left, right = idx, idx+1
	}
	if right >= parent.Len() || !parent.Child(left).Loaded() || !parent.Child(right).Loaded() {
		return nil
	}

	a, b := parent.Child(left), parent.Child(right)
	union := a.node.footprint + b.node.footprint - BaseFootprint
	if _, err := a.node.Merge(b.node); err != nil {
		return err
	}
	p.observe(func(m *M) { metrics.Inc(m.Tree.Merges, kindTag(a.node.kind.String())) })

	if union <= p.extent {
		if _, _, err := parent.Detach(parent.KeyAt(right)); err != nil {
			return err
		}
		p.nest.discard(b)

		_, err := parent.Rekey(left, a.node.mayor())
		p.l.Debug("nodes merged", zap.Stringer("kind", a.node.kind), zap.Int("footprint", a.node.footprint))

		return err
	}

	piece, _, err := a.node.Split(p.extent, p.contention)
	if err != nil {
		return err
	}
	p.nest.retire(b.node)
	b.attach(piece)

	// the left piece only keeps what fits under the threshold: the rest may still exceed the extent
	extra, err := p.splitAll(piece)
	if err != nil {
		return err
	}

	if _, err = parent.Rekey(left, a.node.mayor()); err != nil {
		return err
	}
	if _, err = parent.Rekey(right, piece.mayor()); err != nil {
		return err
	}
	for _, e := range extra {
		h := NewHandle(e)
		p.nest.Track(h)
		if _, err = parent.Attach(e.mayor(), h); err != nil {
			return err
		}
	}
	p.l.Debug("nodes rebalanced", zap.Stringer("kind", a.node.kind), zap.Int("left", a.node.footprint), zap.Int("right", piece.footprint), zap.Int("extra", len(extra)))

	return nil
}

// settleRoot grows the tree when the root is oversized, and shrinks it when the root has a single child
func (p *Porcupine[K, V]) settleRoot() error {
	root := p.root.node

	switch {
	case root.Len() == 0:
		p.nest.discard(p.root)
		p.plant(nil)
		p.root, p.height = nil, 0

	case root.footprint > p.extent:
		before := root.footprint
		pieces, err := p.splitAll(root)
		if err != nil || len(pieces) == 0 {
			return err
		}

		seam := NewSeam(p.format)
		if _, err = seam.Attach(root.mayor(), p.root); err != nil {
			return err
		}
		for _, piece := range pieces {
			h := NewHandle(piece)
			p.nest.Track(h)
			if _, err = seam.Attach(piece.mayor(), h); err != nil {
				return err
			}
		}
		p.plant(NewHandle(seam))
		p.height++
		p.l.Debug("tree grown", zap.Int("height", p.height))

		if seam.footprint >= before {
			// routing entries do not shrink: growing again would never fit the extent
			p.l.Debug("oversized root left as is", zap.Int("footprint", seam.footprint), zap.Int("extent", p.extent))
			return nil
		}

		return p.settleRoot()

	case root.kind == KindSeam && root.Len() == 1:
		if _, err := root.Maiden(); err != nil {
			return err
		}
		child := root.Child(0)
		if !child.Loaded() {
			p.l.Debug("single child root left as is", zap.String("child", child.Address().Short()))
			return nil
		}
		p.nest.discard(p.root)
		p.plant(child)
		p.height--
		p.l.Debug("tree shrunk", zap.Int("height", p.height))

		return p.settleRoot()
	}

	return nil
}
