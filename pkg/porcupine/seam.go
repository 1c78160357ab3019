package porcupine

import (
	"cmp"
	"slices"

	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"go.uber.org/multierr"
)

func (n *Nodule[K, V]) seam() error {
	if n.kind != KindSeam {
		return status.ErrIntegrity.Detail("expected a seam, got a %v", n.kind)
	}
	return nil
}

// Attach a child under some key. It returns the footprint delta.
func (n *Nodule[K, V]) Attach(k K, h *Handle[K, V]) (int, error) {
	if err := n.seam(); err != nil {
		return 0, err
	}

	i, found := search(n.children, k)
	if found {
		return 0, status.ErrDuplicateKey.Detail("child key %v", k)
	}

	fp := seamEntryFootprint(n.format.keySize(k))
	n.children = slices.Insert(n.children, i, entry[K, *Handle[K, V]]{key: k, item: h})
	n.footprint += fp
	n.touch()

	return fp, nil
}

// Detach the child registered under some key. It returns the child and the footprint delta.
func (n *Nodule[K, V]) Detach(k K) (*Handle[K, V], int, error) {
	if err := n.seam(); err != nil {
		return nil, 0, err
	}

	i, found := search(n.children, k)
	if !found {
		return nil, 0, status.ErrNotFound.Detail("child key %v", k)
	}

	h := n.children[i].item
	fp := seamEntryFootprint(n.format.keySize(k))
	n.children = slices.Delete(n.children, i, i+1)
	n.footprint -= fp
	n.touch()

	return h, -fp, nil
}

// Search the child responsible for a key. It returns its position and handle.
func (n *Nodule[K, V]) Search(k K) (int, *Handle[K, V], error) {
	if err := n.seam(); err != nil {
		return -1, nil, err
	}

	i, ok := responsible(n.children, k)
	if !ok {
		return -1, nil, status.ErrNotFound.Detail("search %v in an empty seam", k)
	}
	return i, n.children[i].item, nil
}

// Child returns the handle at some position
func (n *Nodule[K, V]) Child(i int) *Handle[K, V] {
	return n.children[i].item
}

// Rekey replaces the key of the entry at some position, typically with the new mayor
// of the child. The new key must preserve the ordering. It returns the footprint delta.
func (n *Nodule[K, V]) Rekey(i int, k K) (int, error) {
	if err := n.seam(); err != nil {
		return 0, err
	}
	if i < 0 || i >= len(n.children) {
		return 0, status.ErrIntegrity.Detail("rekey position %d out of range [0, %d)", i, len(n.children))
	}

	old := n.children[i].key
	if cmp.Compare(old, k) == 0 {
		return 0, nil
	}
	if i > 0 && cmp.Compare(n.children[i-1].key, k) >= 0 ||
		i < len(n.children)-1 && cmp.Compare(k, n.children[i+1].key) >= 0 {
		return 0, status.ErrIntegrity.Detail("rekey %v to %v breaks ordering", old, k)
	}

	delta := seamEntryFootprint(n.format.keySize(k)) - seamEntryFootprint(n.format.keySize(old))
	n.children[i].key = k
	n.footprint += delta
	n.touch()

	return delta, nil
}

// checkChildren verifies that every loaded child is routed by its mayor
func (n *Nodule[K, V]) checkChildren() error {
	var errs error
	for i, e := range n.children {
		if e.item == nil {
			errs = multierr.Append(errs, status.ErrIntegrity.Detail("missing child at key %v", e.key))
			continue
		}
		child := e.item.Node()
		if child == nil {
			if e.item.Address().IsNull() {
				errs = multierr.Append(errs, status.ErrIntegrity.Detail("child %d at key %v has neither node nor address", i, e.key))
			}
			continue
		}
		mayor, err := child.Mayor()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if cmp.Compare(mayor, e.key) != 0 {
			errs = multierr.Append(errs, status.ErrIntegrity.Detail("child %d is routed by %v, but its mayor is %v", i, e.key, mayor))
		}
	}
	return errs
}
