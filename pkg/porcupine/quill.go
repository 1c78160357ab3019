package porcupine

import (
	"slices"

	"github.com/oneconcern/porcupine/pkg/porcupine/status"
)

func (n *Nodule[K, V]) quill() error {
	if n.kind != KindQuill {
		return status.ErrIntegrity.Detail("expected a quill, got a %v", n.kind)
	}
	return nil
}

// Insert an inlet in a leaf. It returns the footprint delta.
func (n *Nodule[K, V]) Insert(in *Inlet[K, V]) (int, error) {
	if err := n.quill(); err != nil {
		return 0, err
	}

	i, found := search(n.inlets, in.Key())
	if found {
		return 0, status.ErrDuplicateKey.Detail("key %v", in.Key())
	}

	n.inlets = slices.Insert(n.inlets, i, entry[K, *Inlet[K, V]]{key: in.Key(), item: in})
	n.footprint += in.Footprint()
	n.touch()

	return in.Footprint(), nil
}

// Delete a key from a leaf. It returns the removed inlet and the footprint delta.
func (n *Nodule[K, V]) Delete(k K) (*Inlet[K, V], int, error) {
	if err := n.quill(); err != nil {
		return nil, 0, err
	}

	i, found := search(n.inlets, k)
	if !found {
		return nil, 0, status.ErrNotFound.Detail("key %v", k)
	}

	in := n.inlets[i].item
	n.inlets = slices.Delete(n.inlets, i, i+1)
	n.footprint -= in.Footprint()
	n.touch()
	if !in.Address().IsNull() {
		n.retired = append(n.retired, in.Address())
	}

	return in, -in.Footprint(), nil
}

// Replace the value bound to an existing key. It returns the footprint delta.
func (n *Nodule[K, V]) Replace(k K, v V) (int, error) {
	in, err := n.Locate(k)
	if err != nil {
		return 0, err
	}

	delta, retired := in.SetValue(n.format, v)
	n.footprint += delta
	n.touch()
	if !retired.IsNull() {
		n.retired = append(n.retired, retired)
	}

	return delta, nil
}

// Exists tells if a leaf holds a key
func (n *Nodule[K, V]) Exists(k K) bool {
	if n.kind != KindQuill {
		return false
	}
	_, found := search(n.inlets, k)
	return found
}

// Locate the inlet for exactly this key
func (n *Nodule[K, V]) Locate(k K) (*Inlet[K, V], error) {
	if err := n.quill(); err != nil {
		return nil, err
	}

	i, found := search(n.inlets, k)
	if !found {
		return nil, status.ErrNotFound.Detail("key %v", k)
	}
	return n.inlets[i].item, nil
}

// Lookup the inlet responsible for a key: the one with the smallest key >= k,
// or the one with the greatest key when k is above all keys.
func (n *Nodule[K, V]) Lookup(k K) (*Inlet[K, V], error) {
	if err := n.quill(); err != nil {
		return nil, err
	}

	i, ok := responsible(n.inlets, k)
	if !ok {
		return nil, status.ErrNotFound.Detail("lookup %v in an empty quill", k)
	}
	return n.inlets[i].item, nil
}

// InletAt returns the i-th inlet of a leaf
func (n *Nodule[K, V]) InletAt(i int) *Inlet[K, V] {
	return n.inlets[i].item
}
