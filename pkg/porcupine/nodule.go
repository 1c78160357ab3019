package porcupine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/oneconcern/porcupine/pkg/address"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"go.uber.org/multierr"
)

// Kind of node
type Kind uint8

const (
	// KindQuill is a leaf, binding keys to values
	KindQuill Kind = iota + 1

	// KindSeam is an internal node, routing keys to child nodes
	KindSeam
)

func (k Kind) String() string {
	switch k {
	case KindQuill:
		return "quill"
	case KindSeam:
		return "seam"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type entry[K cmp.Ordered, T any] struct {
	key  K
	item T
}

// Nodule is a tree node: either a quill (leaf) or a seam (internal node).
//
// Entries are kept with strictly increasing keys. In a seam, the child at key K
// is responsible for all keys in (predecessor, K], and the last child catches
// all keys above.
//
// A nodule is dirty when mutated since it was last sealed. The address of a nodule is
// only known while it is clean.
type Nodule[K cmp.Ordered, V any] struct {
	kind      Kind
	format    *Format[K, V]
	inlets    []entry[K, *Inlet[K, V]]
	children  []entry[K, *Handle[K, V]]
	footprint int
	dirty     bool
	address   address.Address

	// addresses of blocks this node referred to when last sealed, which it no longer refers to
	retired []address.Address
}

// NewQuill creates an empty leaf
func NewQuill[K cmp.Ordered, V any](f *Format[K, V]) *Nodule[K, V] {
	return newNodule(f, KindQuill)
}

// NewSeam creates an empty internal node
func NewSeam[K cmp.Ordered, V any](f *Format[K, V]) *Nodule[K, V] {
	return newNodule(f, KindSeam)
}

func newNodule[K cmp.Ordered, V any](f *Format[K, V], kind Kind) *Nodule[K, V] {
	return &Nodule[K, V]{
		kind:      kind,
		format:    f,
		footprint: BaseFootprint,
		dirty:     true,
	}
}

// Kind of node
func (n *Nodule[K, V]) Kind() Kind {
	return n.kind
}

// Len is the number of entries
func (n *Nodule[K, V]) Len() int {
	if n.kind == KindSeam {
		return len(n.children)
	}
	return len(n.inlets)
}

// Footprint is the size of the serialized node
func (n *Nodule[K, V]) Footprint() int {
	return n.footprint
}

// Dirty tells if the node changed since it was last sealed
func (n *Nodule[K, V]) Dirty() bool {
	return n.dirty
}

// Address of the node, null while dirty
func (n *Nodule[K, V]) Address() address.Address {
	return n.address
}

// KeyAt returns the key of the i-th entry
func (n *Nodule[K, V]) KeyAt(i int) K {
	if n.kind == KindSeam {
		return n.children[i].key
	}
	return n.inlets[i].key
}

// Keys lists all keys in ascending order
func (n *Nodule[K, V]) Keys() []K {
	keys := make([]K, 0, n.Len())
	for i := 0; i < n.Len(); i++ {
		keys = append(keys, n.KeyAt(i))
	}
	return keys
}

// Mayor is the greatest key in the node
func (n *Nodule[K, V]) Mayor() (K, error) {
	if n.Len() == 0 {
		var zero K
		return zero, status.ErrIntegrity.Detail("mayor of an empty %v", n.kind)
	}
	return n.KeyAt(n.Len() - 1), nil
}

// Maiden is the sole key of a node with exactly one entry
func (n *Nodule[K, V]) Maiden() (K, error) {
	if n.Len() != 1 {
		var zero K
		return zero, status.ErrIntegrity.Detail("maiden of a %v with %d entries", n.kind, n.Len())
	}
	return n.KeyAt(0), nil
}

// mayor assumes a non-empty node
func (n *Nodule[K, V]) mayor() K {
	return n.KeyAt(n.Len() - 1)
}

// touch marks the node as mutated
func (n *Nodule[K, V]) touch() {
	if !n.address.IsNull() {
		n.retired = append(n.retired, n.address)
		n.address = address.Null
	}
	n.dirty = true
}

func (n *Nodule[K, V]) entryFootprint(i int) int {
	if n.kind == KindSeam {
		return seamEntryFootprint(n.format.keySize(n.children[i].key))
	}
	return n.inlets[i].item.Footprint()
}

func (n *Nodule[K, V]) computeFootprint() int {
	fp := BaseFootprint
	for i := 0; i < n.Len(); i++ {
		fp += n.entryFootprint(i)
	}
	return fp
}

// Split moves the higher-keyed entries into a new sibling, which is returned along
// with the footprint delta of the receiver.
//
// The receiver keeps the longest prefix whose footprint stays within extent*contention,
// with at least one entry on each side. A node with fewer than two entries cannot split.
func (n *Nodule[K, V]) Split(extent int, contention float64) (*Nodule[K, V], int, error) {
	if n.Len() < 2 {
		return nil, 0, status.ErrOversized.Detail("cannot split a %v with %d entries (footprint: %d)", n.kind, n.Len(), n.footprint)
	}

	limit := int(float64(extent) * contention)
	offset, kept := 1, BaseFootprint+n.entryFootprint(0)
	for offset < n.Len()-1 {
		fp := n.entryFootprint(offset)
		if kept+fp > limit {
			break
		}
		kept += fp
		offset++
	}

	before := n.footprint
	right := newNodule(n.format, n.kind)
	if n.kind == KindSeam {
		n.children, right.children = splitEntries(n.children, offset)
	} else {
		n.inlets, right.inlets = splitEntries(n.inlets, offset)
	}
	n.footprint = kept
	right.footprint = before - kept + BaseFootprint
	n.touch()

	return right, n.footprint - before, nil
}

// Merge folds all the entries of other into the receiver, leaving other empty.
// It returns the footprint delta of the receiver.
//
// Key collisions are reported as an integrity violation, leaving both nodes unchanged.
func (n *Nodule[K, V]) Merge(other *Nodule[K, V]) (int, error) {
	if n.kind != other.kind {
		return 0, status.ErrIntegrity.Detail("cannot merge a %v into a %v", other.kind, n.kind)
	}
	if other.Len() == 0 {
		return 0, nil
	}

	var err error
	if n.kind == KindSeam {
		var merged []entry[K, *Handle[K, V]]
		if merged, err = mergeEntries(n.children, other.children); err == nil {
			n.children, other.children = merged, nil
		}
	} else {
		var merged []entry[K, *Inlet[K, V]]
		if merged, err = mergeEntries(n.inlets, other.inlets); err == nil {
			n.inlets, other.inlets = merged, nil
		}
	}
	if err != nil {
		return 0, err
	}

	delta := other.footprint - BaseFootprint
	n.footprint += delta
	other.footprint = BaseFootprint
	n.touch()
	other.touch()

	return delta, nil
}

// Check the consistency of the node
func (n *Nodule[K, V]) Check() error {
	var errs error
	for i := 1; i < n.Len(); i++ {
		if cmp.Compare(n.KeyAt(i-1), n.KeyAt(i)) >= 0 {
			errs = multierr.Append(errs, status.ErrIntegrity.Detail("%v keys out of order at position %d: %v >= %v", n.kind, i, n.KeyAt(i-1), n.KeyAt(i)))
		}
	}

	switch n.kind {
	case KindQuill:
		for i, e := range n.inlets {
			if e.item == nil {
				errs = multierr.Append(errs, status.ErrIntegrity.Detail("missing inlet at key %v", e.key))
				continue
			}
			if cmp.Compare(e.item.Key(), e.key) != 0 {
				errs = multierr.Append(errs, status.ErrIntegrity.Detail("inlet at position %d holds key %v, expected %v", i, e.item.Key(), e.key))
			}
		}
	case KindSeam:
		errs = multierr.Append(errs, n.checkChildren())
	default:
		errs = multierr.Append(errs, status.ErrIntegrity.Detail("invalid node %v", n.kind))
	}

	if fp := n.computeFootprint(); fp != n.footprint {
		errs = multierr.Append(errs, status.ErrIntegrity.Detail("%v footprint is %d, expected %d", n.kind, n.footprint, fp))
	}

	return errs
}

// search locates a key: it returns its position, or the position where it would be inserted
func search[K cmp.Ordered, T any](entries []entry[K, T], k K) (int, bool) {
	return slices.BinarySearchFunc(entries, k, func(e entry[K, T], k K) int {
		return cmp.Compare(e.key, k)
	})
}

// responsible returns the position of the smallest key >= k, or of the greatest key when k is above all keys
func responsible[K cmp.Ordered, T any](entries []entry[K, T], k K) (int, bool) {
	if len(entries) == 0 {
		return -1, false
	}
	i, _ := search(entries, k)
	if i == len(entries) {
		i--
	}
	return i, true
}

func splitEntries[K cmp.Ordered, T any](entries []entry[K, T], offset int) ([]entry[K, T], []entry[K, T]) {
	right := slices.Clone(entries[offset:])
	clear(entries[offset:])

	return entries[:offset:offset], right
}

// mergeEntries builds the ordered union of two sets of entries, without altering them
func mergeEntries[K cmp.Ordered, T any](receiver, other []entry[K, T]) ([]entry[K, T], error) {
	merged := make([]entry[K, T], 0, len(receiver)+len(other))

	switch {
	case len(receiver) == 0:
		return append(merged, other...), nil

	case cmp.Less(receiver[len(receiver)-1].key, other[0].key):
		// import higher keys
		merged = append(merged, receiver...)
		return append(merged, other...), nil

	case cmp.Less(other[len(other)-1].key, receiver[0].key):
		// export lower keys
		merged = append(merged, other...)
		return append(merged, receiver...), nil
	}

	i, j := 0, 0
	for i < len(receiver) && j < len(other) {
		switch c := cmp.Compare(receiver[i].key, other[j].key); {
		case c < 0:
			merged = append(merged, receiver[i])
			i++
		case c > 0:
			merged = append(merged, other[j])
			j++
		default:
			return nil, status.ErrIntegrity.Detail("key %v collides while merging nodes", receiver[i].key)
		}
	}
	merged = append(merged, receiver[i:]...)

	return append(merged, other[j:]...), nil
}
