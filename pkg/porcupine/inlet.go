package porcupine

import (
	"cmp"
	"context"

	"github.com/oneconcern/porcupine/pkg/address"
)

// Placement tells where the value of an inlet is stored
type Placement uint8

const (
	// Inline values are embedded in the leaf block
	Inline Placement = iota

	// OutOfLine values are stored as blocks of their own, referenced by address
	OutOfLine
)

func (p Placement) String() string {
	if p == OutOfLine {
		return "out-of-line"
	}
	return "inline"
}

// ValueLoader materializes out-of-line values
type ValueLoader[V any] interface {
	LoadValue(context.Context, address.Address) (V, error)
}

// Inlet binds a key to a value in a leaf.
//
// An inlet read from storage with an out-of-line value only knows the address
// of that value, until the first call to Value.
type Inlet[K cmp.Ordered, V any] struct {
	key          K
	value        V
	materialized bool
	address      address.Address
	placement    Placement
	footprint    int
}

// NewInlet binds a materialized value to a key
func NewInlet[K cmp.Ordered, V any](f *Format[K, V], key K, value V) *Inlet[K, V] {
	i := &Inlet[K, V]{
		key: key,
	}
	i.assign(f, value)

	return i
}

// newReference builds an inlet which only holds the address of its value
func newReference[K cmp.Ordered, V any](f *Format[K, V], key K, addr address.Address) *Inlet[K, V] {
	return &Inlet[K, V]{
		key:       key,
		address:   addr,
		placement: OutOfLine,
		footprint: inletFootprint(f.keySize(key), 0, OutOfLine),
	}
}

func (i *Inlet[K, V]) assign(f *Format[K, V], value V) {
	size := f.Values.Size(value)
	i.value = value
	i.materialized = true
	i.address = address.Null
	i.placement = f.placement(size)
	i.footprint = inletFootprint(f.keySize(i.key), size, i.placement)
}

// Key of the inlet
func (i *Inlet[K, V]) Key() K {
	return i.key
}

// Footprint of the inlet in a leaf block
func (i *Inlet[K, V]) Footprint() int {
	return i.footprint
}

// Placement of the value
func (i *Inlet[K, V]) Placement() Placement {
	return i.placement
}

// Address of an out-of-line value, null until sealed
func (i *Inlet[K, V]) Address() address.Address {
	return i.address
}

// Materialized tells if the value is held in memory
func (i *Inlet[K, V]) Materialized() bool {
	return i.materialized
}

// Value returns the value, loading it on first access when stored out-of-line
func (i *Inlet[K, V]) Value(ctx context.Context, loader ValueLoader[V]) (V, error) {
	if i.materialized {
		return i.value, nil
	}

	v, err := loader.LoadValue(ctx, i.address)
	if err != nil {
		var zero V
		return zero, err
	}
	i.value = v
	i.materialized = true

	return v, nil
}

// SetValue replaces the value. It returns the footprint delta and the address
// of the out-of-line value which is no longer referenced, if any.
func (i *Inlet[K, V]) SetValue(f *Format[K, V], value V) (int, address.Address) {
	before, retired := i.footprint, i.address
	i.assign(f, value)

	return i.footprint - before, retired
}
