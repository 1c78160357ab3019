package porcupine

import (
	"cmp"

	"github.com/oneconcern/porcupine/pkg/codec"
)

// Format gathers the codecs and the value placement rule shared by all nodes of a tree
type Format[K cmp.Ordered, V any] struct {
	Keys   codec.Codec[K]
	Values codec.Codec[V]

	// InlineLimit is the largest encoded value stored inside leaf blocks.
	// Larger values are stored out-of-line, as blocks of their own.
	InlineLimit int
}

// NewFormat builds a format with the default inline limit
func NewFormat[K cmp.Ordered, V any](keys codec.Codec[K], values codec.Codec[V]) *Format[K, V] {
	return &Format[K, V]{
		Keys:        keys,
		Values:      values,
		InlineLimit: DefaultExtent / 8,
	}
}

func (f *Format[K, V]) placement(valueSize int) Placement {
	if valueSize > f.InlineLimit {
		return OutOfLine
	}
	return Inline
}

func (f *Format[K, V]) keySize(k K) int {
	return f.Keys.Size(k)
}
