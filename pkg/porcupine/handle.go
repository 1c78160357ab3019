package porcupine

import (
	"cmp"

	"github.com/oneconcern/porcupine/pkg/address"
)

// Handle refers to a child node: it holds either the loaded node, or the address
// to load it from, never both.
type Handle[K cmp.Ordered, V any] struct {
	address address.Address
	node    *Nodule[K, V]
	pins    int
}

// NewHandle refers to a loaded node
func NewHandle[K cmp.Ordered, V any](node *Nodule[K, V]) *Handle[K, V] {
	return &Handle[K, V]{node: node}
}

// Reference refers to a node by address
func Reference[K cmp.Ordered, V any](addr address.Address) *Handle[K, V] {
	return &Handle[K, V]{address: addr}
}

// Loaded tells if the node is in memory
func (h *Handle[K, V]) Loaded() bool {
	return h.node != nil
}

// Node returns the loaded node, or nil
func (h *Handle[K, V]) Node() *Nodule[K, V] {
	return h.node
}

// Address of the node, null if the node is loaded and dirty
func (h *Handle[K, V]) Address() address.Address {
	if h.node != nil {
		return h.node.address
	}
	return h.address
}

// Pinned tells if the handle cannot be evicted
func (h *Handle[K, V]) Pinned() bool {
	return h.pins > 0
}

func (h *Handle[K, V]) attach(node *Nodule[K, V]) {
	h.node = node
	h.address = address.Null
}

func (h *Handle[K, V]) release() {
	h.address = h.node.address
	h.node = nil
}
