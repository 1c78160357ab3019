package porcupine

import (
	"cmp"
	"encoding/binary"

	"github.com/oneconcern/porcupine/pkg/address"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
)

// addressing functions provide addresses of children and out-of-line values when serializing
type (
	childAddresser[K cmp.Ordered, V any] func(*Handle[K, V]) (address.Address, error)
	valueAddresser[K cmp.Ordered, V any] func(*Inlet[K, V]) (address.Address, error)
)

// Serialize the node. All children and out-of-line values must have an address.
func (n *Nodule[K, V]) Serialize() ([]byte, error) {
	return n.serialize(
		func(h *Handle[K, V]) (address.Address, error) {
			if a := h.Address(); !a.IsNull() {
				return a, nil
			}
			return address.Null, status.ErrIntegrity.Detail("cannot serialize a seam with an unsealed child")
		},
		func(in *Inlet[K, V]) (address.Address, error) {
			if a := in.Address(); !a.IsNull() {
				return a, nil
			}
			return address.Null, status.ErrIntegrity.Detail("cannot serialize a quill with an unsealed value at key %v", in.Key())
		},
	)
}

func (n *Nodule[K, V]) serialize(child childAddresser[K, V], value valueAddresser[K, V]) ([]byte, error) {
	buf := make([]byte, 0, n.footprint)
	buf = append(buf, blockVersion, byte(n.kind))
	buf = binary.BigEndian.AppendUint32(buf, uint32(n.Len()))

	for i := 0; i < n.Len(); i++ {
		kb, err := n.format.Keys.Encode(n.KeyAt(i))
		if err != nil {
			return nil, err
		}
		buf = appendField(buf, kb)

		switch n.kind {
		case KindSeam:
			a, err := child(n.children[i].item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, a[:]...)

		case KindQuill:
			in := n.inlets[i].item
			buf = append(buf, byte(in.Placement()))
			if in.Placement() == OutOfLine {
				a, err := value(in)
				if err != nil {
					return nil, err
				}
				buf = append(buf, a[:]...)
				continue
			}

			vb, err := n.format.Values.Encode(in.value)
			if err != nil {
				return nil, err
			}
			buf = appendField(buf, vb)
		}
	}

	if len(buf) != n.footprint {
		return nil, status.ErrIntegrity.Detail("%v serializes to %d bytes, but has a footprint of %d", n.kind, len(buf), n.footprint)
	}

	return buf, nil
}

// Deserialize a node.
//
// The node is rebuilt entry by entry: duplicate keys are reported as ErrDuplicateKey,
// misordered keys or malformed data as ErrIntegrity. The resulting node is clean, with no address.
func Deserialize[K cmp.Ordered, V any](f *Format[K, V], data []byte) (*Nodule[K, V], error) {
	r := &reader{data: data}

	version, kind := r.readByte(), Kind(r.readByte())
	count := int(r.readCount())
	if r.err != nil {
		return nil, r.err
	}
	if version != blockVersion {
		return nil, status.ErrIntegrity.Detail("unsupported block version %d", version)
	}
	if kind != KindQuill && kind != KindSeam {
		return nil, status.ErrIntegrity.Detail("unsupported node %v", kind)
	}

	n := newNodule(f, kind)
	for i := 0; i < count; i++ {
		k, err := f.Keys.Decode(r.readField())
		if r.err != nil {
			return nil, r.err
		}
		if err != nil {
			return nil, status.ErrIntegrity.Wrap(err)
		}
		if i > 0 && cmp.Less(k, n.mayor()) {
			return nil, status.ErrIntegrity.Detail("key %v is out of order at position %d", k, i)
		}

		if kind == KindSeam {
			a := r.readAddress()
			if r.err != nil {
				return nil, r.err
			}
			if _, err = n.Attach(k, Reference[K, V](a)); err != nil {
				return nil, err
			}
			continue
		}

		if err = n.restoreInlet(r, k); err != nil {
			return nil, err
		}
	}

	if r.remaining() > 0 {
		return nil, status.ErrIntegrity.Detail("%d trailing bytes after %d entries", r.remaining(), count)
	}
	if n.footprint != len(data) {
		return nil, status.ErrIntegrity.Detail("%v of %d bytes has a footprint of %d", kind, len(data), n.footprint)
	}

	n.dirty = false

	return n, nil
}

func (n *Nodule[K, V]) restoreInlet(r *reader, k K) error {
	placement := Placement(r.readByte())
	switch placement {
	case OutOfLine:
		a := r.readAddress()
		if r.err != nil {
			return r.err
		}
		_, err := n.Insert(newReference(n.format, k, a))
		return err

	case Inline:
		vb := r.readField()
		if r.err != nil {
			return r.err
		}
		v, err := n.format.Values.Decode(vb)
		if err != nil {
			return status.ErrIntegrity.Wrap(err)
		}
		in := &Inlet[K, V]{
			key:          k,
			value:        v,
			materialized: true,
			placement:    Inline,
			footprint:    inletFootprint(n.format.keySize(k), len(vb), Inline),
		}
		_, err = n.Insert(in)
		return err

	default:
		if r.err != nil {
			return r.err
		}
		return status.ErrIntegrity.Detail("invalid value placement %d at key %v", placement, k)
	}
}

// encodeValueBlock lays out an out-of-line value: [version u8][keylen uvarint][key][value].
//
// The key is part of the block, so equal values bound to different keys get different addresses.
func encodeValueBlock[K cmp.Ordered, V any](f *Format[K, V], k K, v V) ([]byte, error) {
	kb, err := f.Keys.Encode(k)
	if err != nil {
		return nil, err
	}
	vb, err := f.Values.Encode(v)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 1+fieldFootprint(len(kb))+len(vb))
	buf = append(buf, blockVersion)
	buf = appendField(buf, kb)

	return append(buf, vb...), nil
}

func decodeValueBlock[K cmp.Ordered, V any](f *Format[K, V], data []byte) (V, error) {
	var zero V
	r := &reader{data: data}
	version := r.readByte()
	_ = r.readField()
	if r.err != nil {
		return zero, r.err
	}
	if version != blockVersion {
		return zero, status.ErrIntegrity.Detail("unsupported value block version %d", version)
	}

	v, err := f.Values.Decode(r.rest())
	if err != nil {
		return zero, status.ErrIntegrity.Wrap(err)
	}
	return v, nil
}

func appendField(buf, field []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(field)))
	return append(buf, field...)
}

// reader decodes blocks. The first decoding error sticks.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail(what string) {
	if r.err == nil {
		r.err = status.ErrIntegrity.Detail("truncated block: cannot read %s at offset %d", what, r.pos)
	}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) next(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.fail(what)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) readByte() byte {
	b := r.next(1, "byte")
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) readCount() uint32 {
	b := r.next(4, "count")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) readField() []byte {
	if r.err != nil {
		return nil
	}
	size, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 || size > uint64(r.remaining()) {
		r.fail("field length")
		return nil
	}
	r.pos += n
	return r.next(int(size), "field")
}

func (r *reader) readAddress() address.Address {
	b := r.next(address.Size, "address")
	if b == nil {
		return address.Null
	}
	return address.MustNew(b)
}

func (r *reader) rest() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}
