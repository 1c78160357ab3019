// Package address defines content-derived identifiers for persisted blocks.
//
// An address is computed by a Sealer from the serialized bytes of a block.
// The default sealer uses the blake2b hash
// (https://github.com/minio/blake2b-simd), which is 3 to 5 times faster
// than usual hashes such as MD5 or SHA's.
package address

import (
	"encoding/hex"
	"fmt"
	"path"
)

const (
	// Size of an address in bytes (a blake2b-512 digest)
	Size = 64

	// SizeHex is the size of the hex representation of an address
	SizeHex = 2 * Size
)

// Address of a sealed block. The zero value is the null address.
type Address [Size]byte

// Null is the address of nothing: a block which has not been sealed yet.
var Null Address

// New creates a new address from raw bytes
func New(data []byte) (Address, error) {
	var a Address
	if len(data) != Size {
		return Null, &BadAddressSize{Data: data}
	}
	copy(a[:], data)
	return a, nil
}

// MustNew creates a new address from raw bytes but panics if there is an error
func MustNew(data []byte) Address {
	a, err := New(data)
	if err != nil {
		panic(err.Error())
	}
	return a
}

// FromString parses the hex representation of an address
func FromString(s string) (Address, error) {
	if len(s) != SizeHex {
		return Null, &BadAddressSize{Data: []byte(s)}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Null, err
	}
	return New(b)
}

// IsNull tells if this address is the null address
func (a Address) IsNull() bool {
	return a == Null
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short renders an abbreviated form, suitable for logs
func (a Address) Short() string {
	return hex.EncodeToString(a[:6])
}

// Path renders the address as a storage key under some prefix.
//
// Keys are sharded by their first byte, e.g. "nodes/3f/3fa9...".
func (a Address) Path(prefix string) string {
	s := a.String()
	return path.Join(prefix, s[:2], s)
}

// BadAddressSize is an error that's returned when the address to create has an invalid size.
type BadAddressSize struct {
	Data []byte
}

func (b *BadAddressSize) Error() string {
	return fmt.Sprintf("%x has invalid size of %d, expected %d", b.Data, len(b.Data), Size)
}
