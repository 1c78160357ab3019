package porcupine

import (
	"encoding/binary"

	"github.com/oneconcern/porcupine/pkg/address"
)

// Footprints are exact sizes in bytes of serialized entities.
//
// A node block is laid out as:
//
//	[version u8][kind u8][count u32 BE] entries...
//
// where entries come in ascending key order:
//
//	quill: [keylen uvarint][key][placement u8]([vlen uvarint][value] | [address])
//	seam:  [keylen uvarint][key][child address]
const (
	// BaseFootprint is the footprint of an empty node
	BaseFootprint = 1 + 1 + 4

	// layout version of node and value blocks
	blockVersion = 1
)

// uvarintLen is the length of the uvarint encoding of n
func uvarintLen(n int) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], uint64(n))
}

// fieldFootprint is the footprint of a length-prefixed field of size bytes
func fieldFootprint(size int) int {
	return uvarintLen(size) + size
}

// seamEntryFootprint is the footprint of a routing entry with a key of keySize bytes
func seamEntryFootprint(keySize int) int {
	return fieldFootprint(keySize) + address.Size
}

// inletFootprint is the footprint of a leaf entry
func inletFootprint(keySize, valueSize int, placement Placement) int {
	fp := fieldFootprint(keySize) + 1
	if placement == OutOfLine {
		return fp + address.Size
	}
	return fp + fieldFootprint(valueSize)
}
