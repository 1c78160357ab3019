// Package codec provides serialization for tree keys and values.
//
// A codec knows how to encode and decode a type, and how to estimate the
// encoded size of a value, which drives footprint accounting.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Codec serializes values of type T
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)

	// Size returns the length of the encoded form of a value
	Size(T) int
}

// String is the identity codec for strings
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
func (String) Size(s string) int               { return len(s) }

// Bytes is the identity codec for byte slices. Decoded slices are copies.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }

func (Bytes) Decode(b []byte) ([]byte, error) {
	c := make([]byte, len(b))
	copy(c, b)
	return c, nil
}

func (Bytes) Size(b []byte) int { return len(b) }

// Uint64 encodes unsigned integers as fixed-width big endian
type Uint64 struct{}

func (Uint64) Encode(u uint64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, u)
	return b, nil
}

func (Uint64) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid uint64 encoding: expected 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func (Uint64) Size(uint64) int { return 8 }

// Int64 encodes signed integers as fixed-width big endian
type Int64 struct{}

func (Int64) Encode(i int64) ([]byte, error) {
	return Uint64{}.Encode(uint64(i))
}

func (Int64) Decode(b []byte) (int64, error) {
	u, err := Uint64{}.Decode(b)
	return int64(u), err
}

func (Int64) Size(int64) int { return 8 }
