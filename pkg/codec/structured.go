package codec

import (
	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON serializes values as JSON documents
type JSON[T any] struct{}

func (JSON[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// Size of a JSON document. Unencodable values count for zero: Encode reports the error later on.
func (c JSON[T]) Size(v T) int {
	b, err := c.Encode(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// CBOR serializes values as compact binary (RFC 8949) documents
type CBOR[T any] struct{}

var cborEncoding = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func (CBOR[T]) Encode(v T) ([]byte, error) {
	return cborEncoding.Marshal(v)
}

func (CBOR[T]) Decode(b []byte) (T, error) {
	var v T
	err := cbor.Unmarshal(b, &v)
	return v, err
}

func (c CBOR[T]) Size(v T) int {
	b, err := c.Encode(v)
	if err != nil {
		return 0
	}
	return len(b)
}
