package address

import (
	"hash"

	blake2b "github.com/minio/blake2b-simd"
	keyedblake "golang.org/x/crypto/blake2b"
)

// Sealer computes the address of some serialized content.
//
// Sealing must be deterministic: the same bytes always yield the same address.
type Sealer interface {
	Seal([]byte) (Address, error)
}

// SealerFunc adapts a function to the Sealer interface
type SealerFunc func([]byte) (Address, error)

// Seal the content
func (f SealerFunc) Seal(data []byte) (Address, error) {
	return f(data)
}

// personalization used by the default sealer
var person = []byte("porcupine")

// Blake returns the default sealer, based on a personalized blake2b-512 hash
func Blake() Sealer {
	return SealerFunc(func(data []byte) (Address, error) {
		hasher, err := blake2b.New(&blake2b.Config{
			Size:   Size,
			Person: person,
		})
		if err != nil {
			// New only fails when configuration is wrong
			return Null, err
		}
		if _, err = hasher.Write(data); err != nil {
			return Null, err
		}
		return New(hasher.Sum(nil))
	})
}

// Keyed returns a sealer which mixes a secret into every address (blake2b MAC mode).
//
// Two stores sealed with different secrets never share addresses.
func Keyed(secret []byte) (Sealer, error) {
	// validate the key size once
	if _, err := keyedblake.New512(secret); err != nil {
		return nil, err
	}

	return SealerFunc(func(data []byte) (Address, error) {
		var (
			hasher hash.Hash
			err    error
		)
		hasher, err = keyedblake.New512(secret)
		if err != nil {
			return Null, err
		}
		if _, err = hasher.Write(data); err != nil {
			return Null, err
		}
		return New(hasher.Sum(nil))
	}), nil
}
