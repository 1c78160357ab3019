// Package status declares the errors returned by porcupine trees.
//
// Callers test errors with errors.Is: call sites attach context with Wrap
// or Detail, which never alter the sentinels declared here.
package status

import "github.com/oneconcern/porcupine/pkg/errors"

var (
	// ErrNotFound is returned when a key, or the block for some address, does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a key which is already present
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrIntegrity reports an ordering or uniqueness violation, malformed persisted data,
	// or an operation invoked on an ineligible node
	ErrIntegrity = errors.New("integrity violation")

	// ErrOversized is returned when a node cannot be split any further
	ErrOversized = errors.New("oversized entry")

	// ErrEmpty is returned when querying an empty tree or node
	ErrEmpty = errors.New("empty")
)
