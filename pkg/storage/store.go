// Copyright © 2018 One Concern

package storage

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/oneconcern/porcupine/pkg/storage/status"
)

const (
	// OverWrite allows Put to replace an existing object
	OverWrite = false

	// NoOverWrite makes Put fail with status.ErrExists whenever the object already exists
	NoOverWrite = true
)

// Store implementations know how to write blocks to a K/V model.
//
// Typically this is something file system-like, or an embedded key-value store.
// Implementations of this interface are assumed to be fairly simple: Get on a missing
// key fails with status.ErrNotFound.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	Clear(context.Context) error
}

// ReadAll fetches a whole object in memory
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	rdr, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	b, err := ioutil.ReadAll(rdr)
	if err != nil {
		_ = rdr.Close()
		return nil, err
	}

	if err = rdr.Close(); err != nil {
		return nil, err
	}

	if len(b) > MaxObjectSizeInMemory {
		return nil, status.ErrObjectTooBig
	}
	return b, nil
}

// WriteAll stores a whole object from memory
func WriteAll(ctx context.Context, store Store, key string, data []byte, exclusive bool) error {
	return store.Put(ctx, key, bytes.NewReader(data), exclusive)
}

// MaxObjectSizeInMemory is the largest object ReadAll accepts
const MaxObjectSizeInMemory = 256 * 1024 * 1024
