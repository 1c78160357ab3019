// Copyright © 2018 One Concern

// Package storage provides interface to handle backend block storage objects.
//
// This package supports the following backends:
//   - local file system (or any afero file system)
//   - badger embedded key-value store
//   - pebble embedded key-value store
//
// Decorators add logging, tracing and metrics (Instrument) or retries on transient failures (WithRetry).
package storage
