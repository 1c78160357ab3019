// Copyright © 2018 One Concern

// Package localfs stores blocks as files of an afero file system.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oneconcern/porcupine/pkg/storage"
	"github.com/oneconcern/porcupine/pkg/storage/status"
	"github.com/spf13/afero"
)

// stagingDir holds blocks being written by a staged put
const stagingDir = ".staging"

// Option configures a local block store
type Option func(*localFS)

// WithStaging makes puts atomic: a block is written to a staging area then renamed into place,
// so that a crash never leaves a truncated block under its key.
func WithStaging(enabled bool) Option {
	return func(l *localFS) {
		l.staging = enabled
	}
}

// WithSync makes every put wait for the block to reach stable storage
func WithSync(enabled bool) Option {
	return func(l *localFS) {
		l.sync = enabled
	}
}

// New block store on a file system.
//
// A nil fs defaults to the ".porcupine/blocks" directory of the OS file system.
func New(fs afero.Fs, opts ...Option) storage.Store {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".porcupine", "blocks"))
	}
	l := &localFS{fs: fs}
	for _, apply := range opts {
		apply(l)
	}
	return l
}

type localFS struct {
	fs      afero.Fs
	staging bool
	sync    bool
}

// validKey checks that a key designates a file under the root of the store
func validKey(key string) error {
	clean := path.Clean(strings.TrimLeft(filepath.ToSlash(key), "/"))
	first, _, _ := strings.Cut(clean, "/")
	switch {
	case key == "", clean == ".", first == "..":
		return status.ErrInvalidResource.Wrap(fmt.Errorf("key %q", key))
	case first == stagingDir:
		return status.ErrInvalidResource.Wrap(fmt.Errorf("key %q conflicts with the staging area", key))
	}
	return nil
}

func (l *localFS) Has(_ context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(key)
	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil:
		return false, status.ErrStorageAPI.Wrap(err)
	default:
		return !fi.IsDir(), nil
	}
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotFound.Wrap(fmt.Errorf("key %q", key))
	}
	return l.fs.Open(key)
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := l.fs.MkdirAll(filepath.Dir(key), 0o700); err != nil {
		return status.ErrStorageAPI.Wrap(fmt.Errorf("ensuring directories for %q: %w", key, err))
	}
	if !l.staging {
		return l.write(key, source, exclusive)
	}

	if exclusive {
		has, err := l.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists.Wrap(fmt.Errorf("key %q", key))
		}
	}
	if err := l.fs.MkdirAll(stagingDir, 0o700); err != nil {
		return status.ErrStorageAPI.Wrap(fmt.Errorf("ensuring staging area: %w", err))
	}
	staged, err := afero.TempFile(l.fs, stagingDir, "block-")
	if err != nil {
		return status.ErrStorageAPI.Wrap(fmt.Errorf("staging %q: %w", key, err))
	}
	name := staged.Name()
	if err = l.copy(staged, source); err != nil {
		_ = l.fs.Remove(name)
		return fmt.Errorf("write record for %q: %w", key, err)
	}
	if err = l.fs.Rename(name, key); err != nil {
		_ = l.fs.Remove(name)
		return status.ErrStorageAPI.Wrap(fmt.Errorf("renaming staged %q: %w", key, err))
	}
	return nil
}

func (l *localFS) write(key string, source io.Reader, exclusive bool) error {
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if exclusive {
		flag |= os.O_EXCL
	}
	target, err := l.fs.OpenFile(key, flag, 0o600)
	if err != nil {
		if exclusive && os.IsExist(err) {
			return status.ErrExists.Wrap(fmt.Errorf("key %q", key))
		}
		return status.ErrStorageAPI.Wrap(fmt.Errorf("create record for %q: %w", key, err))
	}
	if err = l.copy(target, source); err != nil {
		return fmt.Errorf("write record for %q: %w", key, err)
	}
	return nil
}

// copy writes a source to a file, then closes it
func (l *localFS) copy(target afero.File, source io.Reader) error {
	if _, err := io.Copy(target, source); err != nil {
		_ = target.Close()
		return err
	}
	if l.sync {
		if err := target.Sync(); err != nil {
			_ = target.Close()
			return err
		}
	}
	return target.Close()
}

func (l *localFS) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return status.ErrStorageAPI.Wrap(fmt.Errorf("removing %q: %w", key, err))
	}
	return nil
}

func (l *localFS) Keys(_ context.Context) ([]string, error) {
	const root = "."
	var keys []string
	err := afero.Walk(l.fs, root, func(p string, info os.FileInfo, err error) error {
		switch {
		case err != nil:
			return err
		case info.IsDir() && filepath.Base(p) == stagingDir:
			return filepath.SkipDir
		case info.IsDir():
			return nil
		}
		keys = append(keys, filepath.ToSlash(p))
		return nil
	})
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return keys, nil
}

func (l *localFS) Clear(_ context.Context) error {
	return l.fs.RemoveAll("/")
}

func (l *localFS) String() string {
	name := "localfs"
	if l.staging {
		name += "-staged"
	}
	if fs, ok := l.fs.(*afero.BasePathFs); ok {
		if pp, err := fs.RealPath(""); err == nil {
			return name + "@" + pp
		}
	}
	return name
}
