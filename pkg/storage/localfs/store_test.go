// Copyright © 2018 One Concern

package localfs

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/oneconcern/porcupine/pkg/storage"
	"github.com/oneconcern/porcupine/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHas(t *testing.T) {
	for _, bs := range setupStores(t) {
		has, err := bs.Has(context.Background(), "sixteentons")
		require.NoError(t, err)
		require.True(t, has)

		has, err = bs.Has(context.Background(), "nodes/ab/seventeentons")
		require.NoError(t, err)
		require.True(t, has)

		has, err = bs.Has(context.Background(), "fifteentons")
		require.NoError(t, err)
		require.False(t, has)

		has, err = bs.Has(context.Background(), "nodes/ab")
		require.NoError(t, err)
		require.False(t, has, "directories are not blocks")
	}
}

func TestGet(t *testing.T) {
	for _, bs := range setupStores(t) {
		rdr, err := bs.Get(context.Background(), "sixteentons")
		require.NoError(t, err)
		b, err := ioutil.ReadAll(rdr)
		require.NoError(t, err)
		require.NoError(t, rdr.Close())
		assert.Equal(t, "this is the text", string(b))

		b, err = storage.ReadAll(context.Background(), bs, "nodes/ab/seventeentons")
		require.NoError(t, err)
		assert.Equal(t, "this is the text for another thing", string(b))

		_, err = bs.Get(context.Background(), "fifteentons")
		require.Error(t, err)
		assert.True(t, errors.Is(err, status.ErrNotFound))
	}
}

func TestKeys(t *testing.T) {
	for _, bs := range setupStores(t) {
		keys, err := bs.Keys(context.Background())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"sixteentons", "nodes/ab/seventeentons"}, keys)
	}
}

func TestDelete(t *testing.T) {
	for _, bs := range setupStores(t) {
		require.NoError(t, bs.Delete(context.Background(), "nodes/ab/seventeentons"))
		k, _ := bs.Keys(context.Background())
		assert.Len(t, k, 1)

		// deleting twice is fine
		require.NoError(t, bs.Delete(context.Background(), "nodes/ab/seventeentons"))
	}
}

func TestClear(t *testing.T) {
	for _, bs := range setupStores(t) {
		require.NoError(t, bs.Clear(context.Background()))
		k, _ := bs.Keys(context.Background())
		require.Empty(t, k)
	}
}

func TestPut(t *testing.T) {
	for _, bs := range setupStores(t) {
		content := bytes.NewBufferString("here we go once again")
		err := bs.Put(context.Background(), "values/cd/eighteentons", content, storage.NoOverWrite)
		require.NoError(t, err)

		b, err := storage.ReadAll(context.Background(), bs, "values/cd/eighteentons")
		require.NoError(t, err)
		assert.Equal(t, "here we go once again", string(b))

		k, _ := bs.Keys(context.Background())
		assert.Len(t, k, 3)

		err = bs.Put(context.Background(), "values/cd/eighteentons", bytes.NewBufferString("nope"), storage.NoOverWrite)
		require.Error(t, err)
		assert.True(t, errors.Is(err, status.ErrExists))

		// overwriting truncates the former content
		require.NoError(t, storage.WriteAll(context.Background(), bs, "values/cd/eighteentons", []byte("short"), storage.OverWrite))
		b, err = storage.ReadAll(context.Background(), bs, "values/cd/eighteentons")
		require.NoError(t, err)
		assert.Equal(t, "short", string(b))
	}
}

func TestInvalidKeys(t *testing.T) {
	for _, bs := range setupStores(t) {
		for _, key := range []string{"", "/", "..", "../outside", "nodes/../../outside", stagingDir + "/x"} {
			err := bs.Put(context.Background(), key, bytes.NewBufferString("x"), storage.OverWrite)
			require.Error(t, err, key)
			assert.True(t, errors.Is(err, status.ErrInvalidResource), key)

			_, err = bs.Has(context.Background(), key)
			assert.True(t, errors.Is(err, status.ErrInvalidResource), key)
		}
	}
}

func TestStagingKeptOutOfKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	bs := New(fs, WithStaging(true), WithSync(true))
	require.NoError(t, storage.WriteAll(context.Background(), bs, "nodes/ab/block", []byte("x"), storage.NoOverWrite))

	// a put interrupted before its rename leaves a staged file behind
	require.NoError(t, afero.WriteFile(fs, stagingDir+"/block-leftover", []byte("partial"), 0o600))

	keys, err := bs.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nodes/ab/block"}, keys)

	staged, err := afero.ReadDir(fs, stagingDir)
	require.NoError(t, err)
	assert.Len(t, staged, 1, "successful puts leave nothing staged")
}

func TestString(t *testing.T) {
	bs := New(afero.NewBasePathFs(afero.NewMemMapFs(), "/blocks"))
	assert.Contains(t, bs.String(), "localfs@")
	assert.Equal(t, "localfs", New(afero.NewMemMapFs()).String())
	assert.Equal(t, "localfs-staged", New(afero.NewMemMapFs(), WithStaging(true)).String())
}

func setupStores(t testing.TB) []storage.Store {
	t.Helper()

	stores := []storage.Store{
		New(afero.NewMemMapFs()),
		New(afero.NewMemMapFs(), WithStaging(true)),
		New(afero.NewBasePathFs(afero.NewOsFs(), t.TempDir()), WithStaging(true), WithSync(true)),
	}
	for _, bs := range stores {
		require.NoError(t, storage.WriteAll(context.Background(), bs, "sixteentons", []byte("this is the text"), storage.NoOverWrite))
		require.NoError(t, storage.WriteAll(context.Background(), bs, "nodes/ab/seventeentons", []byte("this is the text for another thing"), storage.NoOverWrite))
	}

	return stores
}
