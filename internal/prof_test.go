package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemProfile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profiles")
	require.NoError(t, MemProfile(dir, "test"))

	for _, name := range []string{"test.heap.prof", "test.allocs.prof"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}

	// existing profiles are kept
	heap := filepath.Join(dir, "test.heap.prof")
	require.NoError(t, os.WriteFile(heap, []byte("x"), 0o600))
	require.NoError(t, MemProfile(dir, "test"))
	data, err := os.ReadFile(heap)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
