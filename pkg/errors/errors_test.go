package errors

import (
	stderr "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
}

func TestSentinelNotMutated(t *testing.T) {
	sentinel := New("not found")
	cause := stderr.New("disk on fire")

	wrapped := sentinel.Wrap(cause)
	require.Nil(t, sentinel.Unwrap())
	assert.Equal(t, "not found", sentinel.Error())
	assert.Equal(t, "not found: disk on fire", wrapped.Error())
	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, cause))

	other := New("not found")
	assert.False(t, Is(wrapped, other))
}

func TestDetail(t *testing.T) {
	sentinel := New("duplicate key")
	e := sentinel.Detail("key %q", "a").Detail("node %d", 3)

	assert.Equal(t, `duplicate key: key "a", node 3`, e.Error())
	assert.True(t, Is(e, sentinel))

	var target *Error
	require.True(t, As(e, &target))
	assert.Equal(t, e, target)
}
