package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"testing"
	"time"

	"github.com/oneconcern/porcupine/pkg/storage/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

func TestRetryTransient(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}
	m.On("Has", ctx, "k").Return(false, errTransient).Twice()
	m.On("Has", ctx, "k").Return(true, nil).Once()

	store := WithRetry(m, WithMaxElapsed(time.Second))
	has, err := store.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)
	m.AssertNumberOfCalls(t, "Has", 3)
}

func TestRetryGivesUp(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}
	m.On("Delete", ctx, "k").Return(errTransient)

	store := WithRetry(m, WithMaxRetries(2))
	err := store.Delete(ctx, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errTransient))
	m.AssertNumberOfCalls(t, "Delete", 3)
}

func TestRetryPermanent(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}
	m.On("Get", ctx, "missing").Return(nil, status.ErrNotFound.Wrap(errors.New("key")))

	store := WithRetry(m)
	_, err := store.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	m.AssertNumberOfCalls(t, "Get", 1)
}

func TestRetryPutResendsContent(t *testing.T) {
	ctx := context.Background()
	m := &mockStore{}

	var sent [][]byte
	capture := func(args mock.Arguments) {
		b, _ := ioutil.ReadAll(args.Get(2).(io.Reader))
		sent = append(sent, b)
	}
	m.On("Put", ctx, "k", mock.Anything, NoOverWrite).Run(capture).Return(errTransient).Once()
	m.On("Put", ctx, "k", mock.Anything, NoOverWrite).Run(capture).Return(nil).Once()

	store := WithRetry(m)
	require.NoError(t, store.Put(ctx, "k", bytes.NewBufferString("block"), NoOverWrite))
	require.Len(t, sent, 2)
	assert.Equal(t, "block", string(sent[0]))
	assert.Equal(t, "block", string(sent[1]))
}
