package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestObjectStore(t *testing.T) *BadgerObjectStore {
	t.Helper()
	st, err := NewBadgerObjectStore("") // in-memory
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestBadgerObjectStore_PutGet(t *testing.T) {
	st := newTestObjectStore(t)
	ctx := context.Background()

	data := []byte("fake image bytes")
	require.NoError(t, st.Put(ctx, "images/blt1/banner/pic.jpg", data, "image/jpeg"))

	got, contentType, err := st.Get(ctx, "images/blt1/banner/pic.jpg")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestBadgerObjectStore_GetMissing(t *testing.T) {
	st := newTestObjectStore(t)

	_, _, err := st.Get(context.Background(), "images/none/banner/pic.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerObjectStore_Exists(t *testing.T) {
	st := newTestObjectStore(t)
	ctx := context.Background()

	ok, err := st.Exists(ctx, "images/blt1/banner/pic.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Put(ctx, "images/blt1/banner/pic.jpg", []byte("x"), "image/png"))

	ok, err = st.Exists(ctx, "images/blt1/banner/pic.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBadgerObjectStore_Delete(t *testing.T) {
	st := newTestObjectStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "images/blt1/banner/pic.jpg", []byte("x"), "image/png"))
	require.NoError(t, st.Delete(ctx, "images/blt1/banner/pic.jpg"))

	ok, err := st.Exists(ctx, "images/blt1/banner/pic.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op
	assert.NoError(t, st.Delete(ctx, "images/blt1/banner/pic.jpg"))
}
