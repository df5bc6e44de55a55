package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltContentStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltContentStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ref, err := Hash(HashSHA256, []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, store.Put(ref, []byte("payload")))
	got, err := store.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestBoltContentStoreGetMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltContentStore(dir)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get("sha256-doesnotexist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBoltContentStorePutIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltContentStore(dir)
	require.NoError(t, err)
	defer store.Close()

	ref, _ := Hash(HashSHA256, []byte("x"))
	require.NoError(t, store.Put(ref, []byte("x")))
	require.NoError(t, store.Put(ref, []byte("x")))

	got, err := store.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}
