package cache

import (
	"testing"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/wait"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntrySetValidFiresWaitValid(t *testing.T) {
	e := NewEntry("sha1-abc")
	fired := 0
	e.WaitValid().Add(wait.New(func() { fired++ }))

	require.NoError(t, e.SetValid([]byte("x")))
	assert.Equal(t, 1, fired)

	data, ok := e.Bytes()
	require.True(t, ok)
	assert.Equal(t, "x", string(data))
}

func TestEntrySecondIncompatibleSetFails(t *testing.T) {
	e := NewEntry("sha1-abc")
	require.NoError(t, e.SetValid([]byte("x")))
	require.NoError(t, e.SetValid([]byte("y"))) // same shape, tolerated no-op

	err := e.SetValid([]byte{})
	require.Error(t, err)
	kind, _ := ferror.KindOf(err)
	assert.Equal(t, ferror.Exists, kind)
}

func TestEntryDirtyLifecycle(t *testing.T) {
	e := NewEntry("sha1-abc")
	require.NoError(t, e.SetValid([]byte("x")))

	require.NoError(t, e.SetDirty())
	assert.True(t, e.IsDirty())

	fired := 0
	e.WaitNotDirty().Add(wait.New(func() { fired++ }))
	e.ClearDirty()
	assert.False(t, e.IsDirty())
	assert.Equal(t, 1, fired)
}

func TestCacheInsertLookupRemove(t *testing.T) {
	c := New()
	e := NewEntry("sha1-abc")
	require.NoError(t, e.SetValid([]byte("x")))

	got := c.Insert(e)
	assert.Same(t, e, got)

	dup := NewEntry("sha1-abc")
	gotDup := c.Insert(dup)
	assert.Same(t, e, gotDup, "duplicate insert returns existing entry")

	found, ok := c.Lookup("sha1-abc", 1)
	require.True(t, ok)
	assert.Same(t, e, found)

	require.True(t, c.Remove("sha1-abc"))
	_, ok = c.Lookup("sha1-abc", 1)
	assert.False(t, ok)
}

func TestCacheRemoveFailsWhileDirty(t *testing.T) {
	c := New()
	e := NewEntry("sha1-abc")
	require.NoError(t, e.SetValid([]byte("x")))
	require.NoError(t, e.SetDirty())
	c.Insert(e)

	assert.False(t, c.Remove("sha1-abc"))
}

func TestCacheExpireSkipsDirtyAndIncomplete(t *testing.T) {
	c := New()
	valid := NewEntry("sha1-valid")
	require.NoError(t, valid.SetValid([]byte("x")))
	c.Insert(valid)

	dirty := NewEntry("sha1-dirty")
	require.NoError(t, dirty.SetValid([]byte("y")))
	require.NoError(t, dirty.SetDirty())
	c.Insert(dirty)

	incomplete := NewEntry("sha1-incomplete")
	c.Insert(incomplete)

	c.Lookup("sha1-valid", 1)
	c.Lookup("sha1-dirty", 1)
	c.Lookup("sha1-incomplete", 1)

	removed := c.Expire(100, 10)
	assert.Equal(t, 1, removed)

	_, ok := c.Lookup("sha1-valid", 100)
	assert.False(t, ok)
	_, ok = c.Lookup("sha1-dirty", 100)
	assert.True(t, ok)
}

func TestHashAndVerifyRef(t *testing.T) {
	ref, err := Hash(HashSHA256, []byte("hello"))
	require.NoError(t, err)
	assert.True(t, len(ref) > len("sha256-"))

	require.NoError(t, VerifyRef(ref, []byte("hello")))
	err = VerifyRef(ref, []byte("tampered"))
	require.Error(t, err)
	kind, _ := ferror.KindOf(err)
	assert.Equal(t, ferror.Fatal, kind)
}
