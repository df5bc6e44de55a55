package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-core-go/pkg/config"
	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/commit"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	n, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNodeCommitFlushesDirtyEntriesToStore(t *testing.T) {
	n := newTestNode(t)

	root := RootObject()
	data, err := treeobj.Encode(root)
	require.NoError(t, err)
	rootRef, err := cache.Hash(n.HashAlgo, data)
	require.NoError(t, err)
	require.NoError(t, n.Store.Put(rootRef, data))
	entry := n.Cache.LookupOrCreate(rootRef, n.NextEpoch())
	require.NoError(t, entry.SetValid(data))

	c, err := n.Commit(rootRef, []commit.Op{{Key: "a.b", Value: treeobj.NewVal([]byte("x"))}})
	require.NoError(t, err)
	assert.Equal(t, commit.StateFinished, c.State())

	newroot, ok := c.Newroot()
	require.True(t, ok)
	assert.NotEqual(t, rootRef, newroot)

	stored, err := n.Store.Get(newroot)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestNodeNextEpochIsMonotonic(t *testing.T) {
	n := newTestNode(t)
	a := n.NextEpoch()
	b := n.NextEpoch()
	assert.Less(t, a, b)
}
