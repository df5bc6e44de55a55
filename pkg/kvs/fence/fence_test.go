package fence

import (
	"testing"

	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/commit"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRootRef(t *testing.T, c *cache.Cache) string {
	t.Helper()
	root := treeobj.NewDir()
	data, err := treeobj.Encode(root)
	require.NoError(t, err)
	ref, err := cache.Hash(cache.HashSHA256, data)
	require.NoError(t, err)
	entry := c.LookupOrCreate(ref, 0)
	require.NoError(t, entry.SetValid(data))
	return ref
}

func TestFenceBecomesReadyAfterNParticipants(t *testing.T) {
	c := cache.New()
	m := NewManager(c, cache.HashSHA256)
	rootRef := seedRootRef(t, c)

	_, err := m.AddFence("f1", 2)
	require.NoError(t, err)

	require.NoError(t, m.ProcessFenceRequest("f1", rootRef, []commit.Op{
		{Key: "a", Value: treeobj.NewVal([]byte("1"))},
	}))
	_, ok := m.GetReadyCommit()
	assert.False(t, ok, "not ready after first of two")

	require.NoError(t, m.ProcessFenceRequest("f1", rootRef, []commit.Op{
		{Key: "b", Value: treeobj.NewVal([]byte("2"))},
	}))
	cm, ok := m.GetReadyCommit()
	require.True(t, ok)
	assert.Equal(t, "f1", cm.Name)
}

func TestDuplicateFenceNameRejected(t *testing.T) {
	c := cache.New()
	m := NewManager(c, cache.HashSHA256)
	_, err := m.AddFence("dup", 1)
	require.NoError(t, err)
	_, err = m.AddFence("dup", 1)
	require.Error(t, err)
}

func TestRemoveFenceDeferredDuringIteration(t *testing.T) {
	c := cache.New()
	m := NewManager(c, cache.HashSHA256)
	_, err := m.AddFence("a", 5)
	require.NoError(t, err)
	_, err = m.AddFence("b", 5)
	require.NoError(t, err)

	visited := 0
	m.IterNotReady(func(f *Fence) {
		visited++
		m.RemoveFence(f.Name)
	})
	assert.Equal(t, 2, visited)
	assert.Equal(t, 0, m.FenceCount(), "deferred removals applied after iteration")
}

func TestRemoveCommitDropsHeadAndFence(t *testing.T) {
	c := cache.New()
	m := NewManager(c, cache.HashSHA256)
	rootRef := seedRootRef(t, c)

	_, err := m.AddFence("f", 1)
	require.NoError(t, err)
	require.NoError(t, m.ProcessFenceRequest("f", rootRef, []commit.Op{{Key: "x", Value: treeobj.NewVal([]byte("1"))}}))

	require.Equal(t, 1, m.ReadyCount())
	m.RemoveCommit()
	assert.Equal(t, 0, m.ReadyCount())
	_, ok := m.LookupFence("f")
	assert.False(t, ok)
}
