package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopologyRankZeroHasNoParent(t *testing.T) {
	top := NewTopology(0, 8)
	assert.False(t, top.HasParent)
}

func TestTopologyNonRootHasParent(t *testing.T) {
	top := NewTopology(3, 8)
	assert.True(t, top.HasParent)
}

func TestTopologyEveryNonRootRankIsSomeonesChild(t *testing.T) {
	const nprocs = 8
	childOf := map[int]int{}
	for rank := 0; rank < nprocs; rank++ {
		top := NewTopology(rank, nprocs)
		for _, c := range top.Children {
			childOf[c] = rank
		}
	}
	for rank := 1; rank < nprocs; rank++ {
		_, ok := childOf[rank]
		assert.True(t, ok, "rank %d must be someone's child", rank)
	}
	_, isChild := childOf[0]
	assert.False(t, isChild, "rank 0 is the root, never a child")
}

func TestTopologyLeafHasNoChildren(t *testing.T) {
	top := NewTopology(7, 8)
	assert.True(t, top.IsLeaf())
}
