package bootstrap

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain wires a 3-rank topology (0 -> 1 -> 2, the actual shape
// NewTopology derives for nprocs=3 — each non-leaf has exactly one
// child here) with net.Pipe connections standing in for the
// bootstrap-handshake'd TCP sockets.
func buildChain(t *testing.T) (e0, e1, e2 *Edges) {
	t.Helper()
	topo0 := NewTopology(0, 3)
	topo1 := NewTopology(1, 3)
	topo2 := NewTopology(2, 3)
	require.Equal(t, []int{1}, topo0.Children)
	require.Equal(t, []int{2}, topo1.Children)
	require.Empty(t, topo2.Children)

	a0, a1 := net.Pipe() // rank0 <-> rank1
	b1, b2 := net.Pipe() // rank1 <-> rank2

	e0 = &Edges{Topology: topo0, Children: map[int]io.ReadWriter{1: a0}}
	e1 = &Edges{Topology: topo1, Parent: a1, Children: map[int]io.ReadWriter{2: b1}}
	e2 = &Edges{Topology: topo2, Parent: b2}
	return e0, e1, e2
}

func TestBroadcastDeliversRootBufferToEveryRank(t *testing.T) {
	e0, e1, e2 := buildChain(t)

	payload := []byte("rendezvous")
	buf1 := make([]byte, len(payload))
	buf2 := make([]byte, len(payload))

	done := make(chan error, 3)
	go func() { done <- e0.Broadcast(0, payload) }()
	go func() { done <- e1.Broadcast(0, buf1) }()
	go func() { done <- e2.Broadcast(0, buf2) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, payload, buf1)
	assert.Equal(t, payload, buf2)
}

func TestAllreduceMaxIntConvergesOnTheMaximum(t *testing.T) {
	e0, e1, e2 := buildChain(t)

	results := make(chan int, 3)
	errs := make(chan error, 3)
	run := func(e *Edges, x int) {
		v, err := e.AllreduceMaxInt(x)
		errs <- err
		results <- v
	}
	go run(e0, 5)
	go run(e1, 9)
	go run(e2, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, 9, <-results)
	}
}

func TestBarrierCompletesAcrossTheWholeChain(t *testing.T) {
	e0, e1, e2 := buildChain(t)

	done := make(chan error, 3)
	go func() { done <- e0.Barrier() }()
	go func() { done <- e1.Barrier() }()
	go func() { done <- e2.Barrier() }()

	for i := 0; i < 3; i++ {
		assert.NoError(t, <-done)
	}
}

// buildStar wires the nprocs=4 topology: rank 0's children are appended
// by computeChildren in descending split order ([2, 1]), and rank 2 has
// its own child (3). This exercises the multi-child case, unlike
// buildChain's linear 3-rank topology where every node has at most one
// child and rank-ordering bugs in Gather/Scatter can't surface.
func buildStar(t *testing.T) (e0, e1, e2, e3 *Edges) {
	t.Helper()
	topo0 := NewTopology(0, 4)
	topo1 := NewTopology(1, 4)
	topo2 := NewTopology(2, 4)
	topo3 := NewTopology(3, 4)
	require.Equal(t, []int{2, 1}, topo0.Children)
	require.Empty(t, topo1.Children)
	require.Equal(t, []int{3}, topo2.Children)
	require.Empty(t, topo3.Children)

	a0, a1 := net.Pipe() // rank0 <-> rank1
	b0, b2 := net.Pipe() // rank0 <-> rank2
	c2, c3 := net.Pipe() // rank2 <-> rank3

	e0 = &Edges{Topology: topo0, Children: map[int]io.ReadWriter{1: a0, 2: b0}}
	e1 = &Edges{Topology: topo1, Parent: a1}
	e2 = &Edges{Topology: topo2, Parent: b2, Children: map[int]io.ReadWriter{3: c2}}
	e3 = &Edges{Topology: topo3, Parent: c3}
	return e0, e1, e2, e3
}

func TestGatherOrdersBlocksByRankNotChildAppendOrder(t *testing.T) {
	e0, e1, e2, e3 := buildStar(t)

	type result struct {
		buf []byte
		err error
	}
	out := make(chan result, 4)
	run := func(e *Edges, mine []byte) {
		buf, err := e.Gather(0, mine)
		out <- result{buf, err}
	}
	go run(e0, []byte("aaaa"))
	go run(e1, []byte("bbbb"))
	go run(e2, []byte("cccc"))
	go run(e3, []byte("dddd"))

	var rootBuf []byte
	for i := 0; i < 4; i++ {
		r := <-out
		require.NoError(t, r.err)
		if r.buf != nil {
			rootBuf = r.buf
		}
	}
	require.NotNil(t, rootBuf)
	assert.Equal(t, []byte("aaaabbbbccccdddd"), rootBuf)
}

func TestAllgatherStringsCollectsEveryRanksContribution(t *testing.T) {
	e0, e1, e2 := buildChain(t)

	type result struct {
		strs []string
		err  error
	}
	out := make(chan result, 3)
	run := func(e *Edges, s string) {
		strs, err := e.AllgatherStrings(s)
		out <- result{strs, err}
	}
	go run(e0, "host0")
	go run(e1, "host1-longer")
	go run(e2, "h2")

	for i := 0; i < 3; i++ {
		r := <-out
		require.NoError(t, r.err)
		assert.Equal(t, []string{"host0", "host1-longer", "h2"}, r.strs)
	}
}

func TestAllgatherStringsOrdersByRankAcrossAMultiChildNode(t *testing.T) {
	e0, e1, e2, e3 := buildStar(t)

	type result struct {
		strs []string
		err  error
	}
	out := make(chan result, 4)
	run := func(e *Edges, s string) {
		strs, err := e.AllgatherStrings(s)
		out <- result{strs, err}
	}
	go run(e0, "r0")
	go run(e1, "rank-one")
	go run(e2, "r2")
	go run(e3, "rank-three-longest")

	for i := 0; i < 4; i++ {
		r := <-out
		require.NoError(t, r.err)
		assert.Equal(t, []string{"r0", "rank-one", "r2", "rank-three-longest"}, r.strs)
	}
}
