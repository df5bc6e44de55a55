package bootstrap

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/log"
)

// Edges abstracts a node's tree connections: a parent read/write
// stream (absent at rank 0) and one per child, keyed by child rank.
// Any edge read/write failure is fatal — callers are expected to log
// and exit on error, not retry.
type Edges struct {
	Topology *Topology
	Parent   io.ReadWriter // nil at rank 0
	Children map[int]io.ReadWriter
}

var collLog = log.WithComponent("bootstrap.collectives")

// ascendingChildren returns the rank's children sorted ascending by rank.
// computeChildren appends children in descending split order (the larger
// half is split off first), which is fine for order-independent operations
// like Broadcast and AllreduceMaxInt but wrong for Gather/Scatter: those
// pack each child's subtree contiguously by rank, so the children must be
// visited in ascending order for each child's block to land at its correct
// rank offset.
func ascendingChildren(t *Topology) []int {
	children := append([]int(nil), t.Children...)
	sort.Ints(children)
	return children
}

// Broadcast delivers buf (set by the root before calling) to every
// rank: non-root reads from its parent, then every rank forwards to
// each child.
func (e *Edges) Broadcast(root int, buf []byte) error {
	if e.Topology.Rank != root {
		if _, err := io.ReadFull(e.Parent, buf); err != nil {
			return ferror.Wrap(ferror.Fatal, err, "broadcast read from parent")
		}
	}
	for _, child := range e.Topology.Children {
		if _, err := e.Children[child].Write(buf); err != nil {
			return ferror.Wrap(ferror.Fatal, err, "broadcast write to child %d", child)
		}
	}
	return nil
}

// AllreduceMaxInt performs a post-order max-reduce toward rank 0,
// followed by a broadcast of the result back out.
func (e *Edges) AllreduceMaxInt(x int) (int, error) {
	max := x
	for _, child := range e.Topology.Children {
		v, err := readInt(e.Children[child])
		if err != nil {
			return 0, ferror.Wrap(ferror.Fatal, err, "allreduce read from child %d", child)
		}
		if v > max {
			max = v
		}
	}
	if e.Topology.HasParent {
		if err := writeInt(e.Parent, max); err != nil {
			return 0, ferror.Wrap(ferror.Fatal, err, "allreduce write to parent")
		}
		result, err := readInt(e.Parent)
		if err != nil {
			return 0, ferror.Wrap(ferror.Fatal, err, "allreduce read result from parent")
		}
		max = result
	}
	for _, child := range e.Topology.Children {
		if err := writeInt(e.Children[child], max); err != nil {
			return 0, ferror.Wrap(ferror.Fatal, err, "allreduce write result to child %d", child)
		}
	}
	return max, nil
}

// Barrier is allreduce_max_int(1) with the result discarded.
func (e *Edges) Barrier() error {
	_, err := e.AllreduceMaxInt(1)
	return err
}

// Gather concatenates sendn-byte contributions from every rank,
// rank-ordered, into a buffer sized subtree_size*sendn at the caller's
// own position, forwarding up to the parent; root ends up holding the
// full nprocs*sendn buffer indexed by rank.
func (e *Edges) Gather(root int, mine []byte) ([]byte, error) {
	sendn := len(mine)
	out := append([]byte(nil), mine...)
	for _, child := range ascendingChildren(e.Topology) {
		childBuf := make([]byte, e.Topology.SubtreeSize[child]*sendn)
		if _, err := io.ReadFull(e.Children[child], childBuf); err != nil {
			return nil, ferror.Wrap(ferror.Fatal, err, "gather read from child %d", child)
		}
		out = append(out, childBuf...)
	}
	if e.Topology.Rank != root {
		if _, err := e.Parent.Write(out); err != nil {
			return nil, ferror.Wrap(ferror.Fatal, err, "gather write to parent")
		}
		return nil, nil
	}
	return out, nil
}

// Scatter is Gather's inverse: root holds the full buffer and
// distributes each subtree's slice down the tree.
func (e *Edges) Scatter(root int, sendn int, full []byte) ([]byte, error) {
	var mine []byte
	if e.Topology.Rank == root {
		mine = full[:sendn]
		offset := sendn
		for _, child := range ascendingChildren(e.Topology) {
			n := e.Topology.SubtreeSize[child] * sendn
			if err := writeAll(e.Children[child], full[offset:offset+n]); err != nil {
				return nil, ferror.Wrap(ferror.Fatal, err, "scatter write to child %d", child)
			}
			offset += n
		}
		return mine, nil
	}

	totalSize := e.Topology.TotalSubtreeSize() * sendn
	buf := make([]byte, totalSize)
	if _, err := io.ReadFull(e.Parent, buf); err != nil {
		return nil, ferror.Wrap(ferror.Fatal, err, "scatter read from parent")
	}
	mine = buf[:sendn]
	offset := sendn
	for _, child := range ascendingChildren(e.Topology) {
		n := e.Topology.SubtreeSize[child] * sendn
		if err := writeAll(e.Children[child], buf[offset:offset+n]); err != nil {
			return nil, ferror.Wrap(ferror.Fatal, err, "scatter forward to child %d", child)
		}
		offset += n
	}
	return mine, nil
}

// Allgather is Gather followed by a Broadcast of the combined buffer.
func (e *Edges) Allgather(mine []byte) ([]byte, error) {
	const root = 0
	full, err := e.Gather(root, mine)
	if err != nil {
		return nil, err
	}
	if e.Topology.Rank != root {
		full = make([]byte, e.Topology.Nprocs*len(mine))
	}
	if err := e.Broadcast(root, full); err != nil {
		return nil, err
	}
	return full, nil
}

// AllgatherStrings pads every contribution to the allreduce-determined
// max length, allgathers the fixed-width buffer, then splits it back
// into individual strings.
func (e *Edges) AllgatherStrings(mine string) ([]string, error) {
	maxLen, err := e.AllreduceMaxInt(len(mine))
	if err != nil {
		return nil, err
	}
	padded := make([]byte, maxLen)
	copy(padded, mine)

	full, err := e.Allgather(padded)
	if err != nil {
		return nil, err
	}

	out := make([]string, e.Topology.Nprocs)
	for i := range out {
		chunk := full[i*maxLen : (i+1)*maxLen]
		end := 0
		for end < len(chunk) && chunk[end] != 0 {
			end++
		}
		out[i] = string(chunk[:end])
	}
	return out, nil
}

func writeInt(w io.Writer, v int) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readInt(r io.Reader) (int, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(b[:])), nil
}

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
