package wireproto

import (
	"sync"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// matchtagGroupNone is the matchtag used to signify "no group",
// mirroring the original's future.c convention of reserving 0 for
// "none/any" and handing out the rest from a free-list.
const matchtagGroupNone uint32 = MatchtagAny

// MatchtagPool hands out matchtags for in-flight RPCs, the way the
// original's rpcscale.c allocator reuses a bounded pool of tags rather
// than a monotonically increasing counter, so that long-lived clients
// don't exhaust a 32-bit space.
type MatchtagPool struct {
	mu       sync.Mutex
	next     uint32
	free     []uint32
	inflight map[uint32]struct{}
	max      uint32
}

// NewMatchtagPool creates a pool that allocates tags in [1, max]. A tag
// of 0 is reserved as MatchtagAny and is never allocated.
func NewMatchtagPool(max uint32) *MatchtagPool {
	return &MatchtagPool{
		next:     1,
		inflight: make(map[uint32]struct{}),
		max:      max,
	}
}

// Alloc returns an unused matchtag, preferring recently-freed tags over
// growing the high-water mark.
func (p *MatchtagPool) Alloc() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		tag := p.free[n-1]
		p.free = p.free[:n-1]
		p.inflight[tag] = struct{}{}
		return tag, nil
	}
	if p.next > p.max {
		return 0, ferror.New(ferror.NoSpace, "matchtag pool exhausted at %d", p.max)
	}
	tag := p.next
	p.next++
	p.inflight[tag] = struct{}{}
	return tag, nil
}

// Free returns tag to the pool. Freeing an unallocated or already-free
// tag is a no-op, matching the original's tolerance of double-free on
// teardown paths.
func (p *MatchtagPool) Free(tag uint32) {
	if tag == matchtagGroupNone {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[tag]; !ok {
		return
	}
	delete(p.inflight, tag)
	p.free = append(p.free, tag)
}

// InFlight reports how many matchtags are currently allocated.
func (p *MatchtagPool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}
