// Package fence implements the fence/transaction manager: groups
// batches from multiple participants under a shared name, promotes a
// fence to a Commit once all participants have contributed, and
// tracks a ready-commit queue with deferred deletion during
// iteration. The fence table is a plain map and the ready queue a
// plain slice, with no mutex and no subscribers: the manager is not
// safe for concurrent use.
package fence

import (
	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/commit"
)

// Fence accumulates op batches from Nexpect participants.
type Fence struct {
	Name    string
	Nexpect int

	ops       []commit.Op
	processed int
	ready     bool
	flags     commit.OpFlag
}

// Manager owns the fence table and the ready-commit queue.
type Manager struct {
	cache    *cache.Cache
	hashAlgo cache.HashAlgo

	fences map[string]*Fence
	ready  []*commit.Commit

	iterating      bool
	deferredRemove []string

	noopStores int
}

// NewManager creates a Manager driving commits against c.
func NewManager(c *cache.Cache, algo cache.HashAlgo) *Manager {
	return &Manager{
		cache:    c,
		hashAlgo: algo,
		fences:   make(map[string]*Fence),
	}
}

// AddFence creates a fence keyed by name expecting nexpect participant
// batches. A duplicate name is an error.
func (m *Manager) AddFence(name string, nexpect int) (*Fence, error) {
	if _, ok := m.fences[name]; ok {
		return nil, ferror.New(ferror.Exists, "fence %q already exists", name)
	}
	f := &Fence{Name: name, Nexpect: nexpect}
	m.fences[name] = f
	return f, nil
}

// LookupFence returns the fence named name, if any.
func (m *Manager) LookupFence(name string) (*Fence, bool) {
	f, ok := m.fences[name]
	return f, ok
}

// RemoveFence deletes the named fence. If an iteration is active the
// removal is deferred until IterNotReady returns.
func (m *Manager) RemoveFence(name string) {
	if m.iterating {
		m.deferredRemove = append(m.deferredRemove, name)
		return
	}
	delete(m.fences, name)
}

// IterNotReady visits every not-yet-ready fence. Deletions requested
// during the callback (via RemoveFence) are applied once iteration
// completes, so a callback can safely remove the fence it's visiting.
func (m *Manager) IterNotReady(fn func(*Fence)) {
	m.iterating = true
	for _, f := range m.fences {
		if !f.ready {
			fn(f)
		}
	}
	m.iterating = false
	for _, name := range m.deferredRemove {
		delete(m.fences, name)
	}
	m.deferredRemove = nil
}

// ProcessFenceRequest adds ops to the named fence's accumulated batch
// and, once Nexpect batches have arrived, promotes it to a Commit
// appended to the ready queue.
func (m *Manager) ProcessFenceRequest(name string, rootRef string, ops []commit.Op) error {
	f, ok := m.fences[name]
	if !ok {
		return ferror.New(ferror.NotFound, "fence %q not found", name)
	}
	if f.ready {
		return ferror.New(ferror.Inval, "fence %q already processed", name)
	}
	f.ops = append(f.ops, ops...)
	f.processed++
	for _, op := range ops {
		f.flags |= op.Flags
	}
	if f.processed < f.Nexpect {
		return nil
	}
	f.ready = true
	cm := commit.New(f.Name, m.cache, m.hashAlgo, rootRef, f.ops)
	m.ready = append(m.ready, cm)
	return nil
}

// GetReadyCommit returns the head of the ready-commit queue.
func (m *Manager) GetReadyCommit() (*commit.Commit, bool) {
	if len(m.ready) == 0 {
		return nil, false
	}
	return m.ready[0], true
}

// RemoveCommit pops the head of the ready-commit queue, also dropping
// its originating fence entry.
func (m *Manager) RemoveCommit() {
	if len(m.ready) == 0 {
		return
	}
	head := m.ready[0]
	m.ready = m.ready[1:]
	m.RemoveFence(head.Name)
}

// MergeReadyCommits collapses adjacent mergeable commits in the ready
// queue via commit.MergeReady.
func (m *Manager) MergeReadyCommits() {
	m.ready = commit.MergeReady(m.ready)
}

// FenceCount returns the number of outstanding fences.
func (m *Manager) FenceCount() int { return len(m.fences) }

// ReadyCount returns the number of commits in the ready queue.
func (m *Manager) ReadyCount() int { return len(m.ready) }

// RecordNoopStore increments the "duplicate content-store write
// avoided via cache hit" statistic.
func (m *Manager) RecordNoopStore() { m.noopStores++ }

// NoopStores returns the accumulated noop-store count.
func (m *Manager) NoopStores() int { return m.noopStores }
