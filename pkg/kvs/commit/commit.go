// Package commit implements the commit engine state machine: given a
// fence's ordered ops and an existing root blobref, it produces a new
// root blobref through externally-driven suspension points (missing
// content, pending flushes) rather than coroutines, so the caller
// drives it forward one Process call at a time. It shares the
// encode/decode discipline used for on-disk content elsewhere in the
// KVS packages. Suspension is reported through Process's Result, not
// through pkg/wait.
package commit

import (
	"sync/atomic"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
	"github.com/flux-framework/flux-core-go/pkg/log"
)

var commitLog = log.WithComponent("kvs.commit")

var debugLevel int32

// SetDebugLevel sets the package-wide per-op diagnostic verbosity: 0
// logs nothing extra, >=2 logs every applied op's key and resulting
// value via treeobj.Object.DebugString.
func SetDebugLevel(n int) { atomic.StoreInt32(&debugLevel, int32(n)) }

func currentDebugLevel() int { return int(atomic.LoadInt32(&debugLevel)) }

// OpFlag modifies how an Op is applied.
type OpFlag int

const (
	OpAppend OpFlag = 1 << iota
	OpNoMerge
)

// Op is a single key operation within a batch. Value == nil means
// delete.
type Op struct {
	Key   string
	Flags OpFlag
	Value *treeobj.Object
}

func (o Op) has(f OpFlag) bool { return o.Flags&f != 0 }

// State is the Commit Engine's externally-visible position.
type State int

const (
	StateInit State = iota
	StateLoadRoot
	StateApplyOps
	StateStore
	StatePreFinished
	StateFinished
)

// Result is returned by Process to tell the caller what to do next.
type Result int

const (
	ResultFinished Result = iota
	ResultLoadMissingRefs
	ResultDirtyCacheEntries
	ResultError
)

// StoreThreshold is the VAL encoded-size cutoff above which the STORE
// phase externalizes a leaf to VALREF instead of keeping it inline,
// chosen so blobrefs remain short compared to inline content.
const StoreThreshold = 256

// Commit is one transaction-in-progress.
type Commit struct {
	Name string

	cache    *cache.Cache
	hashAlgo cache.HashAlgo

	rootRef string
	rootcpy *treeobj.Object

	ops     []Op
	applied []bool // ops[i] already mutated rootcpy; skip on stall-resume

	missingRefs []string
	dirtyRefs   []string
	// pendingDirty collects blobrefs materialized during APPLY_OPS
	// (APPEND's old/new value splits) that must also be flushed, folded
	// into dirtyRefs once STORE computes its own list.
	pendingDirty []string

	state   State
	errnum  int
	hasErr  bool
	newroot string

	noMerge bool
}

// New creates a Commit over cache for the given root blobref and
// ordered ops.
func New(name string, c *cache.Cache, algo cache.HashAlgo, rootRef string, ops []Op) *Commit {
	noMerge := false
	for _, op := range ops {
		if op.has(OpNoMerge) {
			noMerge = true
		}
	}
	return &Commit{
		Name:     name,
		cache:    c,
		hashAlgo: algo,
		rootRef:  rootRef,
		ops:      append([]Op(nil), ops...),
		applied:  make([]bool, len(ops)),
		state:    StateInit,
		noMerge:  noMerge,
	}
}

// State returns the commit's current state-machine position.
func (c *Commit) State() State { return c.state }

// Errnum returns the terminal error, if the commit has aborted.
func (c *Commit) Errnum() (int, bool) { return c.errnum, c.hasErr }

// Newroot returns the committed root blobref once FINISHED.
func (c *Commit) Newroot() (string, bool) {
	if c.state != StateFinished {
		return "", false
	}
	return c.newroot, true
}

// MissingRefs returns the blobrefs the caller must fetch before the
// next Process call, valid after a LOAD_MISSING_REFS result.
func (c *Commit) MissingRefs() []string { return c.missingRefs }

// DirtyRefs returns the blobrefs the caller must flush before the next
// Process call, valid after a DIRTY_CACHE_ENTRIES result.
func (c *Commit) DirtyRefs() []string { return c.dirtyRefs }

// NoMerge reports whether any op in this commit forbids merging.
func (c *Commit) NoMerge() bool { return c.noMerge }

// Process advances the state machine by one externally-visible step.
func (c *Commit) Process(epoch int64) (Result, error) {
	if c.hasErr {
		return ResultError, ferror.New(ferror.Fatal, "commit %s already errored", c.Name)
	}

	switch c.state {
	case StateInit, StateLoadRoot:
		return c.stepLoadRoot(epoch)
	case StateApplyOps:
		return c.stepApplyOps(epoch)
	case StateStore:
		return c.stepStore(epoch)
	case StatePreFinished:
		return c.stepPreFinished()
	case StateFinished:
		return ResultFinished, nil
	default:
		return ResultError, ferror.New(ferror.Inval, "unknown commit state %d", c.state)
	}
}

func (c *Commit) stepLoadRoot(epoch int64) (Result, error) {
	entry, ok := c.cache.Lookup(c.rootRef, epoch)
	if !ok || !entry.IsValid() {
		c.missingRefs = []string{c.rootRef}
		c.state = StateLoadRoot
		return ResultLoadMissingRefs, nil
	}
	obj, ok := entry.Treeobj()
	if !ok {
		return c.abort(ferror.New(ferror.Proto, "root %s does not decode as a tree object", c.rootRef))
	}
	c.rootcpy = obj.DeepCopy()
	c.missingRefs = nil
	c.state = StateApplyOps
	return c.stepApplyOps(epoch)
}

// stepApplyOps applies every not-yet-applied op in order. An op that
// stalls on a missing ref is retried on the next call without
// re-running ops that already completed — re-running a completed
// OpAppend against an already-mutated rootcpy would append its value a
// second time.
func (c *Commit) stepApplyOps(epoch int64) (Result, error) {
	var missing []string
	for i, op := range c.ops {
		if c.applied[i] {
			continue
		}
		refs, err := c.applyOp(op, epoch)
		if err != nil {
			return c.abort(err)
		}
		if len(refs) > 0 {
			missing = append(missing, refs...)
			continue
		}
		c.applied[i] = true
		if currentDebugLevel() >= 2 {
			commitLog.Debug().Str("commit", c.Name).Str("key", op.Key).Str("value", op.Value.DebugString()).Msg("op applied")
		}
	}
	if len(missing) > 0 {
		c.missingRefs = dedupe(missing)
		c.state = StateApplyOps
		return ResultLoadMissingRefs, nil
	}
	c.state = StateStore
	return c.stepStore(epoch)
}

func (c *Commit) stepStore(epoch int64) (Result, error) {
	dirty := append([]string(nil), c.pendingDirty...)
	newRoot, err := storeUnroll(c.rootcpy, c.cache, c.hashAlgo, &dirty, epoch)
	if err != nil {
		return c.abort(err)
	}
	c.dirtyRefs = dedupe(dirty)
	c.newroot = newRoot
	if len(dirty) == 0 {
		c.state = StateFinished
		return ResultFinished, nil
	}
	c.state = StatePreFinished
	return ResultDirtyCacheEntries, nil
}

func (c *Commit) stepPreFinished() (Result, error) {
	for _, ref := range c.dirtyRefs {
		entry, ok := c.cache.Lookup(ref, 0)
		if !ok {
			continue
		}
		if entry.IsDirty() {
			return ResultDirtyCacheEntries, nil
		}
	}
	c.dirtyRefs = nil
	c.state = StateFinished
	return ResultFinished, nil
}

func (c *Commit) abort(err error) (Result, error) {
	for _, ref := range dedupe(append(append([]string(nil), c.dirtyRefs...), c.pendingDirty...)) {
		if entry, ok := c.cache.Lookup(ref, 0); ok {
			entry.ForceClearDirty()
			c.cache.Remove(ref)
		}
	}
	c.rootcpy = nil
	c.dirtyRefs = nil
	c.pendingDirty = nil
	c.hasErr = true
	if kind, ok := ferror.KindOf(err); ok {
		c.errnum = errnumFor(kind)
	} else {
		c.errnum = errnumFor(ferror.Fatal)
	}
	return ResultError, err
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	var out []string
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// errnumFor assigns a small stable integer per Kind, for callers that
// want a numeric errno rather than the string Kind.
func errnumFor(k ferror.Kind) int {
	switch k {
	case ferror.Inval:
		return 1
	case ferror.Proto:
		return 2
	case ferror.Perm:
		return 3
	case ferror.NoSpace:
		return 4
	case ferror.ReadOnly:
		return 5
	case ferror.Exists:
		return 6
	case ferror.NotFound:
		return 7
	case ferror.TimedOut:
		return 8
	case ferror.IsDir:
		return 9
	case ferror.IsSymlink:
		return 10
	case ferror.Unsupported:
		return 11
	default:
		return 99
	}
}
