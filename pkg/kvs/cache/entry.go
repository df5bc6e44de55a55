// Package cache implements the cache entry and cache component: a
// content-addressed blob store whose entries gate readers through wait
// queues until their content becomes valid, and again while dirty.
// Entries carry no reference count; an entry leaves the cache only via
// Cache.Remove or Cache.Expire. BoltContentStore supplies the durable bucket-and-blob
// side; pkg/wait supplies the in-memory suspension side.
package cache

import (
	"sync"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
	"github.com/flux-framework/flux-core-go/pkg/wait"
)

// State is an Entry's validity/dirty lifecycle position.
type State int

const (
	StateEmpty State = iota
	StateValid
	StateValidDirty
)

// Entry is a single content-addressed blob, gated by two wait queues:
// one for validity, one for not-dirty.
type Entry struct {
	mu sync.Mutex

	ref   string
	state State
	data  []byte
	errnum int
	hasErr bool

	lastUse int64

	waitValid    *wait.Queue
	waitNotDirty *wait.Queue
}

// NewEntry creates an empty (not-yet-valid) entry for ref.
func NewEntry(ref string) *Entry {
	return &Entry{
		ref:          ref,
		waitValid:    wait.NewQueue(),
		waitNotDirty: wait.NewQueue(),
	}
}

// Ref returns the entry's blobref.
func (e *Entry) Ref() string { return e.ref }

// IsValid reports whether content has been set.
func (e *Entry) IsValid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != StateEmpty
}

// IsDirty reports whether the entry carries unflushed content.
func (e *Entry) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateValidDirty
}

// SetValid writes data exactly once. A second call fails distinctly
// if the new write disagrees on treeobj-vs-raw or empty-vs-nonempty
// shape with the first, enforcing "set exactly once" semantics.
func (e *Entry) SetValid(data []byte) error {
	e.mu.Lock()
	if e.state != StateEmpty {
		wasTreeobj := isTreeobj(e.data)
		isTreeobjNow := isTreeobj(data)
		wasEmpty := len(e.data) == 0
		isEmptyNow := len(data) == 0
		if wasTreeobj != isTreeobjNow || wasEmpty != isEmptyNow {
			e.mu.Unlock()
			return ferror.New(ferror.Exists, "entry %s already valid with incompatible shape", e.ref)
		}
		e.mu.Unlock()
		return nil
	}
	e.data = append([]byte(nil), data...)
	e.state = StateValid
	e.mu.Unlock()

	e.waitValid.Run()
	return nil
}

// Bytes returns the raw content view. Valid only once IsValid is true.
func (e *Entry) Bytes() ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateEmpty {
		return nil, false
	}
	return e.data, true
}

// Treeobj attempts to decode the content as a tree object; returns
// (nil, false) when the bytes do not decode, since a cache entry's
// content can legitimately be either a raw value or an encoded tree
// object and there is no separate tag to distinguish them up front.
func (e *Entry) Treeobj() (*treeobj.Object, bool) {
	data, ok := e.Bytes()
	if !ok {
		return nil, false
	}
	obj, err := treeobj.Decode(data)
	if err != nil {
		return nil, false
	}
	return obj, true
}

func isTreeobj(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	_, err := treeobj.Decode(data)
	return err == nil
}

// SetDirty marks the entry dirty. Requires the entry to already be
// valid.
func (e *Entry) SetDirty() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateEmpty {
		return ferror.New(ferror.Inval, "cannot mark empty entry %s dirty", e.ref)
	}
	e.state = StateValidDirty
	return nil
}

// ClearDirty clears the dirty state unconditionally, then runs the
// wait-notdirty queue.
func (e *Entry) ClearDirty() {
	e.mu.Lock()
	e.state = StateValid
	e.mu.Unlock()
	e.waitNotDirty.Run()
}

// ForceClearDirty clears dirty without firing wait-notdirty callbacks,
// discarding any waiters.
func (e *Entry) ForceClearDirty() {
	e.mu.Lock()
	e.state = StateValid
	q := e.waitNotDirty
	e.waitNotDirty = wait.NewQueue()
	e.mu.Unlock()
	q.DestroyMatching(func(interface{}) bool { return true })
}

// WaitValid returns the queue releasers block on until the entry
// becomes valid.
func (e *Entry) WaitValid() *wait.Queue { return e.waitValid }

// WaitNotDirty returns the queue releasers block on until dirty
// clears.
func (e *Entry) WaitNotDirty() *wait.Queue { return e.waitNotDirty }

// SetErrnumOnValid posts an error on the wait-valid queue's records,
// for a blobref fetch that failed permanently.
func (e *Entry) SetErrnumOnValid(errnum int) {
	e.mu.Lock()
	e.errnum, e.hasErr = errnum, true
	e.mu.Unlock()
	e.waitValid.PostError(errnum)
}

// SetErrnumOnNotDirty posts an error on the wait-notdirty queue's
// records, for a flush that failed permanently.
func (e *Entry) SetErrnumOnNotDirty(errnum int) {
	e.mu.Lock()
	e.errnum, e.hasErr = errnum, true
	e.mu.Unlock()
	e.waitNotDirty.PostError(errnum)
}

// Errnum returns the terminal error code, if any.
func (e *Entry) Errnum() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errnum, e.hasErr
}

// LastUse returns the entry's last-access epoch, used by Cache.Expire.
func (e *Entry) LastUse() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUse
}

func (e *Entry) touch(epoch int64) {
	e.mu.Lock()
	e.lastUse = epoch
	e.mu.Unlock()
}
