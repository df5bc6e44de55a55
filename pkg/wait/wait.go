// Package wait implements a reusable one-shot/multi-queue condition
// primitive used to suspend work pending a cache entry's validity or
// not-dirty state until a reactor iteration signals it. A Wait's
// usecount, not a channel send, is what releases its action, and a
// WaitQueue is a plain slice rather than a goroutine — suspension is
// driven synchronously by whoever calls Run, not a background worker.
package wait

import "sync"

// Action runs once a Wait's usecount reaches zero.
type Action func()

// ErrorCallback is invoked when an error is posted on a Wait via
// PostError.
type ErrorCallback func(errnum int)

// Wait is a single suspended unit of work. It may be enqueued on more
// than one Queue (e.g. a commit waiting on both "missing ref A" and
// "missing ref B" would not need this, but a handler waiting on two
// independent conditions does); its action fires exactly once, when the
// last holder releases it.
type Wait struct {
	mu        sync.Mutex
	usecount  int
	action    Action
	onError   ErrorCallback
	destroyed bool

	// msg is an opaque payload (e.g. a captured message) that
	// DestroyMatching's predicate inspects; nil if unused.
	msg interface{}
}

// New creates a Wait whose action runs when usecount drops to zero.
func New(action Action) *Wait {
	return &Wait{action: action}
}

// NewWithMessage creates a Wait that additionally carries an opaque
// message, inspectable by Queue.DestroyMatching's predicate.
func NewWithMessage(action Action, msg interface{}) *Wait {
	return &Wait{action: action, msg: msg}
}

// Message returns the opaque payload passed to NewWithMessage, if any.
func (w *Wait) Message() interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.msg
}

// OnError registers a callback invoked by PostError.
func (w *Wait) OnError(cb ErrorCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = cb
}

// PostError records errnum and invokes the registered error callback,
// if any. It does not affect usecount.
func (w *Wait) PostError(errnum int) {
	w.mu.Lock()
	cb := w.onError
	w.mu.Unlock()
	if cb != nil {
		cb(errnum)
	}
}

// addref increments usecount; called by Queue.Add.
func (w *Wait) addref() {
	w.mu.Lock()
	w.usecount++
	w.mu.Unlock()
}

// release decrements usecount and, if it reaches zero, clears the
// action first (so a second queue still holding this Wait will not
// re-run it) and then invokes it at most once.
func (w *Wait) release() {
	w.mu.Lock()
	w.usecount--
	fire := false
	var action Action
	if w.usecount <= 0 && !w.destroyed {
		w.destroyed = true
		action = w.action
		w.action = nil
		fire = action != nil
	}
	w.mu.Unlock()
	if fire {
		action()
	}
}

// clearAction removes the action without decrementing usecount, used
// by DestroyMatching to guarantee the predicate-selected Wait never
// fires even if some other queue still references it.
func (w *Wait) clearAction() {
	w.mu.Lock()
	w.action = nil
	w.mu.Unlock()
}

// Queue holds Waits suspended on one condition (e.g. a cache entry's
// "wait-valid" list). The zero value is ready to use.
type Queue struct {
	mu      sync.Mutex
	entries []*Wait
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue { return &Queue{} }

// Add appends wait to the queue and increments its usecount.
func (q *Queue) Add(w *Wait) {
	w.addref()
	q.mu.Lock()
	q.entries = append(q.entries, w)
	q.mu.Unlock()
}

// Len reports the number of entries currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Run atomically snapshots the queue, clears it, then releases each
// record. Waits enqueued by a released record's action (reentrant Add)
// are not processed by this call.
func (q *Queue) Run() {
	q.mu.Lock()
	snapshot := q.entries
	q.entries = nil
	q.mu.Unlock()

	for _, w := range snapshot {
		w.release()
	}
}

// Iter visits every currently queued Wait without removing any of them.
func (q *Queue) Iter(fn func(*Wait)) {
	q.mu.Lock()
	snapshot := make([]*Wait, len(q.entries))
	copy(snapshot, q.entries)
	q.mu.Unlock()

	for _, w := range snapshot {
		fn(w)
	}
}

// DestroyMatching removes every Wait whose message satisfies predicate,
// clears its action and decrements its usecount. The action never runs,
// from this queue or any other still holding the Wait — the record is
// simply dropped as a cancelled handler, not fired.
func (q *Queue) DestroyMatching(predicate func(msg interface{}) bool) {
	q.mu.Lock()
	var kept, matched []*Wait
	for _, w := range q.entries {
		if predicate(w.Message()) {
			matched = append(matched, w)
		} else {
			kept = append(kept, w)
		}
	}
	q.entries = kept
	q.mu.Unlock()

	for _, w := range matched {
		w.clearAction()
		w.release()
	}
}

// PostError invokes PostError on every currently queued Wait without
// removing them, matching set_errnum_on_valid/set_errnum_on_notdirty.
func (q *Queue) PostError(errnum int) {
	q.Iter(func(w *Wait) { w.PostError(errnum) })
}
