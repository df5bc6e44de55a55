package wait

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunFiresOnceAcrossTwoQueues(t *testing.T) {
	fired := 0
	w := New(func() { fired++ })

	qa := NewQueue()
	qb := NewQueue()
	qa.Add(w)
	qb.Add(w)

	qa.Run()
	assert.Equal(t, 0, fired, "action must not fire until the last queue releases it")
	assert.Equal(t, 0, qa.Len())

	qb.Run()
	assert.Equal(t, 1, fired)
}

func TestQueueRunIgnoresReentrantAdds(t *testing.T) {
	q := NewQueue()
	var second *Wait
	fired := 0
	first := New(func() {
		fired++
		second = New(func() { fired++ })
		q.Add(second)
	})
	q.Add(first)

	q.Run()
	require.Equal(t, 1, fired)
	assert.Equal(t, 1, q.Len(), "the reentrant add must survive the snapshot-and-clear")

	q.Run()
	assert.Equal(t, 2, fired)
}

func TestDestroyMatchingSkipsAction(t *testing.T) {
	q := NewQueue()
	fired := false
	w := NewWithMessage(func() { fired = true }, "topic-a")
	q.Add(w)

	q.DestroyMatching(func(msg interface{}) bool { return msg == "topic-a" })

	assert.False(t, fired, "a destroyed wait must never run its action")
	assert.Equal(t, 0, q.Len())
}

func TestDestroyMatchingLeavesNonMatching(t *testing.T) {
	q := NewQueue()
	w1 := NewWithMessage(func() {}, "keep")
	w2 := NewWithMessage(func() {}, "drop")
	q.Add(w1)
	q.Add(w2)

	q.DestroyMatching(func(msg interface{}) bool { return msg == "drop" })

	assert.Equal(t, 1, q.Len())
	q.Iter(func(w *Wait) {
		assert.Equal(t, "keep", w.Message())
	})
}

func TestPostErrorInvokesCallback(t *testing.T) {
	q := NewQueue()
	var gotErrno int
	w := New(func() {})
	w.OnError(func(errnum int) { gotErrno = errnum })
	q.Add(w)

	q.PostError(42)

	assert.Equal(t, 42, gotErrno)
	assert.Equal(t, 1, q.Len(), "PostError must not remove waiters")
}
