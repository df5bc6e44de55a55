package buffer

import (
	"testing"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLimitNoSpace(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Write([]byte("1234")))

	err := b.Write([]byte("5"))
	require.Error(t, err)
	kind, ok := ferror.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferror.NoSpace, kind)

	err = b.WriteLine("1234")
	require.Error(t, err)
	kind, ok = ferror.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferror.NoSpace, kind)
}

func TestLineCallbackFiresOnceOnCompleteLine(t *testing.T) {
	b := New(1 << 20)
	fired := 0
	require.NoError(t, b.SetReadLineCallback(func(*Buffer) { fired++ }))

	require.NoError(t, b.Write([]byte("foo")))
	assert.Equal(t, 0, fired, "no complete line yet")

	require.NoError(t, b.Write([]byte("bar\n")))
	assert.Equal(t, 1, fired)

	line, ok := b.ReadLine()
	require.True(t, ok)
	assert.Equal(t, "foobar\n", string(line))
	assert.Equal(t, 7, len(line))
	assert.Equal(t, 0, b.Bytes())
	assert.Equal(t, 0, b.Lines())
}

func TestBufferConservation(t *testing.T) {
	b := New(16)
	require.NoError(t, b.Write([]byte("hello")))
	assert.Equal(t, b.Size(), b.Bytes()+b.Space())

	got := b.Read(5)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, b.Size(), b.Bytes()+b.Space())
}

func TestReadTrimmedLineDropsNewlineButStripsIt(t *testing.T) {
	b := New(64)
	require.NoError(t, b.WriteLine("hi"))

	line, ok := b.ReadTrimmedLine()
	require.True(t, ok)
	assert.Equal(t, "hi", string(line))
	assert.Equal(t, 0, b.Bytes())
}

func TestDropLineDropsThroughNewline(t *testing.T) {
	b := New(64)
	require.NoError(t, b.Write([]byte("aaa\nbbb")))
	ok := b.DropLine()
	require.True(t, ok)
	assert.Equal(t, "bbb", string(b.Peek(-1)))
}

func TestReadOnlyRejectsWriters(t *testing.T) {
	b := New(16)
	b.ReadOnly()
	err := b.Write([]byte("x"))
	require.Error(t, err)
	kind, _ := ferror.KindOf(err)
	assert.Equal(t, ferror.ReadOnly, kind)
}

func TestHighWriteFiresBelowWatermarkAfterRead(t *testing.T) {
	b := New(16)
	fired := 0
	require.NoError(t, b.SetHighWriteCallback(8, func(*Buffer) { fired++ }))
	require.NoError(t, b.Write([]byte("0123456789abcde"))) // 15 bytes, above watermark
	assert.Equal(t, 0, fired)

	b.Read(10) // now 5 bytes remain, below watermark of 8
	assert.Equal(t, 1, fired)
}

func TestSecondDifferentCallbackVariantFails(t *testing.T) {
	b := New(16)
	require.NoError(t, b.SetReadLineCallback(func(*Buffer) {}))
	err := b.SetHighWriteCallback(1, func(*Buffer) {})
	require.Error(t, err)
	kind, _ := ferror.KindOf(err)
	assert.Equal(t, ferror.Exists, kind)
}

func TestWraparound(t *testing.T) {
	b := New(8)
	require.NoError(t, b.Write([]byte("abcd")))
	b.Drop(4)
	require.NoError(t, b.Write([]byte("efghijkl")))
	assert.Equal(t, "efghijkl", string(b.Peek(-1)))
}
