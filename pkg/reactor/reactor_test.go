package reactor

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/flux-framework/flux-core-go/pkg/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (r, w int) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReaderDeliversBytesOnReadable(t *testing.T) {
	rfd, wfd := pipe(t)
	buf := buffer.New(1 << 16)

	var delivered []byte
	reader := NewReader(rfd, buf, AnyBytes, func(r *Reader) {
		delivered = r.Buffer().Read(-1)
	})
	reader.Start()

	n, err := unix.Write(wfd, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	reader.OnReadable()
	assert.Equal(t, "hello", string(delivered))
}

func TestReaderLineModeWaitsForNewline(t *testing.T) {
	rfd, wfd := pipe(t)
	buf := buffer.New(1 << 16)

	fired := 0
	reader := NewReader(rfd, buf, LineAware, func(r *Reader) { fired++ })
	reader.Start()

	unix.Write(wfd, []byte("partial"))
	reader.OnReadable()
	assert.Equal(t, 0, fired, "no newline yet")

	unix.Write(wfd, []byte(" line\n"))
	reader.OnReadable()
	assert.Equal(t, 1, fired)
}

func TestReaderMarksEOFOnZeroRead(t *testing.T) {
	rfd, wfd := pipe(t)
	buf := buffer.New(1 << 16)

	reader := NewReader(rfd, buf, AnyBytes, func(r *Reader) {})
	reader.Start()

	unix.Close(wfd)
	reader.OnReadable()

	assert.True(t, reader.EOFSeen())
	assert.True(t, buf.IsReadOnly())
}

func TestWriterDrainsBufferToFD(t *testing.T) {
	rfd, wfd := pipe(t)
	buf := buffer.New(1 << 16)

	_, err := NewWriter(wfd, buf, nil)
	require.NoError(t, err)

	require.NoError(t, buf.Write([]byte("out")))

	got := make([]byte, 3)
	n, err := unix.Read(rfd, got)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "out", string(got))
}

func TestWriterClosesFDOnEOFRequestAfterDrain(t *testing.T) {
	rfd, wfd := pipe(t)
	buf := buffer.New(1 << 16)

	closed := false
	writer, err := NewWriter(wfd, buf, func(w *Writer) { closed = true })
	require.NoError(t, err)

	require.NoError(t, buf.Write([]byte("x")))
	got := make([]byte, 1)
	unix.Read(rfd, got)

	writer.RequestEOF()
	assert.True(t, closed)
}
