// Package reactor implements the buffered fd reactor: a reader/writer
// state machine that drives a pkg/buffer.Buffer from a file descriptor
// via prepare/check/idle/io watchers, in the shape of a libev-style
// event loop reworked around a single buffered fd instead of a
// network namespace's sockets. It uses golang.org/x/sys/unix for the
// raw read/write syscalls, since the buffer's contract is byte-exact
// and io.Reader's EOF signaling doesn't map cleanly onto watcher state
// transitions.
package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/flux-framework/flux-core-go/pkg/buffer"
	"github.com/flux-framework/flux-core-go/pkg/log"
)

var reactorLog = log.WithComponent("reactor")

var debugLevel int32

// SetDebugLevel sets the package-wide per-read/write diagnostic
// verbosity: 0 disables extra tracing, >=2 logs every read's and
// write's byte count.
func SetDebugLevel(n int) { atomic.StoreInt32(&debugLevel, int32(n)) }

func currentDebugLevel() int { return int(atomic.LoadInt32(&debugLevel)) }

// LineMode selects whether "data ready" means a complete line or any
// bytes at all, the Reader's Prepare rule.
type LineMode bool

const (
	AnyBytes  LineMode = false
	LineAware LineMode = true
)

// Reader drives a Buffer by reading an fd whenever it becomes
// readable, invoking a user callback once data (or EOF) is ready to
// consume.
type Reader struct {
	mu sync.Mutex

	fd       int
	buf      *buffer.Buffer
	lineMode LineMode
	onReady  func(*Reader)

	started  bool
	eofSeen  bool
	eofSent  bool
	closeErr error
}

// NewReader binds buf to fd. The reader starts stopped.
func NewReader(fd int, buf *buffer.Buffer, mode LineMode, onReady func(*Reader)) *Reader {
	return &Reader{fd: fd, buf: buf, lineMode: mode, onReady: onReady}
}

// Start arms the reader's IO watcher.
func (r *Reader) Start() {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
}

// Stop detaches the reader's watchers. The buffer and any data already
// read are retained.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
}

// Buffer returns the underlying buffer.
func (r *Reader) Buffer() *buffer.Buffer { return r.buf }

// EOFSeen reports whether the fd has reported EOF.
func (r *Reader) EOFSeen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eofSeen
}

// OnReadable is the IO-watcher callback: read into buf up to available
// space, mark read-only and record EOF on a zero-length read, then run
// Prepare/Check to decide whether to invoke onReady this tick.
func (r *Reader) OnReadable() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	space := r.buf.Space()
	r.mu.Unlock()

	if space == 0 {
		r.armHighWriteRestart()
		return
	}

	tmp := make([]byte, space)
	n, err := unix.Read(r.fd, tmp)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		r.mu.Lock()
		r.eofSeen = true
		r.closeErr = err
		r.mu.Unlock()
		r.buf.ReadOnly()
		r.Stop()
		r.runPrepareCheck()
		return
	}
	if n == 0 {
		r.mu.Lock()
		r.eofSeen = true
		r.mu.Unlock()
		r.buf.ReadOnly()
		r.Stop()
		r.runPrepareCheck()
		return
	}
	_ = r.buf.Write(tmp[:n])
	if currentDebugLevel() >= 2 {
		reactorLog.Debug().Int("fd", r.fd).Int("n", n).Msg("reader fd read")
	}
	if r.buf.Space() == 0 {
		r.armHighWriteRestart()
	}
	r.runPrepareCheck()
}

// armHighWriteRestart re-arms the IO watcher once space reappears in a
// full buffer (a read/drop leaves fewer than Size bytes).
func (r *Reader) armHighWriteRestart() {
	_ = r.buf.SetHighWriteCallback(r.buf.Size(), func(*buffer.Buffer) {
		r.Start()
	})
}

// prepareReady implements the Prepare rule: a complete line in line
// mode, any bytes otherwise, or unreported EOF.
func (r *Reader) prepareReady() bool {
	r.mu.Lock()
	eofUnreported := r.eofSeen && !r.eofSent
	r.mu.Unlock()
	if eofUnreported {
		return true
	}
	if r.lineMode {
		return r.buf.HasLine()
	}
	return r.buf.Bytes() > 0
}

// runPrepareCheck is the prepare->idle->check->callback sequence
// collapsed into one synchronous call, since this reactor has no
// separate event-loop tick to defer to.
func (r *Reader) runPrepareCheck() {
	if !r.prepareReady() {
		return
	}
	r.mu.Lock()
	finalPass := r.eofSeen && r.buf.Bytes() == 0
	if finalPass {
		r.eofSent = true
	}
	r.mu.Unlock()
	if r.onReady != nil {
		r.onReady(r)
	}
}

// CloseError returns the errno captured from a failed read, if any.
func (r *Reader) CloseError() error { return r.closeErr }

// Writer drives buf's contents out to fd whenever data appears,
// closing fd once drained and EOF has been requested.
type Writer struct {
	mu sync.Mutex

	fd         int
	buf        *buffer.Buffer
	onClosed   func(*Writer)
	eofRequest bool
	closeErr   error
	started    bool
}

// NewWriter binds buf to fd. The writer starts stopped and arms itself
// via the buffer's LOW_READ callback once data appears.
func NewWriter(fd int, buf *buffer.Buffer, onClosed func(*Writer)) (*Writer, error) {
	w := &Writer{fd: fd, buf: buf, onClosed: onClosed}
	if err := buf.SetLowReadCallback(0, func(*buffer.Buffer) {
		w.Start()
	}); err != nil {
		return nil, err
	}
	return w, nil
}

// Start arms the writer's IO-write watcher and drains what's
// currently buffered.
func (w *Writer) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	w.drain()
}

// Stop detaches the writer until data reappears.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
}

// RequestEOF marks that fd should be closed once the buffer drains.
func (w *Writer) RequestEOF() {
	w.mu.Lock()
	w.eofRequest = true
	w.started = true
	w.mu.Unlock()
	w.drain()
}

func (w *Writer) drain() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	for w.buf.Bytes() > 0 {
		chunk := w.buf.Peek(-1)
		n, err := unix.Write(w.fd, chunk)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return
			}
			reactorLog.Error().Err(err).Msg("writer fd write failed")
			w.mu.Lock()
			w.closeErr = err
			w.mu.Unlock()
			break
		}
		if n == 0 {
			return
		}
		if currentDebugLevel() >= 2 {
			reactorLog.Debug().Int("fd", w.fd).Int("n", n).Msg("writer fd write")
		}
		w.buf.Read(n)
	}

	w.mu.Lock()
	empty := w.buf.Bytes() == 0
	eofReq := w.eofRequest
	w.mu.Unlock()

	if empty && eofReq {
		err := unix.Close(w.fd)
		w.mu.Lock()
		if err != nil && w.closeErr == nil {
			w.closeErr = err
		}
		closeErr := w.closeErr
		w.mu.Unlock()
		if w.onClosed != nil {
			w.onClosed(w)
		}
		_ = closeErr
		return
	}
	if empty {
		w.Stop()
	}
}

// CloseError returns the errno captured while closing fd, if any.
func (w *Writer) CloseError() error { return w.closeErr }
