// Package buffer implements a bounded, line-aware FIFO byte stream: a
// circular buffer with at most one registered watermark/line callback,
// read-only latching, and borrowed-view peek/read semantics. Every
// mutation goes through a single path and callers never hold a
// borrowed view across a mutation, the same discipline a bucket-backed
// store would enforce around its records, applied here to a byte ring
// instead.
package buffer

import (
	"bytes"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// CallbackKind discriminates the single callback variant a Buffer may
// have registered at a time.
type CallbackKind int

const (
	CallbackNone CallbackKind = iota
	CallbackLowRead
	CallbackReadLine
	CallbackHighWrite
)

// Callback is invoked with the buffer that triggered it.
type Callback func(b *Buffer)

type callbackReg struct {
	kind CallbackKind
	low  int // LowRead threshold
	high int // HighWrite threshold
	fn   Callback
}

// Buffer is a fixed-capacity circular byte buffer with line awareness.
// The zero value is not usable; construct with New.
type Buffer struct {
	size     int
	data     []byte
	readPos  int // index of first valid byte, mod size
	count    int // number of valid bytes currently buffered
	readonly bool
	lines    int
	cb       callbackReg
}

// New creates a Buffer with the given maximum size in bytes.
func New(size int) *Buffer {
	return &Buffer{size: size, data: make([]byte, size)}
}

// Size returns the buffer's fixed capacity.
func (b *Buffer) Size() int { return b.size }

// Bytes returns the number of valid, unconsumed bytes in the buffer.
func (b *Buffer) Bytes() int { return b.count }

// Space returns the number of bytes that can still be written.
// bytes()+space() is invariant across any sequence of operations.
func (b *Buffer) Space() int { return b.size - b.count }

// Lines returns the count of '\n' bytes in the valid region.
func (b *Buffer) Lines() int { return b.lines }

// HasLine reports whether at least one complete line is buffered.
func (b *Buffer) HasLine() bool { return b.lines > 0 }

func (b *Buffer) idx(offset int) int {
	return (b.readPos + offset) % b.size
}

// Write appends data to the buffer.
func (b *Buffer) Write(data []byte) error {
	if b.readonly {
		return ferror.New(ferror.ReadOnly, "buffer is read-only")
	}
	if len(data) > b.Space() {
		return ferror.New(ferror.NoSpace, "need %d bytes, have %d", len(data), b.Space())
	}
	writePos := b.idx(b.count)
	for i, c := range data {
		b.data[(writePos+i)%b.size] = c
		if c == '\n' {
			b.lines++
		}
	}
	b.count += len(data)
	b.fireLowRead()
	b.fireReadLine()
	return nil
}

// WriteLine appends s followed by '\n', atomically: either the whole
// line is written or nothing is.
func (b *Buffer) WriteLine(s string) error {
	need := len(s) + 1
	if b.readonly {
		return ferror.New(ferror.ReadOnly, "buffer is read-only")
	}
	if need > b.Space() {
		return ferror.New(ferror.NoSpace, "need %d bytes, have %d", need, b.Space())
	}
	return b.Write(append([]byte(s), '\n'))
}

// Peek returns up to n bytes from the front of the buffer without
// consuming them. n<0 means "all available". The returned slice is a
// borrowed view valid until the next mutation; callers must not retain
// or free it across a subsequent Write/Read/Drop.
func (b *Buffer) Peek(n int) []byte {
	avail := b.count
	if n >= 0 && n < avail {
		avail = n
	}
	out := make([]byte, avail)
	for i := 0; i < avail; i++ {
		out[i] = b.data[b.idx(i)]
	}
	return out
}

// Read behaves like Peek but consumes the returned bytes, firing any
// registered HighWrite callback if the buffer falls below its
// watermark as a result.
func (b *Buffer) Read(n int) []byte {
	out := b.Peek(n)
	b.Drop(len(out))
	return out
}

// Drop discards up to n bytes from the front of the buffer (n<0 means
// "all available"), firing HighWrite if applicable.
func (b *Buffer) Drop(n int) int {
	avail := b.count
	if n >= 0 && n < avail {
		avail = n
	}
	for i := 0; i < avail; i++ {
		if b.data[b.idx(i)] == '\n' {
			b.lines--
		}
	}
	b.readPos = b.idx(avail)
	b.count -= avail
	b.fireHighWrite()
	return avail
}

// lineLen returns the byte length of the first complete line including
// its trailing '\n', or -1 if no complete line is buffered.
func (b *Buffer) lineLen() int {
	for i := 0; i < b.count; i++ {
		if b.data[b.idx(i)] == '\n' {
			return i + 1
		}
	}
	return -1
}

// PeekLine returns the first complete line, including its trailing
// '\n', without consuming it. Returns nil, false if no line is ready.
func (b *Buffer) PeekLine() ([]byte, bool) {
	n := b.lineLen()
	if n < 0 {
		return nil, false
	}
	return b.Peek(n), true
}

// ReadLine consumes and returns the first complete line, including its
// trailing '\n'.
func (b *Buffer) ReadLine() ([]byte, bool) {
	n := b.lineLen()
	if n < 0 {
		return nil, false
	}
	return b.Read(n), true
}

// PeekTrimmedLine is PeekLine with the trailing '\n' stripped.
func (b *Buffer) PeekTrimmedLine() ([]byte, bool) {
	line, ok := b.PeekLine()
	if !ok {
		return nil, false
	}
	return bytes.TrimSuffix(line, []byte{'\n'}), true
}

// ReadTrimmedLine is ReadLine with the trailing '\n' stripped; the
// newline is still consumed from the buffer.
func (b *Buffer) ReadTrimmedLine() ([]byte, bool) {
	line, ok := b.ReadLine()
	if !ok {
		return nil, false
	}
	return bytes.TrimSuffix(line, []byte{'\n'}), true
}

// DropLine discards through the next newline, including it. Returns
// false if no complete line is buffered (nothing is dropped).
func (b *Buffer) DropLine() bool {
	n := b.lineLen()
	if n < 0 {
		return false
	}
	b.Drop(n)
	return true
}

// ReadOnly permanently makes the buffer reject writers.
func (b *Buffer) ReadOnly() { b.readonly = true }

// IsReadOnly reports whether ReadOnly has been called.
func (b *Buffer) IsReadOnly() bool { return b.readonly }

// SetLowReadCallback arms fn to fire after a write once bytes() > low.
// Registering any variant while a different variant is already
// registered fails with EXISTS; pass a nil fn to clear.
func (b *Buffer) SetLowReadCallback(low int, fn Callback) error {
	return b.setCallback(callbackReg{kind: CallbackLowRead, low: low, fn: fn})
}

// SetReadLineCallback arms fn to fire after a write once a complete
// line is present.
func (b *Buffer) SetReadLineCallback(fn Callback) error {
	return b.setCallback(callbackReg{kind: CallbackReadLine, fn: fn})
}

// SetHighWriteCallback arms fn to fire after a read/drop once bytes() <
// high.
func (b *Buffer) SetHighWriteCallback(high int, fn Callback) error {
	return b.setCallback(callbackReg{kind: CallbackHighWrite, high: high, fn: fn})
}

func (b *Buffer) setCallback(reg callbackReg) error {
	if reg.fn == nil {
		b.cb = callbackReg{}
		return nil
	}
	if b.cb.kind != CallbackNone && b.cb.kind != reg.kind {
		return ferror.New(ferror.Exists, "a different callback variant is already registered")
	}
	b.cb = reg
	return nil
}

func (b *Buffer) fireLowRead() {
	if b.cb.kind == CallbackLowRead && b.count > b.cb.low {
		b.cb.fn(b)
	}
}

func (b *Buffer) fireReadLine() {
	if b.cb.kind == CallbackReadLine && b.HasLine() {
		b.cb.fn(b)
	}
}

func (b *Buffer) fireHighWrite() {
	if b.cb.kind == CallbackHighWrite && b.count < b.cb.high {
		b.cb.fn(b)
	}
}

// PeekToFD writes up to n bytes (n<0 means "all available") from the
// front of the buffer to fd without consuming them.
func (b *Buffer) PeekToFD(w interface{ Write([]byte) (int, error) }, n int) (int, error) {
	data := b.Peek(n)
	written, err := w.Write(data)
	return written, err
}

// ReadToFD writes up to n bytes from the front of the buffer to fd,
// consuming exactly the bytes successfully written.
func (b *Buffer) ReadToFD(w interface{ Write([]byte) (int, error) }, n int) (int, error) {
	data := b.Peek(n)
	written, err := w.Write(data)
	b.Drop(written)
	return written, err
}

// WriteFromFD reads up to n bytes from r (n<0 means "until space runs
// out") and appends them to the buffer.
func (b *Buffer) WriteFromFD(r interface{ Read([]byte) (int, error) }, n int) (int, error) {
	space := b.Space()
	if n >= 0 && n < space {
		space = n
	}
	if space == 0 {
		return 0, nil
	}
	tmp := make([]byte, space)
	got, err := r.Read(tmp)
	if got > 0 {
		if werr := b.Write(tmp[:got]); werr != nil {
			return 0, werr
		}
	}
	return got, err
}
