// Package wire implements the NAN wire codec: a cursor-style byte buffer
// with sticky-error semantics, and the 802.11 + radiotap + NAN TLV framing
// built on top of it.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShort is the sticky error recorded the first time a read or write
// would run past the end of the buffer's working window.
var ErrShort = errors.New("wire: buffer too short")

// Buffer is a cursor over a byte slice. Reads consume from the front of
// the window; writes append past the back. Once an out-of-range access
// occurs, Err is latched and every subsequent operation becomes a no-op,
// letting a parser run every field to completion and check the sticky
// error once at the end rather than threading an error return through
// every call site.
type Buffer struct {
	buf      []byte
	off      int // read cursor
	borrowed bool
	err      error
}

// NewOwned allocates a fresh buffer of the given capacity, empty, for
// building a frame up with writes.
func NewOwned(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// NewCopying allocates a buffer and copies src into it; the caller may
// reuse or discard src afterward.
func NewCopying(src []byte) *Buffer {
	b := make([]byte, len(src))
	copy(b, src)
	return &Buffer{buf: b}
}

// NewBorrowing wraps src without copying. The returned Buffer must not be
// used for writes that could reallocate; it exists for read-only parsing
// of frames owned by the radio I/O layer.
func NewBorrowing(src []byte) *Buffer {
	return &Buffer{buf: src, borrowed: true}
}

// Err returns the first sticky error recorded, or nil.
func (b *Buffer) Err() error { return b.err }

// Len returns the number of unread bytes remaining in the window.
func (b *Buffer) Len() int { return len(b.buf) - b.off }

// Bytes returns the unread remainder of the window. Valid only until the
// next write.
func (b *Buffer) Bytes() []byte { return b.buf[b.off:] }

// All returns the entire backing buffer regardless of read position.
func (b *Buffer) All() []byte { return b.buf }

func (b *Buffer) fail() {
	if b.err == nil {
		b.err = ErrShort
	}
}

func (b *Buffer) need(n int) bool {
	if b.err != nil {
		return false
	}
	if b.Len() < n {
		b.fail()
		return false
	}
	return true
}

// Advance moves the read cursor forward n bytes without returning them.
func (b *Buffer) Advance(n int) {
	if !b.need(n) {
		return
	}
	b.off += n
}

// Strip removes n bytes from the front of the window permanently,
// compacting the backing slice's logical start. Unlike Advance it is
// meant to be called once, at the top of a sub-parser, to hand the
// remainder to a nested decoder.
func (b *Buffer) Strip(n int) {
	if !b.need(n) {
		return
	}
	b.buf = b.buf[b.off+n:]
	b.off = 0
}

// Take removes n bytes from the back of the window (used to strip a
// trailing FCS before parsing the body).
func (b *Buffer) Take(n int) {
	if b.err != nil {
		return
	}
	if b.Len() < n {
		b.fail()
		return
	}
	b.buf = b.buf[:len(b.buf)-n]
}

// Resize truncates the working window to exactly n unread bytes, failing
// if n exceeds the number of unread bytes.
func (b *Buffer) Resize(n int) {
	if !b.need(n) {
		return
	}
	b.buf = b.buf[:b.off+n]
}

// ReadU8 reads one byte.
func (b *Buffer) ReadU8() uint8 {
	if !b.need(1) {
		return 0
	}
	v := b.buf[b.off]
	b.off++
	return v
}

// ReadU16LE reads a little-endian uint16.
func (b *Buffer) ReadU16LE() uint16 {
	if !b.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(b.buf[b.off:])
	b.off += 2
	return v
}

// ReadU16BE reads a big-endian uint16.
func (b *Buffer) ReadU16BE() uint16 {
	if !b.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(b.buf[b.off:])
	b.off += 2
	return v
}

// ReadU32LE reads a little-endian uint32.
func (b *Buffer) ReadU32LE() uint32 {
	if !b.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(b.buf[b.off:])
	b.off += 4
	return v
}

// ReadU32BE reads a big-endian uint32.
func (b *Buffer) ReadU32BE() uint32 {
	if !b.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(b.buf[b.off:])
	b.off += 4
	return v
}

// ReadU64LE reads a little-endian uint64.
func (b *Buffer) ReadU64LE() uint64 {
	if !b.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(b.buf[b.off:])
	b.off += 8
	return v
}

// ReadU64BE reads a big-endian uint64.
func (b *Buffer) ReadU64BE() uint64 {
	if !b.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(b.buf[b.off:])
	b.off += 8
	return v
}

// ReadEther reads a 6-byte hardware address.
func (b *Buffer) ReadEther() EtherAddr {
	var a EtherAddr
	if !b.need(6) {
		return a
	}
	copy(a[:], b.buf[b.off:b.off+6])
	b.off += 6
	return a
}

// ReadRaw reads n raw bytes. The returned slice aliases the backing
// buffer and must be copied by the caller if retained past the next
// mutation.
func (b *Buffer) ReadRaw(n int) []byte {
	if !b.need(n) {
		return nil
	}
	v := b.buf[b.off : b.off+n]
	b.off += n
	return v
}

// WriteU8 appends one byte.
func (b *Buffer) WriteU8(v uint8) {
	if b.err != nil {
		return
	}
	b.buf = append(b.buf, v)
}

// WriteU16LE appends a little-endian uint16.
func (b *Buffer) WriteU16LE(v uint16) {
	if b.err != nil {
		return
	}
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
}

// WriteU16BE appends a big-endian uint16.
func (b *Buffer) WriteU16BE(v uint16) {
	if b.err != nil {
		return
	}
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
}

// WriteU32LE appends a little-endian uint32.
func (b *Buffer) WriteU32LE(v uint32) {
	if b.err != nil {
		return
	}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

// WriteU32BE appends a big-endian uint32.
func (b *Buffer) WriteU32BE(v uint32) {
	if b.err != nil {
		return
	}
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
}

// WriteU64LE appends a little-endian uint64.
func (b *Buffer) WriteU64LE(v uint64) {
	if b.err != nil {
		return
	}
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
}

// WriteU64BE appends a big-endian uint64.
func (b *Buffer) WriteU64BE(v uint64) {
	if b.err != nil {
		return
	}
	b.buf = binary.BigEndian.AppendUint64(b.buf, v)
}

// WriteEther appends a 6-byte hardware address.
func (b *Buffer) WriteEther(a EtherAddr) {
	if b.err != nil {
		return
	}
	b.buf = append(b.buf, a[:]...)
}

// WriteRaw appends raw bytes verbatim.
func (b *Buffer) WriteRaw(p []byte) {
	if b.err != nil {
		return
	}
	b.buf = append(b.buf, p...)
}
