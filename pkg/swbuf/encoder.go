// Package swbuf implements the compact binary encoding used by switchio
// control-plane messages. Integers are little-endian; byte slices and lists
// carry a uint32 length prefix.
package swbuf

import "encoding/binary"

var le = binary.LittleEndian

// Buffer accumulates an encoded message. The zero value is ready to use.
type Buffer struct {
	b []byte
}

// NewBuffer returns a Buffer with room for size bytes before it reallocates.
func NewBuffer(size int) *Buffer {
	return &Buffer{b: make([]byte, 0, size)}
}

// Bytes returns the encoded message. It aliases the Buffer until Reset.
func (b *Buffer) Bytes() []byte { return b.b }

func (b *Buffer) Len() int { return len(b.b) }

// Reset empties the Buffer, keeping its storage.
func (b *Buffer) Reset() { b.b = b.b[:0] }

func (b *Buffer) WriteUint8(v uint8)   { b.b = append(b.b, v) }
func (b *Buffer) WriteUint16(v uint16) { b.b = le.AppendUint16(b.b, v) }
func (b *Buffer) WriteUint32(v uint32) { b.b = le.AppendUint32(b.b, v) }
func (b *Buffer) WriteUint64(v uint64) { b.b = le.AppendUint64(b.b, v) }

// WriteBytes appends p behind its uint32 length.
func (b *Buffer) WriteBytes(p []byte) {
	b.WriteUint32(uint32(len(p)))
	b.b = append(b.b, p...)
}

// WriteUint32List appends vs behind its uint32 element count.
func (b *Buffer) WriteUint32List(vs []uint32) {
	b.WriteUint32(uint32(len(vs)))
	b.b = growTo(b.b, len(b.b)+4*len(vs))
	for _, v := range vs {
		b.b = le.AppendUint32(b.b, v)
	}
}

// WriteMapLen writes the entry count of a map. Entries follow, each written
// by the caller as key then value.
func (b *Buffer) WriteMapLen(count uint32) {
	b.WriteUint32(count)
}

// growTo makes sure p can hold n bytes without another allocation.
func growTo(p []byte, n int) []byte {
	if n <= cap(p) {
		return p
	}
	out := make([]byte, len(p), n)
	copy(out, p)
	return out
}
