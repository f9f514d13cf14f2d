package swbuf

import (
	"errors"
	"fmt"
)

var (
	ErrShortBuffer  = errors.New("swbuf: insufficient data in buffer")
	ErrTrailingData = errors.New("swbuf: trailing data after message")
)

// Reader decodes a message front to back. Every read either consumes
// exactly the bytes it needs or fails with ErrShortBuffer and consumes none.
type Reader struct {
	rest []byte
}

func NewReader(data []byte) *Reader {
	return &Reader{rest: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.rest)
}

// Finish reports ErrTrailingData if the message did not consume every byte.
func (r *Reader) Finish() error {
	if n := len(r.rest); n != 0 {
		return fmt.Errorf("%w (%d bytes)", ErrTrailingData, n)
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.rest) {
		return nil, ErrShortBuffer
	}
	p := r.rest[:n:n]
	r.rest = r.rest[n:]
	return p, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	p, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	p, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return le.Uint16(p), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return le.Uint32(p), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	p, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return le.Uint64(p), nil
}

// ReadBytes reads a length-prefixed byte slice. The result is a copy and
// outlives the Reader's input.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	p, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), p...), nil
}

// ReadUint32List reads a list of at most max elements. The count is checked
// against max and against the remaining input before anything is allocated.
func (r *Reader) ReadUint32List(max uint32) ([]uint32, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if count > max {
		return nil, fmt.Errorf("swbuf: list length %d exceeds max %d", count, max)
	}
	p, err := r.take(4 * int(count))
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = le.Uint32(p[4*i:])
	}
	return out, nil
}

// ReadMapLen reads the entry count written by WriteMapLen.
func (r *Reader) ReadMapLen() (uint32, error) {
	return r.ReadUint32()
}
