package swbuf

import (
	"bytes"
	"errors"
	"testing"
)

func TestIntegerRoundTrip(t *testing.T) {
	buf := NewBuffer(4)
	buf.WriteUint8(0xAB)
	buf.WriteUint16(0xFFFF)
	buf.WriteUint32(1000000)
	buf.WriteUint64(1 << 40)

	r := NewReader(buf.Bytes())
	u8, err := r.ReadUint8()
	if err != nil || u8 != 0xAB {
		t.Fatalf("ReadUint8 = %d, %v", u8, err)
	}
	u16, err := r.ReadUint16()
	if err != nil || u16 != 0xFFFF {
		t.Fatalf("ReadUint16 = %d, %v", u16, err)
	}
	u32, err := r.ReadUint32()
	if err != nil || u32 != 1000000 {
		t.Fatalf("ReadUint32 = %d, %v", u32, err)
	}
	u64, err := r.ReadUint64()
	if err != nil || u64 != 1<<40 {
		t.Fatalf("ReadUint64 = %d, %v", u64, err)
	}
	if err := r.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestLittleEndianLayout(t *testing.T) {
	buf := NewBuffer(4)
	buf.WriteUint32(0x01020304)
	if want := []byte{0x04, 0x03, 0x02, 0x01}; !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = %x, want %x", buf.Bytes(), want)
	}
}

func TestBytesAndListRoundTrip(t *testing.T) {
	buf := NewBuffer(0)
	buf.WriteBytes([]byte("payload"))
	buf.WriteBytes(nil)
	buf.WriteUint32List([]uint32{3, 7, 11})

	r := NewReader(buf.Bytes())
	p, err := r.ReadBytes()
	if err != nil || string(p) != "payload" {
		t.Fatalf("ReadBytes = %q, %v", p, err)
	}
	empty, err := r.ReadBytes()
	if err != nil || len(empty) != 0 {
		t.Fatalf("ReadBytes(empty) = %q, %v", empty, err)
	}
	list, err := r.ReadUint32List(16)
	if err != nil {
		t.Fatalf("ReadUint32List: %v", err)
	}
	if len(list) != 3 || list[0] != 3 || list[1] != 7 || list[2] != 11 {
		t.Errorf("list = %v, want [3 7 11]", list)
	}
}

func TestReadBytesCopies(t *testing.T) {
	buf := NewBuffer(0)
	buf.WriteBytes([]byte{1, 2, 3})
	raw := buf.Bytes()

	p, err := NewReader(raw).ReadBytes()
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	raw[4] = 99
	if p[0] != 1 {
		t.Errorf("ReadBytes result aliases the input buffer")
	}
}

func TestShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadUint32 on 2 bytes: got %v, want ErrShortBuffer", err)
	}

	// Declared length larger than what follows.
	buf := NewBuffer(0)
	buf.WriteUint32(1000)
	buf.WriteUint8(1)
	if _, err := NewReader(buf.Bytes()).ReadBytes(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadBytes with oversized length: got %v, want ErrShortBuffer", err)
	}
}

func TestListLengthCap(t *testing.T) {
	buf := NewBuffer(0)
	buf.WriteUint32List(make([]uint32, 10))
	if _, err := NewReader(buf.Bytes()).ReadUint32List(4); err == nil {
		t.Error("expected error for list exceeding max, got nil")
	}
}

func TestTrailingData(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.ReadUint8(); err != nil {
		t.Fatalf("ReadUint8: %v", err)
	}
	if err := r.Finish(); !errors.Is(err, ErrTrailingData) {
		t.Errorf("Finish: got %v, want ErrTrailingData", err)
	}
}

func TestZeroBufferAndFailedReadConsumesNothing(t *testing.T) {
	var buf Buffer
	buf.WriteUint16(0x0102)
	if buf.Len() != 2 {
		t.Fatalf("Len = %d, want 2", buf.Len())
	}

	r := NewReader(buf.Bytes())
	if _, err := r.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("ReadUint32: got %v, want ErrShortBuffer", err)
	}
	if r.Remaining() != 2 {
		t.Errorf("Remaining after failed read = %d, want 2", r.Remaining())
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x0102 {
		t.Errorf("ReadUint16 = %#x, %v", v, err)
	}
}
