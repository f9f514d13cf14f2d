// Package packet defines the switchio datagram wire format: a fixed 20-byte
// header carrying routing and aggregation metadata followed by a fixed-width
// vector of float32 values.
//
// Frame layout on the wire (all integers big-endian):
//
//	[1B flow control][1B data type][2B node id][4B job id][4B segment id]
//	[2B aggregate num][2B multicast group][2B pool id][2B reserved]
//	[VectorLen x 4B float32 payload]
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire constants.
const (
	HeaderSize  = 20
	VectorLen   = 256
	PayloadSize = VectorLen * 4
	Size        = HeaderSize + PayloadSize

	// PoolSize is the number of switch-side aggregator pools. The pool id of
	// every packet is segment_id mod PoolSize.
	PoolSize = 256
)

// Flow-control bits.
const (
	// FlagBypass asks the switch to forward the packet without aggregating it.
	FlagBypass uint8 = 0x01
)

// DataType identifies the element type of the payload vector.
type DataType uint8

const (
	DataTypeFloat32 DataType = 0x01
)

func (d DataType) String() string {
	switch d {
	case DataTypeFloat32:
		return "FLOAT32"
	default:
		return fmt.Sprintf("DataType(0x%02x)", uint8(d))
	}
}

func (d DataType) valid() bool {
	return d == DataTypeFloat32
}

var (
	ErrLength          = errors.New("switchio packet: length mismatch")
	ErrPayloadLength   = errors.New("switchio packet: payload must have exactly 256 elements")
	ErrUnknownDataType = errors.New("switchio packet: unknown data type")
)

// Header holds the per-packet routing and aggregation metadata.
type Header struct {
	FlowControl    uint8
	DataType       DataType
	NodeID         uint16
	JobID          uint32
	SegmentID      uint32
	AggregateNum   uint16
	MulticastGroup uint16
	// PoolID is derived from SegmentID when the header is encoded. Values set
	// by callers are ignored.
	PoolID uint16
}

// Bypass reports whether the bypass-aggregation flag is set.
func (h Header) Bypass() bool {
	return h.FlowControl&FlagBypass != 0
}

// PoolFor returns the switch pool id for a segment.
func PoolFor(segmentID uint32) uint16 {
	return uint16(segmentID % PoolSize)
}

// Packet is a finalized datagram. The wire bytes are produced once at
// construction so the sender can retain the packet for retransmission.
type Packet struct {
	Header  Header
	Payload []float32
	raw     []byte
}

// New builds a Packet, serialising the header before the payload.
func New(h Header, payload []float32) (*Packet, error) {
	raw, err := Encode(h, payload)
	if err != nil {
		return nil, err
	}
	h.PoolID = PoolFor(h.SegmentID)
	p := make([]float32, VectorLen)
	copy(p, payload)
	return &Packet{Header: h, Payload: p, raw: raw}, nil
}

// Bytes returns the full wire encoding. Callers must not modify it.
func (p *Packet) Bytes() []byte {
	return p.raw
}

// PayloadBytes returns the payload section of the wire encoding.
func (p *Packet) PayloadBytes() []byte {
	return p.raw[HeaderSize:]
}

// Encode serialises h and payload into a new Size-byte slice.
func Encode(h Header, payload []float32) ([]byte, error) {
	if !h.DataType.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataType, h.DataType)
	}
	if len(payload) != VectorLen {
		return nil, fmt.Errorf("%w (got %d)", ErrPayloadLength, len(payload))
	}
	buf := make([]byte, Size)
	putHeader(buf, h)
	putPayload(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode parses a complete datagram. The input must be exactly Size bytes.
func Decode(b []byte) (Header, []float32, error) {
	if len(b) != Size {
		return Header{}, nil, fmt.Errorf("%w: got %d bytes, want %d", ErrLength, len(b), Size)
	}
	h := Header{
		FlowControl:    b[0],
		DataType:       DataType(b[1]),
		NodeID:         binary.BigEndian.Uint16(b[2:4]),
		JobID:          binary.BigEndian.Uint32(b[4:8]),
		SegmentID:      binary.BigEndian.Uint32(b[8:12]),
		AggregateNum:   binary.BigEndian.Uint16(b[12:14]),
		MulticastGroup: binary.BigEndian.Uint16(b[14:16]),
		PoolID:         binary.BigEndian.Uint16(b[16:18]),
	}
	if !h.DataType.valid() {
		return Header{}, nil, fmt.Errorf("%w: %s", ErrUnknownDataType, h.DataType)
	}
	return h, readPayload(b[HeaderSize:]), nil
}

// EncodePayload serialises only the payload section.
func EncodePayload(payload []float32) ([]byte, error) {
	if len(payload) != VectorLen {
		return nil, fmt.Errorf("%w (got %d)", ErrPayloadLength, len(payload))
	}
	buf := make([]byte, PayloadSize)
	putPayload(buf, payload)
	return buf, nil
}

// DecodePayload parses a payload section produced by EncodePayload or
// Packet.PayloadBytes.
func DecodePayload(b []byte) ([]float32, error) {
	if len(b) != PayloadSize {
		return nil, fmt.Errorf("%w: payload got %d bytes, want %d", ErrLength, len(b), PayloadSize)
	}
	return readPayload(b), nil
}

func putHeader(b []byte, h Header) {
	b[0] = h.FlowControl
	b[1] = uint8(h.DataType)
	binary.BigEndian.PutUint16(b[2:4], h.NodeID)
	binary.BigEndian.PutUint32(b[4:8], h.JobID)
	binary.BigEndian.PutUint32(b[8:12], h.SegmentID)
	binary.BigEndian.PutUint16(b[12:14], h.AggregateNum)
	binary.BigEndian.PutUint16(b[14:16], h.MulticastGroup)
	binary.BigEndian.PutUint16(b[16:18], PoolFor(h.SegmentID))
	b[18], b[19] = 0, 0
}

func putPayload(b []byte, payload []float32) {
	for i, v := range payload {
		binary.BigEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
}

func readPayload(b []byte) []float32 {
	out := make([]float32, VectorLen)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(b[4*i:]))
	}
	return out
}
