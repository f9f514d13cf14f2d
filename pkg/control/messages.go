// Package control implements the switchio control plane: a gRPC service a
// sender uses to ask a receiver which segments it is missing and to push the
// missing payloads back.
package control

import (
	"fmt"
	"slices"

	"github.com/switchml/switchio/pkg/swbuf"
)

// Allocation-bomb guards on collections read from the wire.
const (
	MaxSliceEntries      = 1 << 20
	MaxRetransmitEntries = 1 << 16
	maxPayloadBytes      = 1 << 16
)

// MaxMessageBytes is the gRPC send and receive limit on both ends. It holds
// MaxRetransmitEntries packet payloads, and a full missing slice with room
// to spare.
const MaxMessageBytes = 72 << 20

// RetransmitBatchBytes bounds the encoded payload bytes a sender puts in one
// RetransmissionRequest.
const RetransmitBatchBytes = 4 << 20

// State describes the receiver's view of a job.
type State uint8

const (
	// StateUnknown means the receiver has no such job: it was never begun or
	// has already been released.
	StateUnknown State = iota
	StateIncomplete
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateIncomplete:
		return "incomplete"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Message is implemented by every control-plane message.
type Message interface {
	Encode(buf *swbuf.Buffer)
	Decode(r *swbuf.Reader) error
}

// MissingSliceRequest asks which segments of job (JobID, NodeID) with ids in
// [0, MaxSegmentID] have not arrived.
type MissingSliceRequest struct {
	JobID        uint32
	NodeID       uint16
	MaxSegmentID uint32
}

func (m *MissingSliceRequest) Encode(buf *swbuf.Buffer) {
	buf.WriteUint32(m.JobID)
	buf.WriteUint16(m.NodeID)
	buf.WriteUint32(m.MaxSegmentID)
}

func (m *MissingSliceRequest) Decode(r *swbuf.Reader) error {
	var err error
	if m.JobID, err = r.ReadUint32(); err != nil {
		return err
	}
	if m.NodeID, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.MaxSegmentID, err = r.ReadUint32(); err != nil {
		return err
	}
	return nil
}

// MissingSliceResponse carries the ascending missing ids. Missing is empty
// unless State is StateIncomplete.
type MissingSliceResponse struct {
	State   State
	Missing []uint32
}

func (m *MissingSliceResponse) Encode(buf *swbuf.Buffer) {
	buf.WriteUint8(uint8(m.State))
	buf.WriteUint32List(m.Missing)
}

func (m *MissingSliceResponse) Decode(r *swbuf.Reader) error {
	s, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.State = State(s)
	if m.Missing, err = r.ReadUint32List(MaxSliceEntries); err != nil {
		return err
	}
	return nil
}

// RetransmissionRequest pushes segment payloads, keyed by segment id, in the
// packet payload encoding.
type RetransmissionRequest struct {
	JobID  uint32
	NodeID uint16
	Data   map[uint32][]byte
}

// Encode writes entries in ascending segment order so the encoding is
// deterministic.
func (m *RetransmissionRequest) Encode(buf *swbuf.Buffer) {
	buf.WriteUint32(m.JobID)
	buf.WriteUint16(m.NodeID)
	ids := make([]uint32, 0, len(m.Data))
	for id := range m.Data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	buf.WriteMapLen(uint32(len(ids)))
	for _, id := range ids {
		buf.WriteUint32(id)
		buf.WriteBytes(m.Data[id])
	}
}

func (m *RetransmissionRequest) Decode(r *swbuf.Reader) error {
	var err error
	if m.JobID, err = r.ReadUint32(); err != nil {
		return err
	}
	if m.NodeID, err = r.ReadUint16(); err != nil {
		return err
	}
	count, err := r.ReadMapLen()
	if err != nil {
		return err
	}
	if count > MaxRetransmitEntries {
		return fmt.Errorf("retransmission entries %d exceeds max %d", count, MaxRetransmitEntries)
	}
	m.Data = make(map[uint32][]byte, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.ReadUint32()
		if err != nil {
			return err
		}
		p, err := r.ReadBytes()
		if err != nil {
			return err
		}
		if len(p) > maxPayloadBytes {
			return fmt.Errorf("retransmission payload for segment %d is %d bytes", id, len(p))
		}
		m.Data[id] = p
	}
	return nil
}

// RetransmissionAck reports how the receiver applied a RetransmissionRequest.
type RetransmissionAck struct {
	State      State
	Accepted   uint32
	Duplicates uint32
}

func (m *RetransmissionAck) Encode(buf *swbuf.Buffer) {
	buf.WriteUint8(uint8(m.State))
	buf.WriteUint32(m.Accepted)
	buf.WriteUint32(m.Duplicates)
}

func (m *RetransmissionAck) Decode(r *swbuf.Reader) error {
	s, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.State = State(s)
	if m.Accepted, err = r.ReadUint32(); err != nil {
		return err
	}
	if m.Duplicates, err = r.ReadUint32(); err != nil {
		return err
	}
	return nil
}
