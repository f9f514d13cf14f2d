package node

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/switchml/switchio/pkg/control"
	"github.com/switchml/switchio/pkg/job"
	"github.com/switchml/switchio/pkg/packet"
)

// controlHandler answers control-plane calls from the node's session
// registry.
type controlHandler struct {
	n *Local
}

func (h *controlHandler) ReadMissingSlice(_ context.Context, req *control.MissingSliceRequest) (*control.MissingSliceResponse, error) {
	j, ok := h.n.sessions.lookup(job.Key{JobID: req.JobID, NodeID: req.NodeID})
	if !ok {
		return &control.MissingSliceResponse{State: control.StateUnknown}, nil
	}
	if j.Complete() {
		return &control.MissingSliceResponse{State: control.StateComplete}, nil
	}
	return &control.MissingSliceResponse{
		State:   control.StateIncomplete,
		Missing: j.MissingUpTo(req.MaxSegmentID, control.MaxSliceEntries),
	}, nil
}

func (h *controlHandler) Retransmission(_ context.Context, req *control.RetransmissionRequest) (*control.RetransmissionAck, error) {
	j, ok := h.n.sessions.lookup(job.Key{JobID: req.JobID, NodeID: req.NodeID})
	if !ok {
		return &control.RetransmissionAck{State: control.StateUnknown}, nil
	}

	// Validate everything before recording anything.
	payloads := make(map[uint32][]float32, len(req.Data))
	for id, raw := range req.Data {
		if uint64(id) >= uint64(j.Total()) {
			return nil, status.Errorf(codes.InvalidArgument, "segment %d out of range for %d segments", id, j.Total())
		}
		p, err := packet.DecodePayload(raw)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "segment %d: %v", id, err)
		}
		payloads[id] = p
	}

	ack := &control.RetransmissionAck{}
	for id, p := range payloads {
		added, err := h.n.record(j, id, p)
		if err != nil {
			if errors.Is(err, job.ErrSegmentRange) {
				return nil, status.Errorf(codes.InvalidArgument, "segment %d: %v", id, err)
			}
			return nil, status.Errorf(codes.Internal, "segment %d: %v", id, err)
		}
		if added {
			ack.Accepted++
		} else {
			ack.Duplicates++
		}
	}
	h.n.metrics.AddRetransmitted(int(ack.Accepted))

	ack.State = control.StateIncomplete
	if j.Complete() {
		ack.State = control.StateComplete
	}
	return ack, nil
}
