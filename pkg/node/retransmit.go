package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/switchml/switchio/pkg/control"
	"github.com/switchml/switchio/pkg/packet"
)

// CheckAndRetransmit asks peer which segments of jobID it is missing and
// pushes exactly those payloads from sent over the control plane, in batches
// of at most control.RetransmitBatchBytes. A missing list cut at
// control.MaxSliceEntries is asked for again once its batches are pushed. It
// returns the wall-clock time the exchange took. RPC errors are returned
// without retrying; a peer that does not track the job yields
// ErrPeerJobUnknown.
func (n *Local) CheckAndRetransmit(ctx context.Context, peer *Remote, jobID uint32, sent []*packet.Packet) (time.Duration, error) {
	start := time.Now()
	if len(sent) == 0 {
		return 0, errors.New("switchio node: check and retransmit: no packets sent")
	}
	peerID := peer.Identity().NodeID

	bySegment := make(map[uint32]*packet.Packet, len(sent))
	for _, p := range sent {
		bySegment[p.Header.SegmentID] = p
	}

	var missing, accepted, duplicates, batches int
	state := control.StateIncomplete
	for {
		resp, err := peer.ReadMissingSlice(ctx, jobID, n.id.NodeID, uint32(len(sent)-1))
		if err != nil {
			return time.Since(start), err
		}
		if resp.State == control.StateUnknown {
			return time.Since(start), fmt.Errorf("%w: job %d on node %d", ErrPeerJobUnknown, jobID, peerID)
		}
		if resp.State == control.StateComplete || len(resp.Missing) == 0 {
			state = resp.State
			break
		}
		missing += len(resp.Missing)

		roundAccepted := 0
		for rest := resp.Missing; len(rest) > 0; {
			var data map[uint32][]byte
			data, rest, err = nextBatch(rest, bySegment)
			if err != nil {
				return time.Since(start), err
			}
			ack, err := peer.Retransmission(ctx, jobID, n.id.NodeID, data)
			if err != nil {
				return time.Since(start), err
			}
			if ack.State == control.StateUnknown {
				return time.Since(start), fmt.Errorf("%w: job %d released on node %d", ErrPeerJobUnknown, jobID, peerID)
			}
			batches++
			roundAccepted += int(ack.Accepted)
			duplicates += int(ack.Duplicates)
			state = ack.State
		}
		accepted += roundAccepted

		if len(resp.Missing) < control.MaxSliceEntries || state == control.StateComplete {
			break
		}
		if roundAccepted == 0 {
			return time.Since(start), fmt.Errorf("switchio node: retransmission of job %d to node %d made no progress", jobID, peerID)
		}
	}

	elapsed := time.Since(start)
	n.metrics.ObserveRetransmit(elapsed)
	if missing > 0 {
		n.log.Info("retransmitted",
			zap.Uint32("job_id", jobID),
			zap.Uint16("peer", peerID),
			zap.Int("missing", missing),
			zap.Int("batches", batches),
			zap.Int("accepted", accepted),
			zap.Int("duplicates", duplicates),
			zap.Stringer("state", state),
			zap.Duration("elapsed", elapsed))
	}
	return elapsed, nil
}

// nextBatch takes ids from the front of missing until the batch reaches
// control.RetransmitBatchBytes or control.MaxRetransmitEntries. It returns
// the batch and the ids left over.
func nextBatch(missing []uint32, bySegment map[uint32]*packet.Packet) (map[uint32][]byte, []uint32, error) {
	data := make(map[uint32][]byte)
	size := 0
	for i, id := range missing {
		p, ok := bySegment[id]
		if !ok {
			return nil, nil, fmt.Errorf("switchio node: peer reported segment %d missing, but it was never sent", id)
		}
		b := p.PayloadBytes()
		// segment id and length prefix
		entry := len(b) + 8
		if len(data) > 0 && (size+entry > control.RetransmitBatchBytes || len(data) == control.MaxRetransmitEntries) {
			return data, missing[i:], nil
		}
		data[id] = b
		size += entry
	}
	return data, nil, nil
}
