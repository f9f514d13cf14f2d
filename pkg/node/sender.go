package node

import (
	"context"
	"fmt"

	"github.com/switchml/switchio/pkg/packet"
)

// NewPacket builds a packet originating from this node.
func (n *Local) NewPacket(jobID, segmentID uint32, group uint16, bypass bool, data []float32) (*packet.Packet, error) {
	h := packet.Header{
		DataType:       packet.DataTypeFloat32,
		NodeID:         n.id.NodeID,
		JobID:          jobID,
		SegmentID:      segmentID,
		AggregateNum:   1,
		MulticastGroup: group,
	}
	if bypass {
		h.FlowControl = packet.FlagBypass
	}
	return packet.New(h, data)
}

// Send writes each packet from the send socket to dst's receive port. When
// pacing is enabled the send rate is held at the nominal link speed.
func (n *Local) Send(ctx context.Context, dst Peer, pkts ...*packet.Packet) error {
	addr, err := dst.Identity().DataAddr()
	if err != nil {
		return err
	}
	sent, bytes := 0, 0
	defer func() { n.metrics.AddSent(sent, bytes) }()
	for _, p := range pkts {
		b := p.Bytes()
		if n.limiter != nil {
			if err := n.limiter.WaitN(ctx, len(b)); err != nil {
				return fmt.Errorf("switchio node: pacing: %w", err)
			}
		}
		if err := n.tx.WriteTo(ctx, b, addr); err != nil {
			return fmt.Errorf("switchio node: send segment %d to %s: %w", p.Header.SegmentID, addr, err)
		}
		sent++
		bytes += len(b)
	}
	return nil
}

// SendVectors sends vectors as segments 0..len(vectors)-1 of jobID and
// returns the packets so lost segments can be retransmitted later.
func (n *Local) SendVectors(ctx context.Context, dst Peer, jobID uint32, group uint16, bypass bool, vectors [][]float32) ([]*packet.Packet, error) {
	pkts := make([]*packet.Packet, len(vectors))
	for i, v := range vectors {
		p, err := n.NewPacket(jobID, uint32(i), group, bypass, v)
		if err != nil {
			return nil, fmt.Errorf("switchio node: segment %d: %w", i, err)
		}
		pkts[i] = p
	}
	if err := n.Send(ctx, dst, pkts...); err != nil {
		return pkts, err
	}
	return pkts, nil
}
