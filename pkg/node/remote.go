package node

import (
	"context"
	"fmt"

	"github.com/switchml/switchio/pkg/control"
	"github.com/switchml/switchio/pkg/directory"
)

// Remote is a handle to a node in another process. It owns no sockets; it
// only holds a control-plane client.
type Remote struct {
	topology

	id     Identity
	client *control.Client
}

// DialRemote creates a handle for the node described by id.
func DialRemote(id Identity, opts ...control.ClientOption) (*Remote, error) {
	if id.RPCAddr == "" {
		return nil, fmt.Errorf("switchio node: remote %d has no rpc address", id.NodeID)
	}
	c, err := control.Dial(id.RPCAddr, opts...)
	if err != nil {
		return nil, err
	}
	return &Remote{id: id, client: c}, nil
}

// Resolve looks nodeID up in dir and dials it.
func Resolve(ctx context.Context, dir directory.Directory, nodeID uint16, opts ...control.ClientOption) (*Remote, error) {
	e, err := dir.Lookup(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return DialRemote(IdentityFromEntry(e), opts...)
}

func (r *Remote) Identity() Identity {
	return r.id
}

// ReadMissingSlice asks the remote node which segments in [0, maxSegmentID]
// of job (jobID, nodeID) it has not received.
func (r *Remote) ReadMissingSlice(ctx context.Context, jobID uint32, nodeID uint16, maxSegmentID uint32) (*control.MissingSliceResponse, error) {
	return r.client.ReadMissingSlice(ctx, &control.MissingSliceRequest{
		JobID:        jobID,
		NodeID:       nodeID,
		MaxSegmentID: maxSegmentID,
	})
}

// Retransmission pushes payloads, keyed by segment id, to the remote node.
func (r *Remote) Retransmission(ctx context.Context, jobID uint32, nodeID uint16, data map[uint32][]byte) (*control.RetransmissionAck, error) {
	return r.client.Retransmission(ctx, &control.RetransmissionRequest{
		JobID:  jobID,
		NodeID: nodeID,
		Data:   data,
	})
}

// Close releases the control-plane connection.
func (r *Remote) Close() error {
	return r.client.Close()
}
