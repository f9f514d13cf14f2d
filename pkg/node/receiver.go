package node

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/switchml/switchio/pkg/job"
	"github.com/switchml/switchio/pkg/packet"
	"github.com/switchml/switchio/pkg/transport"
)

// readErrorBackoff keeps a persistently failing socket from spinning the
// receive worker.
const readErrorBackoff = 10 * time.Millisecond

// receiveLoop reads datagrams until the node closes. Malformed, stale and
// duplicate datagrams are counted and dropped; nothing here is fatal.
func (n *Local) receiveLoop() {
	defer n.wg.Done()
	for {
		batch, err := n.rx.ReadBatch(n.ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || n.ctx.Err() != nil {
				return
			}
			n.log.Warn("read datagrams", zap.Error(err))
			time.Sleep(readErrorBackoff)
			continue
		}
		for _, d := range batch {
			n.handleDatagram(d.Data)
		}
	}
}

func (n *Local) handleDatagram(b []byte) {
	n.metrics.IncDatagram()
	h, payload, err := packet.Decode(b)
	if err != nil {
		n.metrics.IncMalformed()
		n.log.Debug("drop malformed datagram", zap.Int("bytes", len(b)), zap.Error(err))
		return
	}
	key := job.Key{JobID: h.JobID, NodeID: h.NodeID}
	j, ok := n.sessions.lookup(key)
	if !ok {
		n.metrics.IncStale()
		return
	}
	n.record(j, h.SegmentID, payload)
}

// record stores one segment and updates the counters. It reports whether the
// segment was new.
func (n *Local) record(j *job.Job, segmentID uint32, payload []float32) (bool, error) {
	added, completed, err := j.Record(segmentID, payload)
	switch {
	case err != nil:
		n.metrics.IncMalformed()
		n.log.Debug("drop segment", zap.Stringer("job", j.Key()), zap.Uint32("segment_id", segmentID), zap.Error(err))
		return false, err
	case !added:
		n.metrics.IncDuplicate()
		return false, nil
	}
	n.metrics.IncSegment()
	if completed {
		n.metrics.IncJobCompleted()
		n.log.Debug("job complete", zap.Stringer("job", j.Key()))
	}
	return true, nil
}
