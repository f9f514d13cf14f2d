package node

import (
	"time"

	"go.uber.org/zap"

	"github.com/switchml/switchio/pkg/control"
	"github.com/switchml/switchio/pkg/directory"
	"github.com/switchml/switchio/pkg/observability"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	defaultRegisterTimeout = 5 * time.Second
)

// DefaultMaxSegments caps the segment count of a job begun on a node, about
// 4 GiB of payload.
const DefaultMaxSegments = 1 << 22

// Option configures a Local node.
type Option func(*Local)

// WithLogger sets the node logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(n *Local) {
		n.log = l
	}
}

// WithMetrics sets the counters updated by the node.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Local) {
		n.metrics = m
	}
}

// WithPacing limits the send rate to the identity's nominal link speed. This
// is static pacing, not congestion control.
func WithPacing() Option {
	return func(n *Local) {
		n.pacing = true
	}
}

// WithShutdownTimeout bounds how long Close waits for in-flight control calls.
func WithShutdownTimeout(d time.Duration) Option {
	return func(n *Local) {
		n.shutdownTimeout = d
	}
}

// WithReadBatch sets how many datagrams the receive worker reads per call.
func WithReadBatch(size int) Option {
	return func(n *Local) {
		n.readBatch = size
	}
}

// WithSocketBuffer sets SO_RCVBUF on the receive socket.
func WithSocketBuffer(bytes int) Option {
	return func(n *Local) {
		n.socketBuffer = bytes
	}
}

// WithMaxSegments caps the total a job may be begun with. Values below 1
// keep DefaultMaxSegments.
func WithMaxSegments(n int) Option {
	return func(l *Local) {
		if n > 0 {
			l.maxSegments = n
		}
	}
}

// WithControlOptions passes extra options to the control-plane server.
func WithControlOptions(opts ...control.ServerOption) Option {
	return func(n *Local) {
		n.controlOpts = append(n.controlOpts, opts...)
	}
}

// WithDirectory registers the node in d on Start and removes it on Close.
func WithDirectory(d directory.Directory) Option {
	return func(n *Local) {
		n.dir = d
	}
}
