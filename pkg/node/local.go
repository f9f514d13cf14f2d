package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/switchml/switchio/pkg/control"
	"github.com/switchml/switchio/pkg/directory"
	"github.com/switchml/switchio/pkg/job"
	"github.com/switchml/switchio/pkg/observability"
	"github.com/switchml/switchio/pkg/packet"
	"github.com/switchml/switchio/pkg/transport"
)

var (
	ErrJobExists      = errors.New("switchio node: job already tracked")
	ErrClosed         = errors.New("switchio node: node is closed")
	ErrPeerJobUnknown = errors.New("switchio node: peer does not track the job")
)

// Local is a node running in this process.
type Local struct {
	topology

	id       Identity
	instance string

	log             *zap.Logger
	metrics         *observability.Metrics
	pacing          bool
	limiter         *rate.Limiter
	shutdownTimeout time.Duration
	readBatch       int
	socketBuffer    int
	maxSegments     int
	controlOpts     []control.ServerOption
	dir             directory.Directory

	rx       *transport.Conn
	tx       *transport.Conn
	lis      net.Listener
	ctrl     *control.Server
	sessions *sessions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	started    bool
	closed     bool
	registered bool
}

// NewLocal binds the node's receive and send sockets and its control-plane
// listener. Any bind failure is returned. Ports given as 0 are chosen by the
// system and written back into Identity.
func NewLocal(id Identity, opts ...Option) (*Local, error) {
	if id.IP == "" {
		return nil, fmt.Errorf("switchio node: ip is required")
	}
	if id.SpeedMbps <= 0 {
		id.SpeedMbps = DefaultSpeedMbps
	}
	n := &Local{
		id:              id,
		instance:        uuid.NewString(),
		log:             zap.NewNop(),
		shutdownTimeout: defaultShutdownTimeout,
		maxSegments:     DefaultMaxSegments,
		sessions:        newSessions(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.Named("node").With(zap.Uint16("node_id", id.NodeID))
	n.ctx, n.cancel = context.WithCancel(context.Background())

	var err error
	n.rx, err = transport.Listen(n.ctx, id.IP, id.RxPort, transport.Options{
		Device:     id.Iface,
		RecvBuffer: n.socketBuffer,
		Batch:      n.readBatch,
	})
	if err != nil {
		n.cancel()
		return nil, fmt.Errorf("switchio node: rx socket: %w", err)
	}
	n.tx, err = transport.Listen(n.ctx, id.IP, id.TxPort, transport.Options{Device: id.Iface, Batch: 1})
	if err != nil {
		n.rx.Close()
		n.cancel()
		return nil, fmt.Errorf("switchio node: tx socket: %w", err)
	}

	rpcAddr := id.RPCAddr
	if rpcAddr == "" {
		rpcAddr = net.JoinHostPort(id.IP, "0")
	}
	n.lis, err = net.Listen("tcp", rpcAddr)
	if err != nil {
		n.rx.Close()
		n.tx.Close()
		n.cancel()
		return nil, fmt.Errorf("switchio node: control listener %s: %w", rpcAddr, err)
	}

	n.id.RxPort = n.rx.Port()
	n.id.TxPort = n.tx.Port()
	n.id.RPCAddr = advertised(n.lis.Addr(), id.IP)

	if n.pacing {
		// Bytes per second at the nominal link speed; the burst admits a
		// handful of packets so short sends are not serialised.
		bps := float64(n.id.SpeedMbps) * 1e6 / 8
		n.limiter = rate.NewLimiter(rate.Limit(bps), 16*packet.Size)
	}

	ctrlOpts := append([]control.ServerOption{
		control.WithLogger(n.log),
		control.WithMetrics(n.metrics),
		control.WithShutdownTimeout(n.shutdownTimeout),
	}, n.controlOpts...)
	n.ctrl = control.NewServer(&controlHandler{n: n}, ctrlOpts...)

	n.log.Info("node bound",
		zap.String("ip", n.id.IP),
		zap.Int("rx_port", n.id.RxPort),
		zap.Int("tx_port", n.id.TxPort),
		zap.String("rpc_addr", n.id.RPCAddr),
		zap.String("instance", n.instance))
	return n, nil
}

// advertised replaces an unspecified listen host with the node ip.
func advertised(addr net.Addr, ip string) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	host := tcp.IP.String()
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		host = ip
	}
	return net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}

// Identity returns the node identity with the bound ports filled in.
func (n *Local) Identity() Identity {
	return n.id
}

// Instance returns the id that distinguishes this process from earlier runs
// of the same node id.
func (n *Local) Instance() string {
	return n.instance
}

// Start launches the receive worker and the control-plane server, then
// registers the node in the directory if one is configured.
func (n *Local) Start() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = true
	n.mu.Unlock()

	n.wg.Add(2)
	go n.receiveLoop()
	go func() {
		defer n.wg.Done()
		if err := n.ctrl.Serve(n.lis); err != nil {
			n.log.Error("control server", zap.Error(err))
		}
	}()

	if n.dir != nil {
		e := n.id.Entry()
		e.Instance = n.instance
		ctx, cancel := context.WithTimeout(n.ctx, defaultRegisterTimeout)
		defer cancel()
		if err := n.dir.Register(ctx, e); err != nil {
			return fmt.Errorf("switchio node: register: %w", err)
		}
		n.mu.Lock()
		n.registered = true
		n.mu.Unlock()
	}
	n.log.Info("node started")
	return nil
}

// Close stops the node. In-flight jobs are cancelled, the control server is
// drained, both sockets are closed and the receive worker is joined. Safe to
// call repeatedly.
func (n *Local) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	started, registered := n.started, n.registered
	n.mu.Unlock()

	if registered {
		ctx, cancel := context.WithTimeout(context.Background(), defaultRegisterTimeout)
		if err := n.dir.Deregister(ctx, n.id.NodeID); err != nil {
			n.log.Warn("deregister", zap.Error(err))
		}
		cancel()
	}

	n.sessions.close()
	if started {
		n.ctrl.Stop()
	} else {
		n.lis.Close()
	}
	n.cancel()
	errRx := n.rx.Close()
	errTx := n.tx.Close()
	n.wg.Wait()
	n.log.Info("node closed")
	return errors.Join(errRx, errTx)
}

// ReceiveAsync begins tracking job jobID from src and returns immediately.
// The caller must Release the job once it has consumed or abandoned it.
func (n *Local) ReceiveAsync(src Peer, jobID uint32, total, workers int) (*job.Job, error) {
	return n.ReceiveAsyncFrom(src.Identity().NodeID, jobID, total, workers)
}

// ReceiveAsyncFrom is ReceiveAsync keyed by the source node id.
func (n *Local) ReceiveAsyncFrom(srcID uint16, jobID uint32, total, workers int) (*job.Job, error) {
	if total > n.maxSegments {
		return nil, fmt.Errorf("%w: total %d exceeds the node limit of %d", job.ErrInvalidJob, total, n.maxSegments)
	}
	key := job.Key{JobID: jobID, NodeID: srcID}
	j, err := n.sessions.begin(key, total, workers)
	if err != nil {
		return nil, err
	}
	n.metrics.IncJobStarted()
	n.log.Debug("receive begun", zap.Stringer("job", key), zap.Int("total", total), zap.Int("workers", workers))
	return j, nil
}

// Lookup returns the tracked job for (jobID, nodeID).
func (n *Local) Lookup(jobID uint32, nodeID uint16) (*job.Job, bool) {
	return n.sessions.lookup(job.Key{JobID: jobID, NodeID: nodeID})
}

// Release stops tracking job jobID from src and reports whether it was
// tracked. Waiters are released with job.ErrCancelled unless the job had
// completed; datagrams arriving afterwards are counted as stale.
func (n *Local) Release(src Peer, jobID uint32) bool {
	return n.ReleaseFrom(src.Identity().NodeID, jobID)
}

// ReleaseFrom is Release keyed by the source node id.
func (n *Local) ReleaseFrom(srcID uint16, jobID uint32) bool {
	j, ok := n.sessions.remove(job.Key{JobID: jobID, NodeID: srcID})
	if !ok {
		return false
	}
	j.Cancel()
	n.metrics.DecJobActive()
	return true
}

// Jobs returns a snapshot of every tracked job.
func (n *Local) Jobs() []job.Progress {
	return n.sessions.snapshot()
}

// Transfer is the result of a blocking Receive.
type Transfer struct {
	Key       job.Key
	Segments  [][]float32
	Expected  int
	Received  int
	LossRatio float64
	Elapsed   time.Duration
}

// Receive tracks job jobID from src, waits for it to complete and releases
// it. When ctx ends or the node closes first, the partially filled Transfer
// is returned together with the error.
func (n *Local) Receive(ctx context.Context, src Peer, jobID uint32, total int) (Transfer, error) {
	start := time.Now()
	j, err := n.ReceiveAsync(src, jobID, total, 1)
	if err != nil {
		return Transfer{}, err
	}
	waitErr := j.Wait(ctx)
	n.ReleaseFrom(j.Key().NodeID, j.Key().JobID)

	t := Transfer{
		Key:       j.Key(),
		Segments:  j.Segments(),
		Expected:  j.Total(),
		Received:  j.Received(),
		LossRatio: j.LossRatio(),
		Elapsed:   time.Since(start),
	}
	n.log.Info("receive finished",
		zap.Stringer("job", t.Key),
		zap.Int("received", t.Received),
		zap.Int("expected", t.Expected),
		zap.Float64("loss_ratio", t.LossRatio),
		zap.Duration("elapsed", t.Elapsed),
		zap.Error(waitErr))
	if waitErr != nil {
		return t, fmt.Errorf("switchio node: receive %s: %w", t.Key, waitErr)
	}
	return t, nil
}
