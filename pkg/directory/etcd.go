package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Key-space constants. All switchio keys live under /switchio/v1/ to avoid
// collisions with other etcd tenants.
const (
	keyPrefix       = "/switchio/v1"
	defaultLeaseTTL = 30 // seconds
)

func nodeKey(nodeID uint16) string {
	return fmt.Sprintf("%s/nodes/%05d", keyPrefix, nodeID)
}

func nodesPrefix() string {
	return keyPrefix + "/nodes/"
}

// EtcdOption configures an EtcdDirectory.
type EtcdOption func(*EtcdDirectory)

// WithLeaseTTL sets the TTL in seconds of registration leases. A node that
// stops refreshing its lease disappears from the directory after the TTL.
func WithLeaseTTL(seconds int64) EtcdOption {
	return func(d *EtcdDirectory) {
		if seconds > 0 {
			d.leaseTTL = seconds
		}
	}
}

// WithEtcdLogger sets the logger used by the directory and the etcd client.
func WithEtcdLogger(l *zap.Logger) EtcdOption {
	return func(d *EtcdDirectory) {
		d.log = l
	}
}

// EtcdDirectory is an etcd-backed Directory. Registrations are attached to a
// lease kept alive in the background, so entries of crashed nodes expire.
type EtcdDirectory struct {
	client   *clientv3.Client
	log      *zap.Logger
	leaseTTL int64

	mu     sync.Mutex
	leases map[uint16]registration
}

type registration struct {
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdDirectory dials the etcd cluster at endpoints. The caller must call
// Close when finished.
func NewEtcdDirectory(endpoints []string, opts ...EtcdOption) (*EtcdDirectory, error) {
	d := &EtcdDirectory{
		log:      zap.NewNop(),
		leaseTTL: defaultLeaseTTL,
		leases:   make(map[uint16]registration),
	}
	for _, opt := range opts {
		opt(d)
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      d.log.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("etcd dial: %w", err)
	}
	d.client = client
	return d, nil
}

// Register writes e under a fresh lease and keeps the lease alive until
// Deregister or Close. Registering the same node id again replaces the
// previous registration.
func (d *EtcdDirectory) Register(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	grant, err := d.client.Grant(ctx, d.leaseTTL)
	if err != nil {
		return fmt.Errorf("etcd grant lease: %w", err)
	}
	k := nodeKey(e.NodeID)
	if _, err := d.client.Put(ctx, k, string(data), clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("etcd put %q: %w", k, err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ka, err := d.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("etcd keepalive: %w", err)
	}
	go func() {
		for range ka {
		}
		d.log.Debug("lease keepalive stopped", zap.Uint16("node_id", e.NodeID), zap.Int64("lease", int64(grant.ID)))
	}()

	d.mu.Lock()
	prev, had := d.leases[e.NodeID]
	d.leases[e.NodeID] = registration{lease: grant.ID, cancel: cancel}
	d.mu.Unlock()
	if had {
		prev.cancel()
		if _, err := d.client.Revoke(ctx, prev.lease); err != nil {
			d.log.Warn("revoke previous lease", zap.Uint16("node_id", e.NodeID), zap.Error(err))
		}
	}
	return nil
}

func (d *EtcdDirectory) Deregister(ctx context.Context, nodeID uint16) error {
	d.mu.Lock()
	reg, had := d.leases[nodeID]
	delete(d.leases, nodeID)
	d.mu.Unlock()
	if had {
		reg.cancel()
	}

	k := nodeKey(nodeID)
	resp, err := d.client.Delete(ctx, k)
	if err != nil {
		return fmt.Errorf("etcd delete %q: %w", k, err)
	}
	if had {
		if _, err := d.client.Revoke(ctx, reg.lease); err != nil {
			d.log.Warn("revoke lease", zap.Uint16("node_id", nodeID), zap.Error(err))
		}
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, nodeID)
	}
	return nil
}

func (d *EtcdDirectory) Lookup(ctx context.Context, nodeID uint16) (Entry, error) {
	k := nodeKey(nodeID)
	resp, err := d.client.Get(ctx, k)
	if err != nil {
		return Entry{}, fmt.Errorf("etcd get %q: %w", k, err)
	}
	if len(resp.Kvs) == 0 {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, nodeID)
	}
	var e Entry
	if err := json.Unmarshal(resp.Kvs[0].Value, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshal %q: %w", k, err)
	}
	return e, nil
}

func (d *EtcdDirectory) List(ctx context.Context) ([]Entry, error) {
	pfx := nodesPrefix()
	resp, err := d.client.Get(ctx, pfx, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd list %q: %w", pfx, err)
	}
	out := make([]Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			return nil, fmt.Errorf("unmarshal %q: %w", string(kv.Key), err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

// EventType distinguishes registrations from removals in a watch stream.
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

// Event is one change observed by Watch. For EventDelete only Entry.NodeID
// is set.
type Event struct {
	Type  EventType
	Entry Entry
}

// Watch streams directory changes until ctx ends. The channel is closed when
// the watch terminates.
func (d *EtcdDirectory) Watch(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)
	wch := d.client.Watch(ctx, nodesPrefix(), clientv3.WithPrefix())
	go func() {
		defer close(out)
		for resp := range wch {
			if err := resp.Err(); err != nil {
				d.log.Warn("directory watch", zap.Error(err))
				return
			}
			for _, ev := range resp.Events {
				var e Event
				switch ev.Type {
				case clientv3.EventTypePut:
					e.Type = EventPut
					if err := json.Unmarshal(ev.Kv.Value, &e.Entry); err != nil {
						d.log.Warn("directory watch: bad entry", zap.ByteString("key", ev.Kv.Key), zap.Error(err))
						continue
					}
				case clientv3.EventTypeDelete:
					e.Type = EventDelete
					id, err := strconv.ParseUint(string(ev.Kv.Key[len(nodesPrefix()):]), 10, 16)
					if err != nil {
						continue
					}
					e.Entry.NodeID = uint16(id)
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close stops every keepalive and releases the etcd client. Leases are left
// to expire so a restarting node can re-register without a gap.
func (d *EtcdDirectory) Close() error {
	d.mu.Lock()
	for id, reg := range d.leases {
		reg.cancel()
		delete(d.leases, id)
	}
	d.mu.Unlock()
	return d.client.Close()
}
