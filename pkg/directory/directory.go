// Package directory maps node ids to the addresses a switchio node needs to
// reach a peer: its datagram ports and its control-plane endpoint.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("switchio directory: node not found")

// Entry is the registration record of one node.
type Entry struct {
	NodeID    uint16 `json:"node_id" yaml:"node_id"`
	GroupID   uint16 `json:"group_id" yaml:"group_id"`
	IP        string `json:"ip" yaml:"ip"`
	RxPort    int    `json:"rx_port" yaml:"rx_port"`
	TxPort    int    `json:"tx_port" yaml:"tx_port"`
	RPCAddr   string `json:"rpc_addr" yaml:"rpc_addr"`
	SpeedMbps int    `json:"speed_mbps" yaml:"speed_mbps"`
	// Instance distinguishes restarts of the same node id.
	Instance     string    `json:"instance,omitempty" yaml:"instance,omitempty"`
	RegisteredAt time.Time `json:"registered_at" yaml:"registered_at"`
}

// Validate checks the fields a peer needs to reach the node.
func (e Entry) Validate() error {
	if e.IP == "" {
		return fmt.Errorf("node %d: ip is required", e.NodeID)
	}
	if e.RxPort <= 0 || e.RxPort > 65535 {
		return fmt.Errorf("node %d: invalid rx port %d", e.NodeID, e.RxPort)
	}
	if e.RPCAddr == "" {
		return fmt.Errorf("node %d: rpc address is required", e.NodeID)
	}
	return nil
}

// Directory stores node registrations. Implementations are safe for
// concurrent use.
type Directory interface {
	// Register creates or replaces the entry for e.NodeID.
	Register(ctx context.Context, e Entry) error
	// Deregister removes the entry. Removing an absent entry returns
	// ErrNotFound.
	Deregister(ctx context.Context, nodeID uint16) error
	Lookup(ctx context.Context, nodeID uint16) (Entry, error)
	// List returns every entry ordered by node id.
	List(ctx context.Context) ([]Entry, error)
	Close() error
}
