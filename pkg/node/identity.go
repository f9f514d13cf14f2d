// Package node implements switchio nodes. A Local node owns datagram sockets,
// a receive worker, a session registry of in-flight jobs and a control-plane
// server. A Remote node is a handle to another process, reached only through
// its control-plane client.
package node

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/switchml/switchio/pkg/directory"
)

// DefaultSpeedMbps is the nominal link speed assumed when none is configured.
const DefaultSpeedMbps = 100

// Identity describes how to reach a node.
type Identity struct {
	NodeID  uint16 `json:"node_id" yaml:"node_id"`
	GroupID uint16 `json:"group_id" yaml:"group_id"`
	IP      string `json:"ip" yaml:"ip"`
	// Iface, when set, pins the data sockets to a network device.
	Iface     string `json:"iface,omitempty" yaml:"iface,omitempty"`
	RxPort    int    `json:"rx_port" yaml:"rx_port"`
	TxPort    int    `json:"tx_port" yaml:"tx_port"`
	RPCAddr   string `json:"rpc_addr" yaml:"rpc_addr"`
	SpeedMbps int    `json:"speed_mbps" yaml:"speed_mbps"`
}

// DataAddr returns the UDP address packets for this node are sent to.
func (id Identity) DataAddr() (*net.UDPAddr, error) {
	addr := net.JoinHostPort(id.IP, strconv.Itoa(id.RxPort))
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("switchio node: resolve %s: %w", addr, err)
	}
	return ua, nil
}

// Entry converts the identity to a directory registration.
func (id Identity) Entry() directory.Entry {
	return directory.Entry{
		NodeID:    id.NodeID,
		GroupID:   id.GroupID,
		IP:        id.IP,
		RxPort:    id.RxPort,
		TxPort:    id.TxPort,
		RPCAddr:   id.RPCAddr,
		SpeedMbps: id.SpeedMbps,
	}
}

// IdentityFromEntry is the inverse of Identity.Entry.
func IdentityFromEntry(e directory.Entry) Identity {
	return Identity{
		NodeID:    e.NodeID,
		GroupID:   e.GroupID,
		IP:        e.IP,
		RxPort:    e.RxPort,
		TxPort:    e.TxPort,
		RPCAddr:   e.RPCAddr,
		SpeedMbps: e.SpeedMbps,
	}
}

// Peer is implemented by *Local and *Remote.
type Peer interface {
	Identity() Identity
	AddChild(child Peer)
	RemoveChild(nodeID uint16) bool
	Children() []Peer
}

// topology holds non-owning references to child peers.
type topology struct {
	mu       sync.Mutex
	children map[uint16]Peer
}

// AddChild records child, replacing any child with the same node id.
func (t *topology) AddChild(child Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.children == nil {
		t.children = make(map[uint16]Peer)
	}
	t.children[child.Identity().NodeID] = child
}

// RemoveChild reports whether a child with nodeID existed.
func (t *topology) RemoveChild(nodeID uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.children[nodeID]; !ok {
		return false
	}
	delete(t.children, nodeID)
	return true
}

// Children returns the children ordered by node id.
func (t *topology) Children() []Peer {
	t.mu.Lock()
	out := make([]Peer, 0, len(t.children))
	for _, c := range t.children {
		out = append(out, c)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity().NodeID < out[j].Identity().NodeID })
	return out
}
