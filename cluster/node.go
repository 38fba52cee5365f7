// Package cluster models the storage fabric's topology: nodes, the links
// between them, IP allocation, and routing-table computation (spec §4.4,
// §3 Node/Link). Grounded on aistore's cluster.Snode/cluster.NodeMap
// vocabulary (see other_examples ais-rebalance.go) generalized from a
// bucket-storage cluster to a simulated one.
package cluster

import "github.com/nexusai-enterprises/cloudsim/cmn"

// NodeState mirrors spec §3's Node.state enum.
type NodeState int

const (
	NodeOnline NodeState = iota
	NodeOffline
)

func (s NodeState) String() string {
	if s == NodeOnline {
		return "online"
	}
	return "offline"
}

// Node is a storage node (spec §3). Disk/OS are not embedded here: the
// ais.Controller keeps each node's VirtualDisk and VirtualOS in its own
// per-node runtime keyed by node ID, so cluster does not import vdisk or
// vos and Node stays the single source of identity.
type Node struct {
	ID           cmn.NodeID
	IP           string
	Zone         string
	Capacity     int64 // disk bytes, informational: VirtualDisk owns the real ledger
	CPUCores     int
	RAMBytes     int64
	NICBandwidth int64 // bits/sec
	State        NodeState

	Neighbors       map[cmn.NodeID]struct{}
	ClusterRoot     cmn.NodeID
	ReplicaChildren map[cmn.NodeID]struct{}
	ReplicaParent   cmn.NodeID // empty if this node is a cluster root
}

// NewNode constructs an online Node with empty neighbor/replica sets.
func NewNode(id cmn.NodeID, ip, zone string, capacity, ram, nicBW int64, cpuCores int) *Node {
	return &Node{
		ID:              id,
		IP:              ip,
		Zone:            zone,
		Capacity:        capacity,
		CPUCores:        cpuCores,
		RAMBytes:        ram,
		NICBandwidth:    nicBW,
		State:           NodeOnline,
		Neighbors:       make(map[cmn.NodeID]struct{}),
		ReplicaChildren: make(map[cmn.NodeID]struct{}),
	}
}

func (n *Node) Online() bool { return n.State == NodeOnline }

func (n *Node) AddNeighbor(id cmn.NodeID)    { n.Neighbors[id] = struct{}{} }
func (n *Node) RemoveNeighbor(id cmn.NodeID) { delete(n.Neighbors, id) }

func (n *Node) HasNeighbor(id cmn.NodeID) bool {
	_, ok := n.Neighbors[id]
	return ok
}
