package cluster

import "github.com/nexusai-enterprises/cloudsim/cmn"

// LinkState mirrors spec §3's Link.state enum.
type LinkState int

const (
	LinkUp LinkState = iota
	LinkDown
)

func (s LinkState) String() string {
	if s == LinkUp {
		return "up"
	}
	return "down"
}

// Link is an undirected edge between two nodes (spec §3). Mutated only by
// the transfer engine (active flow membership) and failure helpers
// (state), per spec §3's invariant note.
type Link struct {
	ID          cmn.LinkID
	A, B        cmn.NodeID
	BandwidthBps int64
	LatencyMs    float64
	State        LinkState
	ActiveFlows  map[cmn.FlowID]struct{}
}

// NewLink constructs an up Link between a and b.
func NewLink(id cmn.LinkID, a, b cmn.NodeID, bandwidthBps int64, latencyMs float64) *Link {
	return &Link{
		ID:           id,
		A:            a,
		B:            b,
		BandwidthBps: bandwidthBps,
		LatencyMs:    latencyMs,
		State:        LinkUp,
		ActiveFlows:  make(map[cmn.FlowID]struct{}),
	}
}

func (l *Link) Up() bool { return l.State == LinkUp }

// Other returns the endpoint of the link that isn't n.
func (l *Link) Other(n cmn.NodeID) cmn.NodeID {
	if l.A == n {
		return l.B
	}
	return l.A
}

// Touches reports whether n is one of the link's two endpoints.
func (l *Link) Touches(n cmn.NodeID) bool { return l.A == n || l.B == n }
