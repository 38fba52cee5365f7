package cluster

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nexusai-enterprises/cloudsim/cmn"
)

// Strategy selects how RoutingFabric computes routing tables (spec §4.4).
type Strategy int

const (
	LinkState Strategy = iota
	DistanceVector
)

func ParseStrategy(s string) Strategy {
	if s == "distance-vector" {
		return DistanceVector
	}
	return LinkState
}

// WeightFunc is the per-edge weight used by route computation. The chosen
// metric MUST be consistent cluster-wide (spec §4.4).
type WeightFunc func(l *Link) float64

// LatencyWeight weights an edge by its latency in milliseconds.
func LatencyWeight(l *Link) float64 { return l.LatencyMs }

// InverseBandwidthWeight weights an edge by 1/bandwidth.
func InverseBandwidthWeight(l *Link) float64 { return 1.0 / float64(l.BandwidthBps) }

type dvEntry struct {
	cost     float64
	nextHop  cmn.NodeID
	poisoned bool
}

// RoutingFabric allocates node IPs and computes routing tables over the
// live (non-failed) subgraph, via link-state (global Dijkstra recompute on
// every topology change) or distance-vector (periodic neighbor exchange)
// strategies (spec §4.4).
type RoutingFabric struct {
	nodes map[cmn.NodeID]*Node
	links map[cmn.LinkID]*Link
	ips   *ipAllocator

	strategy Strategy
	weight   WeightFunc

	// link-state: per-node next-hop table, recomputed wholesale on change.
	tables map[cmn.NodeID]map[cmn.NodeID]cmn.NodeID

	// distance-vector: per-node distance vector, updated by Exchange().
	vectors map[cmn.NodeID]map[cmn.NodeID]dvEntry
	dirty   bool

	routeCache *lru.Cache[string, []cmn.NodeID]
	group      singleflight.Group
}

// NewRoutingFabric builds an empty fabric. cacheSize bounds the route
// cache (spec's domain-stack LRU enrichment); strategy/weight select the
// computation model.
func NewRoutingFabric(strategy Strategy, weight WeightFunc, cacheSize int) *RoutingFabric {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, _ := lru.New[string, []cmn.NodeID](cacheSize)
	return &RoutingFabric{
		nodes:      make(map[cmn.NodeID]*Node),
		links:      make(map[cmn.LinkID]*Link),
		ips:        newIPAllocator(),
		strategy:   strategy,
		weight:     weight,
		tables:     make(map[cmn.NodeID]map[cmn.NodeID]cmn.NodeID),
		vectors:    make(map[cmn.NodeID]map[cmn.NodeID]dvEntry),
		routeCache: cache,
	}
}

// NextIP allocates the next deterministic 10.0.x.y address.
func (f *RoutingFabric) NextIP() string { return f.ips.Next() }

func (f *RoutingFabric) Node(id cmn.NodeID) (*Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

func (f *RoutingFabric) Link(id cmn.LinkID) (*Link, bool) {
	l, ok := f.links[id]
	return l, ok
}

// AddNode registers a node and triggers a topology recompute.
func (f *RoutingFabric) AddNode(n *Node) {
	f.nodes[n.ID] = n
	f.onTopologyChange()
}

// RemoveNode deletes a node and every link touching it.
func (f *RoutingFabric) RemoveNode(id cmn.NodeID) {
	for lid, l := range f.links {
		if l.Touches(id) {
			delete(f.links, lid)
		}
	}
	delete(f.nodes, id)
	f.onTopologyChange()
}

// AddLink registers an undirected link and wires neighbor sets.
func (f *RoutingFabric) AddLink(l *Link) {
	f.links[l.ID] = l
	if a, ok := f.nodes[l.A]; ok {
		a.AddNeighbor(l.B)
	}
	if b, ok := f.nodes[l.B]; ok {
		b.AddNeighbor(l.A)
	}
	f.onTopologyChange()
}

// RemoveLink deletes a link and unwires neighbor sets.
func (f *RoutingFabric) RemoveLink(id cmn.LinkID) {
	l, ok := f.links[id]
	if !ok {
		return
	}
	delete(f.links, id)
	if a, ok := f.nodes[l.A]; ok {
		a.RemoveNeighbor(l.B)
	}
	if b, ok := f.nodes[l.B]; ok {
		b.RemoveNeighbor(l.A)
	}
	f.onTopologyChange()
}

// FailLink marks a link down without removing it from the topology (it
// can be restored later); failed links are elided from routing (spec §4.4).
func (f *RoutingFabric) FailLink(id cmn.LinkID) {
	if l, ok := f.links[id]; ok {
		l.State = LinkDown
		f.onTopologyChange()
	}
}

func (f *RoutingFabric) RestoreLink(id cmn.LinkID) {
	if l, ok := f.links[id]; ok {
		l.State = LinkUp
		f.onTopologyChange()
	}
}

func (f *RoutingFabric) FailNode(id cmn.NodeID) {
	if n, ok := f.nodes[id]; ok {
		n.State = NodeOffline
		f.onTopologyChange()
	}
}

func (f *RoutingFabric) RestoreNode(id cmn.NodeID) {
	if n, ok := f.nodes[id]; ok {
		n.State = NodeOnline
		f.onTopologyChange()
	}
}

// FindLink returns the (up or down) link directly joining a and b, if any.
func (f *RoutingFabric) FindLink(a, b cmn.NodeID) (*Link, bool) {
	for _, l := range f.links {
		if (l.A == a && l.B == b) || (l.A == b && l.B == a) {
			return l, true
		}
	}
	return nil, false
}

// onTopologyChange reacts to any add/remove/fail/restore event: link-state
// recomputes immediately; distance-vector just marks tables dirty, and they
// change only when Exchange is next called (spec §4.4).
func (f *RoutingFabric) onTopologyChange() {
	f.routeCache.Purge()
	switch f.strategy {
	case LinkState:
		f.recomputeLinkState()
	case DistanceVector:
		f.dirty = true
	}
}

// livePeers returns the up neighbors of n reachable over an up link, with
// edge weight.
func (f *RoutingFabric) livePeers(n cmn.NodeID) map[cmn.NodeID]float64 {
	out := make(map[cmn.NodeID]float64)
	for _, l := range f.links {
		if !l.Up() || !l.Touches(n) {
			continue
		}
		other := l.Other(n)
		on, ok := f.nodes[other]
		if !ok || !on.Online() {
			continue
		}
		w := f.weight(l)
		if cur, seen := out[other]; !seen || w < cur {
			out[other] = w
		}
	}
	return out
}

// recomputeLinkState runs Dijkstra from every online node, building a
// dst -> next-hop table per source (spec §4.4 link-state strategy).
func (f *RoutingFabric) recomputeLinkState() {
	f.tables = make(map[cmn.NodeID]map[cmn.NodeID]cmn.NodeID)
	ids := f.onlineNodeIDs()
	for _, src := range ids {
		f.tables[src] = dijkstraNextHop(src, ids, f.livePeers)
	}
}

func (f *RoutingFabric) onlineNodeIDs() []cmn.NodeID {
	ids := make([]cmn.NodeID, 0, len(f.nodes))
	for id, n := range f.nodes {
		if n.Online() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] }) // deterministic iteration
	return ids
}

func (f *RoutingFabric) allNodeIDs() []cmn.NodeID {
	ids := make([]cmn.NodeID, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Nodes returns every registered node (online or offline), sorted by ID —
// used by snapshotting and other whole-topology enumeration.
func (f *RoutingFabric) Nodes() []*Node {
	ids := f.allNodeIDs()
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = f.nodes[id]
	}
	return out
}

// Links returns every registered link (up or down), sorted by ID.
func (f *RoutingFabric) Links() []*Link {
	ids := make([]string, 0, len(f.links))
	for id := range f.links {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	out := make([]*Link, len(ids))
	for i, id := range ids {
		out[i] = f.links[cmn.LinkID(id)]
	}
	return out
}

// Exchange runs one round of distance-vector neighbor exchange (spec §4.4):
// each node adopts min(advertised cost) + link weight, with split-horizon
// poisoned-reverse to mitigate count-to-infinity. Runs only when called;
// nothing in this module schedules it, so dv_interval is not applied.
func (f *RoutingFabric) Exchange() {
	if f.strategy != DistanceVector {
		return
	}
	ids := f.onlineNodeIDs()
	if f.vectors == nil {
		f.vectors = make(map[cmn.NodeID]map[cmn.NodeID]dvEntry)
	}
	for _, id := range ids {
		if _, ok := f.vectors[id]; !ok {
			f.vectors[id] = map[cmn.NodeID]dvEntry{id: {cost: 0, nextHop: id}}
		}
	}
	next := make(map[cmn.NodeID]map[cmn.NodeID]dvEntry, len(ids))
	for _, id := range ids {
		next[id] = map[cmn.NodeID]dvEntry{id: {cost: 0, nextHop: id}}
	}
	for _, src := range ids {
		peers := f.livePeers(src)
		for peer, w := range peers {
			peerVec := f.vectors[peer]
			for dst, entry := range peerVec {
				if dst == src {
					continue // split horizon: never re-advertise a route back through itself
				}
				cost := entry.cost + w
				if entry.poisoned {
					continue // poisoned reverse: treat as unreachable via this neighbor
				}
				cur, have := next[src][dst]
				if !have || cost < cur.cost {
					next[src][dst] = dvEntry{cost: cost, nextHop: peer}
				}
			}
		}
	}
	// split-horizon-with-poisoned-reverse: if the chosen next hop for dst
	// is the same peer that advertised dst back to us, mark it poisoned so
	// the next round doesn't count-to-infinity through a stale route.
	for _, src := range ids {
		for dst, entry := range next[src] {
			if dst == src {
				continue
			}
			if peerVec, ok := f.vectors[entry.nextHop]; ok {
				if pe, ok := peerVec[dst]; ok && pe.nextHop == src {
					entry.poisoned = true
					next[src][dst] = entry
				}
			}
		}
	}
	f.vectors = next
	f.tables = make(map[cmn.NodeID]map[cmn.NodeID]cmn.NodeID)
	for _, src := range ids {
		table := make(map[cmn.NodeID]cmn.NodeID, len(next[src]))
		for dst, e := range next[src] {
			if !e.poisoned {
				table[dst] = e.nextHop
			}
		}
		f.tables[src] = table
	}
	f.dirty = false
	f.routeCache.Purge()
}

// GetRoute returns the full hop sequence from src to dst, memoized in an
// LRU cache and single-flighted so concurrent identical lookups within a
// tick collapse onto one computation (spec's domain-stack enrichment over
// §4.4's get_route).
func (f *RoutingFabric) GetRoute(src, dst cmn.NodeID) ([]cmn.NodeID, error) {
	if src == dst {
		return []cmn.NodeID{src}, nil
	}
	key := fmt.Sprintf("%s>%s", src, dst)
	if route, ok := f.routeCache.Get(key); ok {
		return append([]cmn.NodeID(nil), route...), nil
	}
	v, err, _ := f.group.Do(key, func() (any, error) {
		return f.computeRoute(src, dst)
	})
	if err != nil {
		return nil, err
	}
	route := v.([]cmn.NodeID)
	f.routeCache.Add(key, route)
	return append([]cmn.NodeID(nil), route...), nil
}

func (f *RoutingFabric) computeRoute(src, dst cmn.NodeID) ([]cmn.NodeID, error) {
	sn, ok := f.nodes[src]
	if !ok || !sn.Online() {
		return nil, cmn.NewErr("get_route", cmn.KindNoRoute, "source offline or unknown")
	}
	dn, ok := f.nodes[dst]
	if !ok || !dn.Online() {
		return nil, cmn.NewErr("get_route", cmn.KindNoRoute, "destination offline or unknown")
	}
	table, ok := f.tables[src]
	if !ok {
		return nil, cmn.NewErr("get_route", cmn.KindNoRoute, "no routing table for source")
	}
	route := []cmn.NodeID{src}
	cur := src
	seen := map[cmn.NodeID]struct{}{src: {}}
	for cur != dst {
		next, ok := table[dst]
		if !ok {
			return nil, cmn.NewErr("get_route", cmn.KindNoRoute, "no path")
		}
		if _, loop := seen[next]; loop {
			return nil, cmn.NewErr("get_route", cmn.KindNoRoute, "routing loop detected")
		}
		route = append(route, next)
		seen[next] = struct{}{}
		cur = next
		if cur != dst {
			table, ok = f.tables[cur]
			if !ok {
				return nil, cmn.NewErr("get_route", cmn.KindNoRoute, "no routing table for hop")
			}
		}
	}
	return route, nil
}
