package mirror

import (
	"sort"

	"github.com/nexusai-enterprises/cloudsim/cluster"
	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
	"github.com/nexusai-enterprises/cloudsim/vdisk"
	"github.com/nexusai-enterprises/cloudsim/vos"
	"github.com/nexusai-enterprises/cloudsim/xact"
)

const scalingPriority = 3 // after xact's bandwidth tick (priority 2) at the same instant

// ReplicaCluster is a root node plus its mirror siblings (spec §4.6: "a
// replica cluster is a small mesh of nodes holding identical copies of
// every file written to any member").
type ReplicaCluster struct {
	Root    cmn.NodeID
	Members map[cmn.NodeID]struct{}
}

// sortedMembers returns the cluster's members in a deterministic order, so
// iterating them for fan-out/mirroring never depends on Go's randomized
// map order (invariant #4).
func (c *ReplicaCluster) sortedMembers() []cmn.NodeID {
	out := make([]cmn.NodeID, 0, len(c.Members))
	for id := range c.Members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SpawnFunc asks the owning controller to actually materialize a new node
// (IP allocation, VirtualDisk/VirtualOS construction) as a replica of
// parent. ClusterManager only decides *when* to spawn; *how* to build a
// node belongs to ais.Controller, which is why this is injected rather than
// implemented here (mirror must not import ais, which imports mirror).
type SpawnFunc func(parent cmn.NodeID, reason string) (cmn.NodeID, error)

// Manager is the ClusterManager (spec §4.6): replica cluster formation,
// write fan-out, backfill, and demand-driven scaling.
type Manager struct {
	sched   *scheduler.Scheduler
	cfg     *cmn.Config
	fabric  *cluster.RoutingFabric
	engine  *xact.Engine
	ids     *cmn.IDGen
	runtime xact.Lookup
	onEvent xact.EventFunc
	policy  Policy
	spawn   SpawnFunc

	clusters map[cmn.NodeID]*ReplicaCluster // keyed by root
	memberOf map[cmn.NodeID]cmn.NodeID

	openRoot      cmn.NodeID // root of the cluster still accepting default members
	scalingActive bool
}

// New builds a ClusterManager. It installs itself as the engine's
// completion hook, so every primary transfer completion triggers fan-out.
func New(sched *scheduler.Scheduler, cfg *cmn.Config, fabric *cluster.RoutingFabric, engine *xact.Engine, ids *cmn.IDGen, runtime xact.Lookup, onEvent xact.EventFunc, policy Policy, spawn SpawnFunc) *Manager {
	if policy == nil {
		policy = NewThresholdPolicy()
	}
	m := &Manager{
		sched:    sched,
		cfg:      cfg,
		fabric:   fabric,
		engine:   engine,
		ids:      ids,
		runtime:  runtime,
		onEvent:  onEvent,
		policy:   policy,
		spawn:    spawn,
		clusters: make(map[cmn.NodeID]*ReplicaCluster),
		memberOf: make(map[cmn.NodeID]cmn.NodeID),
	}
	engine.SetCompletionHook(m.onTransferCompleted)
	return m
}

// ClusterOf returns the replica cluster a node belongs to, if any.
func (m *Manager) ClusterOf(id cmn.NodeID) (*ReplicaCluster, bool) {
	root, ok := m.memberOf[id]
	if !ok {
		return nil, false
	}
	return m.clusters[root], true
}

// OnNodeAdded assigns a newly added node to the cluster currently accepting
// members, opening a fresh one once the running cluster reaches
// default_replica_cluster_size (spec §4.6: "nodes are grouped into replica
// clusters of a configurable default size as they are added").
func (m *Manager) OnNodeAdded(id cmn.NodeID) {
	root := m.openRoot
	if root != "" {
		if c := m.clusters[root]; len(c.Members) >= m.cfg.DefaultReplicaClusterSize {
			root = ""
		}
	}
	if root == "" {
		m.clusters[id] = &ReplicaCluster{Root: id, Members: map[cmn.NodeID]struct{}{id: {}}}
		m.memberOf[id] = id
		m.openRoot = id
		m.setNodeRole(id, id, "")
		return
	}
	c := m.clusters[root]
	c.Members[id] = struct{}{}
	m.memberOf[id] = root
	m.setNodeRole(id, root, root)
	m.onEvent("replica_joined", string(id), string(root), map[string]any{"cluster": root})
}

// OnNodeRemoved drops a node from its cluster's bookkeeping. The node's
// links are already torn down by the fabric; this only updates membership.
func (m *Manager) OnNodeRemoved(id cmn.NodeID) {
	root, ok := m.memberOf[id]
	if !ok {
		return
	}
	delete(m.memberOf, id)
	if c, ok := m.clusters[root]; ok {
		delete(c.Members, id)
		if len(c.Members) == 0 {
			delete(m.clusters, root)
		}
	}
	if m.openRoot == root {
		if c, ok := m.clusters[root]; !ok || len(c.Members) >= m.cfg.DefaultReplicaClusterSize {
			m.openRoot = ""
		}
	}
}

func (m *Manager) setNodeRole(id, root, parent cmn.NodeID) {
	n, ok := m.fabric.Node(id)
	if !ok {
		return
	}
	n.ClusterRoot = root
	n.ReplicaParent = parent
	if parent != "" {
		if pn, ok := m.fabric.Node(parent); ok {
			pn.ReplicaChildren[id] = struct{}{}
		}
	}
}

// OnLinkAdded auto-mirrors a newly connected link to every other member of
// both endpoints' clusters (spec §4.6: "a link attached to one member is
// mirrored to its siblings so the cluster's external connectivity stays
// symmetric").
func (m *Manager) OnLinkAdded(a, b cmn.NodeID, bandwidthBps int64, latencyMs float64) {
	m.mirrorFrom(a, b, bandwidthBps, latencyMs)
	m.mirrorFrom(b, a, bandwidthBps, latencyMs)
}

func (m *Manager) mirrorFrom(member, peer cmn.NodeID, bandwidthBps int64, latencyMs float64) {
	root, ok := m.memberOf[member]
	if !ok {
		return
	}
	c := m.clusters[root]
	for _, sib := range c.sortedMembers() {
		if sib == member || sib == peer {
			continue
		}
		if _, ok := m.fabric.Node(peer); !ok {
			continue
		}
		if _, exists := m.fabric.FindLink(sib, peer); exists {
			continue
		}
		l := cluster.NewLink(m.ids.LinkID(), sib, peer, bandwidthBps, latencyMs)
		m.fabric.AddLink(l)
		m.onEvent("link_mirrored", string(sib), string(peer), map[string]any{"via": string(member)})
	}
}

// onTransferCompleted is the engine's completion hook (spec §4.6: "every
// write committed on a cluster member is fanned out to every other member").
// This also implements backfill: a write landing on a non-root member still
// fans out to the root and every sibling, since fan-out targets the whole
// cluster regardless of which member originated the write.
func (m *Manager) onTransferCompleted(tr *xact.Transfer) {
	root, ok := m.memberOf[tr.Dst]
	if !ok {
		return
	}
	c := m.clusters[root]
	siblings := make([]cmn.NodeID, 0, len(c.Members))
	for _, sib := range c.sortedMembers() {
		if sib == tr.Dst {
			continue
		}
		n, ok := m.fabric.Node(sib)
		if !ok || !n.Online() {
			continue
		}
		siblings = append(siblings, sib)
	}
	if len(siblings) == 0 {
		return
	}
	m.readThenFanOut(tr.Dst, tr.FileID, tr.Size, siblings)
}

// readThenFanOut reads the owner's stored copy of fileID through a
// disk_read syscall before replicating to every sibling (spec §4.6:
// "replica sync reads the owner's committed copy, then sends"), rather
// than fanning out straight from the event that reported the commit.
func (m *Manager) readThenFanOut(owner cmn.NodeID, fileID cmn.FileID, size int64, siblings []cmn.NodeID) {
	rt, ok := m.runtime(owner)
	if !ok || !rt.Online() {
		return
	}
	records := rt.Disk().ChunksOf(fileID)
	if len(records) == 0 {
		m.onEvent("replica_sync_failed", string(owner), "", map[string]any{"file": fileID, "cause": "no committed chunks for file"})
		return
	}
	_, err := rt.OS().DiskRead(1, 0, func(complete func(error)) {
		_, rerr := rt.Disk().ReadChunk(fileID, records[0].ChunkID, func(t *vdisk.IOTicket) { complete(t.Err) })
		if rerr != nil {
			complete(rerr)
		}
	}, func(p *vos.Process) {
		if p.Err != nil {
			m.onEvent("replica_sync_failed", string(owner), "", map[string]any{"file": fileID, "cause": p.Err.Error()})
			return
		}
		for _, sib := range siblings {
			if _, err := m.engine.InitiateReplicaTransfer(owner, sib, fileID, size); err != nil {
				m.onEvent("replica_sync_failed", string(owner), string(sib), map[string]any{"file": fileID, "cause": err.Error()})
			}
		}
	})
	if err != nil {
		m.onEvent("replica_sync_failed", string(owner), "", map[string]any{"file": fileID, "cause": err.Error()})
	}
}

// FanOut replicates fileID (size bytes) from dst to every other online
// member of dst's replica cluster. It reuses the same propagation the
// engine's completion hook runs for engine-driven writes, exposed directly
// for controller-level pushes that commit straight to a node's disk
// without going through a TransferEngine hop.
func (m *Manager) FanOut(dst cmn.NodeID, fileID cmn.FileID, size int64) {
	root, ok := m.memberOf[dst]
	if !ok {
		return
	}
	c := m.clusters[root]
	siblings := make([]cmn.NodeID, 0, len(c.Members))
	for _, sib := range c.sortedMembers() {
		if sib == dst {
			continue
		}
		if n, ok := m.fabric.Node(sib); ok && n.Online() {
			siblings = append(siblings, sib)
		}
	}
	if len(siblings) == 0 {
		return
	}
	m.readThenFanOut(dst, fileID, size, siblings)
}

// RestoreMembership directly assigns a node to a cluster root, bypassing
// the default bucket-fill policy OnNodeAdded applies — used when
// reconstructing membership that was itself part of a restored snapshot.
func (m *Manager) RestoreMembership(id, root cmn.NodeID) {
	c, ok := m.clusters[root]
	if !ok {
		c = &ReplicaCluster{Root: root, Members: make(map[cmn.NodeID]struct{})}
		m.clusters[root] = c
	}
	c.Members[id] = struct{}{}
	m.memberOf[id] = root
}

// StartScalingLoop arms the periodic demand-scaling check (spec §4.6); call
// once after the cluster's initial topology is built.
func (m *Manager) StartScalingLoop() { m.scheduleScalingCheck() }

func (m *Manager) scheduleScalingCheck() {
	if m.scalingActive {
		return
	}
	m.scalingActive = true
	m.sched.ScheduleIn(m.cfg.ScalingCheckIntervalSec, scalingPriority, m.runScalingCheck)
}

func (m *Manager) runScalingCheck(float64) {
	m.scalingActive = false
	ids := make([]string, 0, len(m.memberOf))
	for id := range m.memberOf {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, idStr := range ids {
		m.evaluateNode(cmn.NodeID(idStr))
	}
	m.scheduleScalingCheck()
}

func (m *Manager) evaluateNode(id cmn.NodeID) {
	n, ok := m.fabric.Node(id)
	if !ok || !n.Online() {
		return
	}
	rt, ok := m.runtime(id)
	if !ok {
		return
	}
	stats := NodeStats{
		StorageUtil:    utilization(rt.Disk().Committed()+rt.Disk().Reserved(), rt.Disk().Capacity()),
		BandwidthUtil:  rt.OS().NICUtilization(),
		RAMUtil:        rt.OS().RAMUtilization(),
		RecentFailures: rt.OS().Failures(),
	}
	spawn, reason := m.policy.Evaluate(m.cfg, stats)
	if !spawn {
		return
	}
	root := m.memberOf[id]
	if c, ok := m.clusters[root]; ok && len(c.Members) >= m.cfg.MaxReplicasPerCluster {
		return
	}
	if m.spawn == nil {
		return
	}
	newID, err := m.spawn(id, reason)
	if err != nil {
		m.onEvent("replica_spawn_failed", string(id), "", map[string]any{"reason": reason, "cause": err.Error()})
		return
	}
	m.onReplicaSpawned(newID, id, reason)
}

// onReplicaSpawned joins a demand-scaled node to its parent's cluster and
// inherits the parent's external connections as mirrored links (spec §4.6:
// "the new replica inherits the triggering node's connections").
func (m *Manager) onReplicaSpawned(newID, parent cmn.NodeID, reason string) {
	root := m.memberOf[parent]
	c := m.clusters[root]
	c.Members[newID] = struct{}{}
	m.memberOf[newID] = root
	m.setNodeRole(newID, root, parent)

	pn, ok := m.fabric.Node(parent)
	if !ok {
		return
	}
	peers := make([]cmn.NodeID, 0, len(pn.Neighbors))
	for peer := range pn.Neighbors {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	for _, peer := range peers {
		if peer == newID {
			continue
		}
		link, ok := m.fabric.FindLink(parent, peer)
		if !ok {
			continue
		}
		l := cluster.NewLink(m.ids.LinkID(), newID, peer, link.BandwidthBps, link.LatencyMs)
		m.fabric.AddLink(l)
	}
	m.onEvent("replica_spawned", string(newID), string(parent), map[string]any{"reason": reason, "cluster": root})
}

func utilization(used, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(used) / float64(capacity)
}
