// Package ais implements the ControllerAPI (spec §4.7): the thin public
// surface external collaborators (REPL, scenario runner, control-plane
// wrappers — all out of scope per §1) drive the simulator through.
// Grounded on aistore's own `ais` package being the home of its public
// proxy/target surface, with the request-dispatch-by-operation shape of
// `ais/prxs3.go` re-expressed as one method per controller operation
// rather than dispatch by HTTP verb.
package ais

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexusai-enterprises/cloudsim/cluster"
	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/mirror"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
	"github.com/nexusai-enterprises/cloudsim/vdisk"
	"github.com/nexusai-enterprises/cloudsim/vos"
	"github.com/nexusai-enterprises/cloudsim/xact"
)

// nodeRuntime pairs a cluster.Node with its VirtualDisk/VirtualOS. Node
// itself deliberately doesn't embed these (see DESIGN.md's cluster/ note);
// Controller is the one place that holds the triple together.
type nodeRuntime struct {
	node *cluster.Node
	disk *vdisk.VirtualDisk
	os   *vos.VirtualOS
}

func (r *nodeRuntime) Disk() *vdisk.VirtualDisk { return r.disk }
func (r *nodeRuntime) OS() *vos.VirtualOS       { return r.os }
func (r *nodeRuntime) Online() bool             { return r.node.Online() }

// NodeOpts are the optional add_node parameters (spec §6:
// `add_node(id?, storage?, bandwidth?, cpu?, ram?, zone?)`).
type NodeOpts struct {
	ID              cmn.NodeID
	StorageBytes    int64
	NICBandwidthBps int64
	CPUCores        int
	RAMBytes        int64
	Zone            string
}

// NodeInfo is add_node/spawn's result view of a node.
type NodeInfo struct {
	ID              cmn.NodeID
	IP              string
	Zone            string
	StorageBytes    int64
	NICBandwidthBps int64
	CPUCores        int
	RAMBytes        int64
}

// LinkInfo is connect's per-link result view.
type LinkInfo struct {
	ID           cmn.LinkID
	A, B         cmn.NodeID
	BandwidthBps int64
	LatencyMs    float64
}

// UsageStats is inspect()'s storage/RAM usage view.
type UsageStats struct {
	DiskUsed     int64
	DiskCapacity int64
	RAMUsed      int64
	RAMCapacity  int64
}

// InspectResult is inspect(id)'s full result (spec §6).
type InspectResult struct {
	Online          bool
	Zone            string
	Bandwidth       int64
	ReplicaParent   cmn.NodeID
	ReplicaChildren []cmn.NodeID
	Neighbors       []cmn.NodeID
	StoredFiles     []cmn.FileID
	ActiveTransfers []cmn.TransferID
	Usage           UsageStats
	Telemetry       NodeTelemetry
}

// StepMetrics is step()'s lightweight progress summary.
type StepMetrics struct {
	EventsDispatched   int
	TransfersCompleted int64
	TransfersFailed    int64
}

// StepResult is step(seconds)'s result (spec §6).
type StepResult struct {
	Duration float64
	Metrics  StepMetrics
}

// Controller is the ControllerAPI: wires the scheduler, routing fabric,
// per-node disk/OS runtimes, transfer engine, and cluster manager into one
// handle (spec §4.7).
type Controller struct {
	sched   *scheduler.Scheduler
	cfg     *cmn.Config
	fabric  *cluster.RoutingFabric
	ids     *cmn.IDGen
	engine  *xact.Engine
	manager *mirror.Manager

	runtimes   map[cmn.NodeID]*nodeRuntime
	registries map[cmn.NodeID]*prometheus.Registry

	eventlog *EventLog

	transfersCompleted int64
	transfersFailed    int64
}

// New builds a Controller from cfg (use cmn.DefaultConfig() for defaults).
func New(cfg *cmn.Config) *Controller {
	c := &Controller{
		sched:      scheduler.New(),
		cfg:        cfg,
		ids:        cmn.NewIDGen(cfg.Seed),
		runtimes:   make(map[cmn.NodeID]*nodeRuntime),
		registries: make(map[cmn.NodeID]*prometheus.Registry),
		eventlog:   NewEventLog(cfg.EventLogSize),
	}
	weight := cluster.LatencyWeight
	c.fabric = cluster.NewRoutingFabric(cluster.ParseStrategy(cfg.RoutingStrategy), weight, cfg.RouteCacheSize)
	c.engine = xact.New(c.sched, c.cfg, c.fabric, c.ids, c.lookup, c.recordEvent)
	c.manager = mirror.New(c.sched, c.cfg, c.fabric, c.engine, c.ids, c.lookup, c.recordEvent, nil, c.spawnReplica)
	c.manager.StartScalingLoop()
	return c
}

func (c *Controller) lookup(id cmn.NodeID) (xact.NodeRuntime, bool) {
	rt, ok := c.runtimes[id]
	return rt, ok
}

func (c *Controller) recordEvent(kind, actor, target string, fields map[string]any) {
	c.eventlog.Append(EventLogEntry{Time: c.sched.Now(), Kind: kind, Actor: actor, Target: target, Fields: fields})
	switch kind {
	case "transfer_completed":
		c.transfersCompleted++
	case "transfer_failed", "replica_sync_failed":
		c.transfersFailed++
	}
}

func (c *Controller) nodeInfo(rt *nodeRuntime) NodeInfo {
	n := rt.node
	return NodeInfo{
		ID:              n.ID,
		IP:              n.IP,
		Zone:            n.Zone,
		StorageBytes:    n.Capacity,
		NICBandwidthBps: n.NICBandwidth,
		CPUCores:        n.CPUCores,
		RAMBytes:        n.RAMBytes,
	}
}

func (c *Controller) linkInfo(l *cluster.Link) LinkInfo {
	return LinkInfo{ID: l.ID, A: l.A, B: l.B, BandwidthBps: l.BandwidthBps, LatencyMs: l.LatencyMs}
}

// Default node sizing applied when add_node's optional fields are omitted
// (spec §6: "add_node(id?, storage?, bandwidth?, cpu?, ram?, zone?)").
const (
	defaultNodeStorageBytes    = 100 << 30 // 100 GB
	defaultNodeNICBandwidthBps = 1 << 30   // ~1 Gbps
	defaultNodeCPUCores        = 4
	defaultNodeRAMBytes        = 16 << 30 // 16 GB
)

// AddNode implements add_node (spec §6).
func (c *Controller) AddNode(opts NodeOpts) (NodeInfo, error) {
	id := opts.ID
	if id == "" {
		id = c.ids.NodeID()
	}
	if _, exists := c.runtimes[id]; exists {
		return NodeInfo{}, cmn.NewErr("add_node", cmn.KindDuplicateNode, string(id))
	}
	storage, bw, cpu, ram := opts.StorageBytes, opts.NICBandwidthBps, opts.CPUCores, opts.RAMBytes
	if storage <= 0 {
		storage = defaultNodeStorageBytes
	}
	if bw <= 0 {
		bw = defaultNodeNICBandwidthBps
	}
	if cpu <= 0 {
		cpu = defaultNodeCPUCores
	}
	if ram <= 0 {
		ram = defaultNodeRAMBytes
	}
	rt := c.buildRuntime(id, opts.Zone, storage, ram, bw, cpu)
	c.manager.OnNodeAdded(id)
	c.recordEvent("node_added", string(id), "", map[string]any{"ip": rt.node.IP})
	return c.nodeInfo(rt), nil
}

// buildRuntime materializes a node's fabric entry, VirtualDisk, and
// VirtualOS, registering a private metrics registry for it. Shared by
// AddNode and spawnReplica, which differ only in how cluster membership is
// assigned afterward.
func (c *Controller) buildRuntime(id cmn.NodeID, zone string, storageBytes, ramBytes, nicBandwidthBps int64, cpuCores int) *nodeRuntime {
	ip := c.fabric.NextIP()
	n := cluster.NewNode(id, ip, zone, storageBytes, ramBytes, nicBandwidthBps, cpuCores)
	c.fabric.AddNode(n)
	reg := prometheus.NewRegistry()
	rt := &nodeRuntime{
		node: n,
		disk: vdisk.New(c.sched, c.cfg, storageBytes, c.ids),
		os:   vos.New(c.sched, c.cfg, string(id), ramBytes, reg),
	}
	c.runtimes[id] = rt
	c.registries[id] = reg
	return rt
}

// spawnReplica is the mirror.SpawnFunc the ClusterManager calls when
// demand-driven scaling decides a node needs a sibling (spec §4.6). The
// new node inherits the parent's sizing; ClusterManager itself handles
// cluster-membership assignment and link mirroring once this returns.
func (c *Controller) spawnReplica(parent cmn.NodeID, reason string) (cmn.NodeID, error) {
	parentRT, ok := c.runtimes[parent]
	if !ok {
		return "", cmn.NewErr("spawn_replica", cmn.KindUnknownNode, string(parent))
	}
	id := c.ids.NodeID()
	n := parentRT.node
	rt := c.buildRuntime(id, n.Zone, parentRT.disk.Capacity(), parentRT.os.RAMCapacity(), n.NICBandwidth, n.CPUCores)
	c.recordEvent("node_added", string(id), string(parent), map[string]any{"ip": rt.node.IP, "reason": reason})
	return id, nil
}

// RemoveNode implements remove_node (spec §6).
func (c *Controller) RemoveNode(id cmn.NodeID) error {
	if _, ok := c.runtimes[id]; !ok {
		return cmn.NewErr("remove_node", cmn.KindUnknownNode, string(id))
	}
	c.fabric.RemoveNode(id)
	c.manager.OnNodeRemoved(id)
	delete(c.runtimes, id)
	delete(c.registries, id)
	c.recordEvent("node_removed", string(id), "", nil)
	return nil
}

// Default link sizing applied when connect's optional fields are omitted.
const (
	defaultLinkBandwidthBps = 1 << 30 // ~1 Gbps
	defaultLinkLatencyMs    = 1.0
)

// Connect implements connect(id_a, id_b, ..., bandwidth?, latency?), which
// chains adjacent pairs into links (spec §6).
func (c *Controller) Connect(ids []cmn.NodeID, bandwidthBps int64, latencyMs float64) ([]LinkInfo, error) {
	if len(ids) < 2 {
		return nil, cmn.NewErr("connect", cmn.KindInvalidArgument, "need at least two node IDs")
	}
	if bandwidthBps <= 0 {
		bandwidthBps = defaultLinkBandwidthBps
	}
	if latencyMs <= 0 {
		latencyMs = defaultLinkLatencyMs
	}
	out := make([]LinkInfo, 0, len(ids)-1)
	for i := 0; i+1 < len(ids); i++ {
		a, b := ids[i], ids[i+1]
		if _, ok := c.runtimes[a]; !ok {
			return nil, cmn.NewErr("connect", cmn.KindUnknownNode, string(a))
		}
		if _, ok := c.runtimes[b]; !ok {
			return nil, cmn.NewErr("connect", cmn.KindUnknownNode, string(b))
		}
		l := cluster.NewLink(c.ids.LinkID(), a, b, bandwidthBps, latencyMs)
		c.fabric.AddLink(l)
		c.manager.OnLinkAdded(a, b, bandwidthBps, latencyMs)
		c.recordEvent("link_connected", string(a), string(b), map[string]any{"link": l.ID})
		out = append(out, c.linkInfo(l))
	}
	return out, nil
}

// Disconnect implements disconnect(a,b) (spec §6).
func (c *Controller) Disconnect(a, b cmn.NodeID) error {
	l, ok := c.fabric.FindLink(a, b)
	if !ok {
		return cmn.NewErr("disconnect", cmn.KindInvalidArgument, "no such link")
	}
	c.fabric.RemoveLink(l.ID)
	c.recordEvent("link_disconnected", string(a), string(b), nil)
	return nil
}

// FailNode implements fail_node(id) (spec §6).
func (c *Controller) FailNode(id cmn.NodeID) error {
	if _, ok := c.runtimes[id]; !ok {
		return cmn.NewErr("fail_node", cmn.KindUnknownNode, string(id))
	}
	c.fabric.FailNode(id)
	c.engine.OnNodeFailed(id) // emits link_failed for every touched link carrying a flow
	c.recordEvent("node_failed", string(id), "", nil)
	return nil
}

// RestoreNode implements restore_node(id) (spec §6).
func (c *Controller) RestoreNode(id cmn.NodeID) error {
	if _, ok := c.runtimes[id]; !ok {
		return cmn.NewErr("restore_node", cmn.KindUnknownNode, string(id))
	}
	c.fabric.RestoreNode(id)
	c.recordEvent("node_restored", string(id), "", nil)
	return nil
}

// FailLink implements fail_link(a,b) (spec §6).
func (c *Controller) FailLink(a, b cmn.NodeID) error {
	l, ok := c.fabric.FindLink(a, b)
	if !ok {
		return cmn.NewErr("fail_link", cmn.KindInvalidArgument, "no such link")
	}
	c.fabric.FailLink(l.ID)
	c.engine.OnLinkFailed(l.ID) // emits link_failed itself
	return nil
}

// RestoreLink implements restore_link(a,b) (spec §6).
func (c *Controller) RestoreLink(a, b cmn.NodeID) error {
	l, ok := c.fabric.FindLink(a, b)
	if !ok {
		return cmn.NewErr("restore_link", cmn.KindInvalidArgument, "no such link")
	}
	c.fabric.RestoreLink(l.ID)
	c.recordEvent("link_restored", string(a), string(b), nil)
	return nil
}

// InitiateFileTransfer implements initiate_file_transfer (spec §6).
func (c *Controller) InitiateFileTransfer(src, dst cmn.NodeID, fileID cmn.FileID, size, chunkSizeHint int64) (cmn.TransferID, error) {
	return c.engine.InitiateFileTransfer(src, dst, fileID, size, chunkSizeHint)
}

// InitiateReplicaTransfer implements initiate_replica_transfer(owner,
// target, file_id) (spec §6): size isn't a caller-supplied parameter at
// this surface, since a replica transfer moves a file the owner already
// has committed — the size is derived from the owner's own chunk records.
func (c *Controller) InitiateReplicaTransfer(owner, target cmn.NodeID, fileID cmn.FileID) (cmn.TransferID, error) {
	ownerRT, ok := c.runtimes[owner]
	if !ok {
		return "", cmn.NewErr("initiate_replica_transfer", cmn.KindUnknownNode, string(owner))
	}
	records := ownerRT.disk.ChunksOf(fileID)
	if len(records) == 0 {
		return "", cmn.NewErr("initiate_replica_transfer", cmn.KindInvalidArgument, "owner holds no chunks for file")
	}
	var size int64
	for _, r := range records {
		size += r.Length
	}
	return c.engine.InitiateReplicaTransfer(owner, target, fileID, size)
}

// Abort cancels a pending transfer (spec §5 "Cancellation").
func (c *Controller) Abort(id cmn.TransferID) error { return c.engine.Abort(id) }

// Push implements push(src,file,size,local?) (spec §6): an external
// client write landing directly on a node, gated through that node's
// VirtualOS ingest/disk-write admission exactly like an engine-driven
// final hop, then (unless local) fanned out to the node's cluster the same
// way a primary transfer completion is.
func (c *Controller) Push(target cmn.NodeID, fileID cmn.FileID, size int64, local bool) (cmn.TransferID, error) {
	rt, ok := c.runtimes[target]
	if !ok {
		return "", cmn.NewErr("push", cmn.KindUnknownNode, string(target))
	}
	if !rt.Online() {
		return "", cmn.NewErr("push", cmn.KindNodeOffline, string(target))
	}
	rid, err := rt.disk.Reserve(fileID, size)
	if err != nil {
		return "", err
	}
	id := c.ids.TransferID()
	checksum := vdisk.Checksum([]byte(fmt.Sprintf("push:%s:%d", fileID, size)))
	c.recordEvent("push_started", string(target), "", map[string]any{"transfer": id, "file": fileID, "size": size})

	_, err = rt.os.NetworkSend(true, 1, 0, func(complete func(error)) {
		complete(nil)
	}, func(p *vos.Process) {
		if p.Err != nil {
			c.recordEvent("push_failed", string(target), "", map[string]any{"transfer": id, "cause": p.Err.Error()})
			return
		}
		rt.os.DiskWrite(1, 0, func(complete func(error)) {
			_, werr := rt.disk.WriteChunk(rid, 0, size, checksum, func(t *vdisk.IOTicket) { complete(t.Err) })
			if werr != nil {
				complete(werr)
			}
		}, func(p *vos.Process) {
			if p.Err != nil {
				c.recordEvent("push_failed", string(target), "", map[string]any{"transfer": id, "cause": p.Err.Error()})
				return
			}
			c.recordEvent("push_completed", string(target), "", map[string]any{"transfer": id, "file": fileID})
			if !local {
				c.manager.FanOut(target, fileID, size)
			}
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Fetch implements fetch(target,file) (spec §6): returns the committed
// chunk records for fileID on target, as they stand right now. CloudSim
// has no real payload bytes to stream back, so fetch reads the committed
// index directly rather than modeling a byte-by-byte async read pipeline.
func (c *Controller) Fetch(target cmn.NodeID, fileID cmn.FileID) ([]vdisk.ChunkRecord, error) {
	rt, ok := c.runtimes[target]
	if !ok {
		return nil, cmn.NewErr("fetch", cmn.KindUnknownNode, string(target))
	}
	records := rt.disk.ChunksOf(fileID)
	if len(records) == 0 {
		return nil, cmn.NewErr("fetch", cmn.KindInvalidArgument, "file not present on target")
	}
	c.recordEvent("fetch", string(target), "", map[string]any{"file": fileID, "chunks": len(records)})
	return records, nil
}

// Inspect implements inspect(id) (spec §6).
func (c *Controller) Inspect(id cmn.NodeID) (InspectResult, error) {
	rt, ok := c.runtimes[id]
	if !ok {
		return InspectResult{}, cmn.NewErr("inspect", cmn.KindUnknownNode, string(id))
	}
	n := rt.node

	children := make([]cmn.NodeID, 0, len(n.ReplicaChildren))
	for child := range n.ReplicaChildren {
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })

	neighbors := make([]cmn.NodeID, 0, len(n.Neighbors))
	for nb := range n.Neighbors {
		neighbors = append(neighbors, nb)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })

	return InspectResult{
		Online:          n.Online(),
		Zone:            n.Zone,
		Bandwidth:       n.NICBandwidth,
		ReplicaParent:   n.ReplicaParent,
		ReplicaChildren: children,
		Neighbors:       neighbors,
		StoredFiles:     rt.disk.Files(),
		ActiveTransfers: c.engine.ActiveInvolving(id),
		Usage: UsageStats{
			DiskUsed:     rt.disk.Committed(),
			DiskCapacity: rt.disk.Capacity(),
			RAMUsed:      rt.os.RAMUsed(),
			RAMCapacity:  rt.os.RAMCapacity(),
		},
		Telemetry: c.nodeTelemetry(id),
	}, nil
}

// Events implements events(tail=N) (spec §6).
func (c *Controller) Events(tail int) []EventLogEntry { return c.eventlog.Tail(tail) }

// Step implements step(seconds) (spec §6): advances the scheduler by at
// most `seconds` of simulated time, dispatching every event due in that
// window.
func (c *Controller) Step(seconds float64) (StepResult, error) {
	if seconds < 0 {
		return StepResult{}, cmn.NewErr("step", cmn.KindInvalidArgument, "negative duration")
	}
	before := c.sched.Now()
	until := before + seconds
	dispatched := c.sched.Run(&until, 0)
	return StepResult{
		Duration: c.sched.Now() - before,
		Metrics: StepMetrics{
			EventsDispatched:   dispatched,
			TransfersCompleted: c.transfersCompleted,
			TransfersFailed:    c.transfersFailed,
		},
	}, nil
}

// runFor is an internal helper bounding dispatch to a large but finite
// horizon. The demand-scaling loop self-reschedules forever (spec §4.6),
// so an unbounded queue-drain would never return; step(seconds) is the
// only caller-facing way to advance time, and it is always time-bounded.
func (c *Controller) runFor(seconds float64) int {
	until := c.sched.Now() + seconds
	return c.sched.Run(&until, 0)
}
