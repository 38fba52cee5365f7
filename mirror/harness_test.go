package mirror_test

import (
	"fmt"

	"github.com/nexusai-enterprises/cloudsim/cluster"
	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/mirror"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
	"github.com/nexusai-enterprises/cloudsim/vdisk"
	"github.com/nexusai-enterprises/cloudsim/vos"
	"github.com/nexusai-enterprises/cloudsim/xact"
)

type nodeRuntime struct {
	node *cluster.Node
	disk *vdisk.VirtualDisk
	os   *vos.VirtualOS
}

func (r *nodeRuntime) Disk() *vdisk.VirtualDisk { return r.disk }
func (r *nodeRuntime) OS() *vos.VirtualOS       { return r.os }
func (r *nodeRuntime) Online() bool             { return r.node.Online() }

type eventEntry struct {
	kind, actor, target string
	fields              map[string]any
}

type harness struct {
	sched    *scheduler.Scheduler
	cfg      *cmn.Config
	ids      *cmn.IDGen
	fabric   *cluster.RoutingFabric
	runtimes map[cmn.NodeID]*nodeRuntime
	engine   *xact.Engine
	manager  *mirror.Manager
	events   []eventEntry

	spawnSeq int
}

func newHarness() *harness {
	h := &harness{
		sched:    scheduler.New(),
		cfg:      cmn.DefaultConfig(),
		ids:      cmn.NewIDGen(1),
		runtimes: make(map[cmn.NodeID]*nodeRuntime),
	}
	h.fabric = cluster.NewRoutingFabric(cluster.LinkState, cluster.LatencyWeight, 64)
	h.engine = xact.New(h.sched, h.cfg, h.fabric, h.ids, h.lookup, h.record)
	h.manager = mirror.New(h.sched, h.cfg, h.fabric, h.engine, h.ids, h.lookup, h.record, nil, h.spawnReplica)
	return h
}

func (h *harness) lookup(id cmn.NodeID) (xact.NodeRuntime, bool) {
	rt, ok := h.runtimes[id]
	return rt, ok
}

func (h *harness) record(kind, actor, target string, fields map[string]any) {
	h.events = append(h.events, eventEntry{kind: kind, actor: actor, target: target, fields: fields})
}

func (h *harness) eventKinds() []string {
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.kind
	}
	return out
}

func (h *harness) countEventKind(kind string) int {
	n := 0
	for _, e := range h.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// registerNode materializes a node's fabric entry and runtime, without any
// cluster-membership decision.
func (h *harness) registerNode(id cmn.NodeID, capacity, ram int64) *nodeRuntime {
	n := cluster.NewNode(id, h.fabric.NextIP(), "z1", capacity, ram, 0, 4)
	h.fabric.AddNode(n)
	rt := &nodeRuntime{
		node: n,
		disk: vdisk.New(h.sched, h.cfg, capacity, h.ids),
		os:   vos.New(h.sched, h.cfg, string(id), ram, nil),
	}
	h.runtimes[id] = rt
	return rt
}

func (h *harness) addNode(id cmn.NodeID, capacity, ram int64) *nodeRuntime {
	rt := h.registerNode(id, capacity, ram)
	h.manager.OnNodeAdded(id)
	return rt
}

func (h *harness) addLink(a, b cmn.NodeID, bandwidthBps int64, latencyMs float64) *cluster.Link {
	l := cluster.NewLink(h.ids.LinkID(), a, b, bandwidthBps, latencyMs)
	h.fabric.AddLink(l)
	h.manager.OnLinkAdded(a, b, bandwidthBps, latencyMs)
	return l
}

// spawnReplica is the harness's mirror.SpawnFunc: it materializes a new
// node the same way the real Controller's add_node would, sized after the
// parent it is relieving.
func (h *harness) spawnReplica(parent cmn.NodeID, reason string) (cmn.NodeID, error) {
	parentRT, ok := h.runtimes[parent]
	if !ok {
		return "", cmn.NewErr("spawn_replica", cmn.KindUnknownNode, string(parent))
	}
	h.spawnSeq++
	id := cmn.NodeID(fmt.Sprintf("%s-r%d", parent, h.spawnSeq))
	h.registerNode(id, parentRT.disk.Capacity(), parentRT.os.RAMCapacity())
	return id, nil
}
