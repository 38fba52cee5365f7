package xact_test

import (
	"github.com/nexusai-enterprises/cloudsim/cluster"
	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
	"github.com/nexusai-enterprises/cloudsim/vdisk"
	"github.com/nexusai-enterprises/cloudsim/vos"
	"github.com/nexusai-enterprises/cloudsim/xact"
)

// nodeRuntime adapts a cluster.Node + its VirtualDisk/VirtualOS to
// xact.NodeRuntime, mirroring the pairing ais.Controller keeps in
// production (see DESIGN.md's cluster/ note on why Node doesn't embed
// these directly).
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
}

type harness struct {
	sched    *scheduler.Scheduler
	cfg      *cmn.Config
	ids      *cmn.IDGen
	fabric   *cluster.RoutingFabric
	runtimes map[cmn.NodeID]*nodeRuntime
	engine   *xact.Engine
	events   []eventEntry
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
	return h
}

func (h *harness) lookup(id cmn.NodeID) (xact.NodeRuntime, bool) {
	rt, ok := h.runtimes[id]
	return rt, ok
}

func (h *harness) record(kind, actor, target string, fields map[string]any) {
	h.events = append(h.events, eventEntry{kind: kind, actor: actor, target: target})
}

func (h *harness) eventKinds() []string {
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.kind
	}
	return out
}

func (h *harness) addNode(id cmn.NodeID, capacity, ram int64) *nodeRuntime {
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

func (h *harness) addLink(a, b cmn.NodeID, bandwidthBps int64, latencyMs float64) *cluster.Link {
	l := cluster.NewLink(cmn.LinkID(string(a)+"-"+string(b)), a, b, bandwidthBps, latencyMs)
	h.fabric.AddLink(l)
	return l
}
