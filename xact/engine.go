package xact

import (
	"fmt"
	"sort"

	"github.com/nexusai-enterprises/cloudsim/cluster"
	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/cmn/nlog"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
	"github.com/nexusai-enterprises/cloudsim/vdisk"
	"github.com/nexusai-enterprises/cloudsim/vos"
)

const tickPriority = 2 // after vos CPU ticks (priority 1) dispatched at the same instant

// EventFunc receives one append-only event-log entry (spec §3, §4.7).
type EventFunc func(kind, actor, target string, fields map[string]any)

// Engine is the TransferEngine: per-tick bandwidth sharing across
// concurrent flows, multi-hop chunk progression, and failover (spec §4.5).
type Engine struct {
	sched   *scheduler.Scheduler
	cfg     *cmn.Config
	fabric  *cluster.RoutingFabric
	ids     *cmn.IDGen
	runtime Lookup
	onEvent EventFunc

	onComplete func(*Transfer) // notifies ClusterManager of a primary completion

	transfers map[cmn.TransferID]*Transfer
	linkFlows map[cmn.LinkID][]*Flow
	tickActive bool
}

// New builds a TransferEngine wired to the given scheduler, fabric, and
// per-node runtime lookup.
func New(sched *scheduler.Scheduler, cfg *cmn.Config, fabric *cluster.RoutingFabric, ids *cmn.IDGen, runtime Lookup, onEvent EventFunc) *Engine {
	return &Engine{
		sched:     sched,
		cfg:       cfg,
		fabric:    fabric,
		ids:       ids,
		runtime:   runtime,
		onEvent:   onEvent,
		transfers: make(map[cmn.TransferID]*Transfer),
		linkFlows: make(map[cmn.LinkID][]*Flow),
	}
}

// SetCompletionHook installs the callback fired on every successful primary
// (non-replica) transfer completion — ClusterManager's fan-out trigger.
func (e *Engine) SetCompletionHook(fn func(*Transfer)) { e.onComplete = fn }

func (e *Engine) Transfer(id cmn.TransferID) (*Transfer, bool) {
	t, ok := e.transfers[id]
	return t, ok
}

// ActiveFlowCount reports how many flows currently occupy a link.
func (e *Engine) ActiveFlowCount(linkID cmn.LinkID) int {
	return len(e.linkFlows[linkID])
}

// ActiveInvolving returns the IDs of every currently-Active transfer whose
// source or destination is id, sorted for deterministic inspect() output.
func (e *Engine) ActiveInvolving(id cmn.NodeID) []cmn.TransferID {
	var out []cmn.TransferID
	for tid, tr := range e.transfers {
		if tr.State == Active && (tr.Src == id || tr.Dst == id) {
			out = append(out, tid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnTransferDone registers a callback fired once, when the given transfer
// reaches any terminal state (completed, failed, or aborted).
func (e *Engine) OnTransferDone(id cmn.TransferID, fn func(*Transfer)) {
	if tr, ok := e.transfers[id]; ok {
		tr.onDone = fn
	}
}

func (e *Engine) emit(kind, actor, target string, fields map[string]any) {
	if e.onEvent != nil {
		e.onEvent(kind, actor, target, fields)
	}
}

// InitiateFileTransfer resolves a route, reserves destination capacity, and
// registers per-chunk flows starting at hop 0 (spec §4.5 steps 1-3).
// chunkSizeHint <= 0 requests the derived chunk size.
func (e *Engine) InitiateFileTransfer(src, dst cmn.NodeID, fileID cmn.FileID, size, chunkSizeHint int64) (cmn.TransferID, error) {
	return e.initiate(src, dst, fileID, size, chunkSizeHint, false)
}

// InitiateReplicaTransfer is initiate_replica_transfer (spec §4.6): same
// mechanics, but a failure is surfaced as replica_sync_failed rather than
// failing the caller's primary write.
func (e *Engine) InitiateReplicaTransfer(owner, target cmn.NodeID, fileID cmn.FileID, size int64) (cmn.TransferID, error) {
	return e.initiate(owner, target, fileID, size, 0, true)
}

func (e *Engine) initiate(src, dst cmn.NodeID, fileID cmn.FileID, size, chunkSizeHint int64, replica bool) (cmn.TransferID, error) {
	route, err := e.fabric.GetRoute(src, dst)
	if err != nil {
		return "", err
	}
	dstRT, ok := e.runtime(dst)
	if !ok {
		return "", cmn.NewErr("initiate_transfer", cmn.KindUnknownNode, string(dst))
	}
	rid, err := dstRT.Disk().Reserve(fileID, size)
	if err != nil {
		return "", err
	}

	sz := chunkSizeHint
	if sz <= 0 {
		sz = chunkSize(e.cfg, size, e.bottleneckBandwidth(route))
	}
	chunks := splitChunks(size, sz)
	for _, c := range chunks {
		c.Checksum = vdisk.Checksum(syntheticPayload(fileID, c.ID, c.Length))
		c.Route = append([]cmn.NodeID{}, route...)
	}

	id := e.ids.TransferID()
	tr := &Transfer{
		ID:          id,
		Src:         src,
		Dst:         dst,
		FileID:      fileID,
		Size:        size,
		ChunkSize:   sz,
		Route:       route,
		Chunks:      chunks,
		State:       Active,
		CreatedAt:   e.sched.Now(),
		reservation: rid,
		isReplica:   replica,
	}
	e.transfers[id] = tr
	e.emit("transfer_started", string(src), string(dst), map[string]any{"transfer": id, "file": fileID, "size": size, "chunks": len(chunks)})

	for _, c := range tr.Chunks {
		e.admitHop(tr, c, 0)
	}
	return id, nil
}

func (e *Engine) bottleneckBandwidth(route []cmn.NodeID) int64 {
	var min int64 = -1
	for i := 0; i+1 < len(route); i++ {
		link, ok := e.fabric.FindLink(route[i], route[i+1])
		if !ok {
			continue
		}
		if min < 0 || link.BandwidthBps < min {
			min = link.BandwidthBps
		}
	}
	if min <= 0 {
		min = e.cfg.ChunkMax
	}
	return min
}

func syntheticPayload(fileID cmn.FileID, chunkID int, length int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", fileID, chunkID, length))
}

// admitHop acquires a NetworkSend admission on the hop's sender, then
// registers the chunk's Flow on the hop's link once the device grants a
// slot (spec §4.5 step 3-4). The slot is held for the hop's entire
// transit, releasing only when the per-tick loop drains the flow to zero.
func (e *Engine) admitHop(tr *Transfer, c *Chunk, hop int) {
	c.Hop = hop
	c.State = ChunkInFlight
	sender := c.Route[hop]
	rt, ok := e.runtime(sender)
	if !ok || !rt.Online() {
		e.failTransfer(tr, cmn.NewErr("network_send", cmn.KindNodeOffline, string(sender)))
		return
	}
	_, err := rt.OS().NetworkSend(false, 1, 0, func(complete func(error)) {
		link, ok := e.fabric.FindLink(c.Route[hop], c.Route[hop+1])
		if !ok || !link.Up() {
			complete(cmn.NewErr("network_send", cmn.KindNoRoute, "link down"))
			return
		}
		// Propagation delay before the chunk starts occupying link
		// bandwidth, so hop time is latency + bandwidth-limited transmit.
		e.sched.ScheduleIn(link.LatencyMs/1000, 0, func(float64) {
			link, ok := e.fabric.FindLink(c.Route[hop], c.Route[hop+1])
			if !ok || !link.Up() {
				complete(cmn.NewErr("network_send", cmn.KindNoRoute, "link down"))
				return
			}
			f := &Flow{
				ID:             e.ids.FlowID(),
				TransferID:     tr.ID,
				ChunkID:        c.ID,
				LinkID:         link.ID,
				RemainingBytes: c.Length,
				StartedAt:      e.sched.Now(),
				onHopDone:      complete,
			}
			e.linkFlows[link.ID] = append(e.linkFlows[link.ID], f)
			link.ActiveFlows[f.ID] = struct{}{}
			e.ensureTick()
		})
	}, func(p *vos.Process) {
		if tr.State != Active {
			return
		}
		if p.Err != nil {
			e.failTransfer(tr, p.Err)
			return
		}
		e.chunkArrived(tr, c, hop+1)
	})
	if err != nil {
		e.failTransfer(tr, err)
	}
}

// chunkArrived runs when a chunk lands on the node at c.Route[atIndex]: it
// either commits to that node's disk (final hop) or continues forwarding.
func (e *Engine) chunkArrived(tr *Transfer, c *Chunk, atIndex int) {
	if tr.State != Active {
		return
	}
	if atIndex == len(c.Route)-1 {
		e.commitChunk(tr, c)
		return
	}
	e.admitHop(tr, c, atIndex)
}

func (e *Engine) commitChunk(tr *Transfer, c *Chunk) {
	dst := c.Route[len(c.Route)-1]
	rt, ok := e.runtime(dst)
	if !ok || !rt.Online() {
		e.failTransfer(tr, cmn.NewErr("disk_write", cmn.KindNodeOffline, string(dst)))
		return
	}
	_, err := rt.OS().DiskWrite(1, 0, func(complete func(error)) {
		_, werr := rt.Disk().WriteChunk(tr.reservation, c.ID, c.Length, c.Checksum, func(t *vdisk.IOTicket) {
			complete(t.Err)
		})
		if werr != nil {
			complete(werr)
		}
	}, func(p *vos.Process) {
		if tr.State != Active {
			return
		}
		if p.Err != nil {
			e.failTransfer(tr, p.Err)
			return
		}
		c.State = ChunkCommitted
		if tr.allCommitted() {
			e.completeTransfer(tr)
		}
	})
	if err != nil {
		e.failTransfer(tr, err)
	}
}

func (e *Engine) completeTransfer(tr *Transfer) {
	tr.State = Completed
	e.emit("transfer_completed", string(tr.Src), string(tr.Dst), map[string]any{"transfer": tr.ID, "file": tr.FileID})
	if !tr.isReplica && e.onComplete != nil {
		e.onComplete(tr)
	}
	if tr.onDone != nil {
		tr.onDone(tr)
	}
}

func (e *Engine) failTransfer(tr *Transfer, cause error) {
	if tr.State != Active {
		return
	}
	tr.State = Failed
	if tr.isReplica {
		tr.Err = cmn.WrapErr("replica_transfer", cmn.KindReplicaSyncFailed, cause, "replica sync failed")
		e.emit("replica_sync_failed", string(tr.Src), string(tr.Dst), map[string]any{"transfer": tr.ID, "file": tr.FileID, "cause": cause.Error()})
	} else {
		tr.Err = cause
		e.emit("transfer_failed", string(tr.Src), string(tr.Dst), map[string]any{"transfer": tr.ID, "file": tr.FileID, "cause": cause.Error()})
	}
	nlog.Warningf("xact: transfer %s failed: %v", tr.ID, cause)
	if tr.onDone != nil {
		tr.onDone(tr)
	}
}

// Abort cancels every pending flow event of a transfer, releases the
// destination reservation, and marks it aborted (spec §5 "Cancellation").
func (e *Engine) Abort(id cmn.TransferID) error {
	tr, ok := e.transfers[id]
	if !ok {
		return cmn.NewErr("abort", cmn.KindInvalidArgument, "unknown transfer")
	}
	if tr.State == Completed || tr.State == Aborted {
		return nil
	}
	tr.State = Aborted
	e.releaseFlows(tr.ID)
	if rt, ok := e.runtime(tr.Dst); ok {
		rt.Disk().Abort(tr.reservation)
	}
	e.emit("transfer_aborted", string(tr.Src), string(tr.Dst), map[string]any{"transfer": tr.ID})
	return nil
}

// releaseFlows immediately fires onHopDone for every flow belonging to
// transferID, freeing the device slots they hold. The owning transfer is
// already non-Active by this point, so the resulting completion callbacks
// no-op instead of advancing the chunk.
func (e *Engine) releaseFlows(transferID cmn.TransferID) {
	for linkID, flows := range e.linkFlows {
		var remain []*Flow
		for _, f := range flows {
			if f.TransferID != transferID {
				remain = append(remain, f)
				continue
			}
			if link, ok := e.fabric.Link(linkID); ok {
				delete(link.ActiveFlows, f.ID)
			}
			if cb := f.onHopDone; cb != nil {
				f.onHopDone = nil
				cb(nil)
			}
		}
		if len(remain) == 0 {
			delete(e.linkFlows, linkID)
		} else {
			e.linkFlows[linkID] = remain
		}
	}
}

func (e *Engine) ensureTick() {
	if e.tickActive || len(e.linkFlows) == 0 {
		return
	}
	e.tickActive = true
	e.sched.ScheduleIn(e.cfg.TickSeconds, tickPriority, e.runTick)
}

// runTick divides each active link's per-tick byte budget equally among
// its flows (spec §4.5 step 4, invariant #1), advancing any flow that
// drains to zero. Link IDs are processed in sorted order so two runs with
// identical inputs dispatch completions in the same order regardless of
// Go's randomized map iteration (determinism, invariant #4).
func (e *Engine) runTick(float64) {
	e.tickActive = false
	linkIDs := make([]string, 0, len(e.linkFlows))
	for id := range e.linkFlows {
		linkIDs = append(linkIDs, string(id))
	}
	sort.Strings(linkIDs)

	for _, idStr := range linkIDs {
		linkID := cmn.LinkID(idStr)
		flows := e.linkFlows[linkID]
		if len(flows) == 0 {
			continue
		}
		link, ok := e.fabric.Link(linkID)
		if !ok {
			delete(e.linkFlows, linkID)
			continue
		}
		// budget is the link's total byte allowance for this tick; the
		// per-flow share is clamped so the sum handed out never exceeds it,
		// even when there are more flows than the link can give each one
		// byte this tick (tiny-bandwidth links), preserving invariant #1.
		budget := int64(float64(link.BandwidthBps) / 8 * e.cfg.TickSeconds)
		if budget <= 0 {
			budget = 1
		}
		share := budget / int64(len(flows))
		if share <= 0 {
			share = 1
		}
		var done, remain []*Flow
		var spent int64
		for _, f := range flows {
			take := share
			if spent+take > budget {
				take = budget - spent
			}
			if take < 0 {
				take = 0
			}
			spent += take
			f.RemainingBytes -= take
			if f.RemainingBytes <= 0 {
				done = append(done, f)
			} else {
				remain = append(remain, f)
			}
		}
		if len(remain) == 0 {
			delete(e.linkFlows, linkID)
		} else {
			e.linkFlows[linkID] = remain
		}
		for _, f := range done {
			delete(link.ActiveFlows, f.ID)
			cb := f.onHopDone
			f.onHopDone = nil
			if cb != nil {
				cb(nil)
			}
		}
	}
	e.ensureTick()
}

// OnLinkFailed reacts to a link going down mid-transfer (spec §4.5 step 6):
// every chunk with a flow on that link is paused and rerouted from its
// current position, or the transfer fails with route_lost.
func (e *Engine) OnLinkFailed(linkID cmn.LinkID) {
	e.emit("link_failed", "", string(linkID), map[string]any{"link": linkID})
	flows, ok := e.linkFlows[linkID]
	if !ok {
		return
	}
	delete(e.linkFlows, linkID)
	if link, ok := e.fabric.Link(linkID); ok {
		for _, f := range flows {
			delete(link.ActiveFlows, f.ID)
		}
	}
	for _, f := range flows {
		tr, ok := e.transfers[f.TransferID]
		if !ok || tr.State != Active {
			continue
		}
		e.rerouteChunk(tr, tr.Chunks[f.ChunkID])
	}
}

// OnNodeFailed reacts to a node going offline: every link touching it that
// currently carries a flow is treated as failed.
func (e *Engine) OnNodeFailed(id cmn.NodeID) {
	var touched []string
	for linkID := range e.linkFlows {
		if link, ok := e.fabric.Link(linkID); ok && link.Touches(id) {
			touched = append(touched, string(linkID))
		}
	}
	sort.Strings(touched)
	for _, idStr := range touched {
		e.OnLinkFailed(cmn.LinkID(idStr))
	}
}

// rerouteChunk recomputes a path for c alone, from the node it's currently
// sitting on. c.Route is private to this chunk (see Chunk's doc comment),
// so splicing in the new path here cannot disturb the Hop indices of any
// other chunk of the same transfer that's already downstream of the
// failure.
func (e *Engine) rerouteChunk(tr *Transfer, c *Chunk) {
	from := c.Route[c.Hop]
	newRoute, err := e.fabric.GetRoute(from, tr.Dst)
	if err != nil {
		e.failTransfer(tr, cmn.WrapErr("reroute", cmn.KindRouteLost, err, "no alternate route from "+string(from)))
		return
	}
	c.Route = append(append([]cmn.NodeID{}, c.Route[:c.Hop]...), newRoute...)
	e.emit("route_recomputed", string(from), string(tr.Dst), map[string]any{"transfer": tr.ID})
	e.admitHop(tr, c, c.Hop)
}
