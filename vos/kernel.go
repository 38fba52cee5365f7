package vos

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/cmn/nlog"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
)

const cpuTickPriority = 1 // dispatched after disk/transfer commit events at the same time

// VirtualOS is a node's cooperative kernel: RAM/CPU accounting, four
// syscalls (disk_read, disk_write, network_send, maintenance_hook), and a
// small fixed device set gating I/O concurrency (spec §4.3).
type VirtualOS struct {
	sched *scheduler.Scheduler
	cfg   *cmn.Config

	nodeID string

	ramCapacity int64
	ramUsed     int64

	pidCounter int64
	processes  map[int64]*Process

	ready         []*Process
	cpuTickActive bool

	devices map[deviceKind]*device

	failures      int64
	failuresGauge prometheus.Counter
}

// New builds a VirtualOS for a node with the given RAM capacity. nodeID is
// used only as a metric label.
func New(sched *scheduler.Scheduler, cfg *cmn.Config, nodeID string, ramCapacity int64, reg *prometheus.Registry) *VirtualOS {
	k := &VirtualOS{
		sched:       sched,
		cfg:         cfg,
		nodeID:      nodeID,
		ramCapacity: ramCapacity,
		processes:   make(map[int64]*Process),
		devices: map[deviceKind]*device{
			devDisk:        newDevice(devDisk, cfg.DiskConcurrency),
			devNIC:         newDevice(devNIC, cfg.NICConcurrency),
			devMaintenance: newDevice(devMaintenance, 1),
		},
	}
	k.failuresGauge = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "cloudsim_os_process_failures_total",
		Help:        "VirtualOS process failures (disk/NIC errors propagated to a process)",
		ConstLabels: prometheus.Labels{"node": nodeID},
	})
	if reg != nil {
		_ = reg.Register(k.failuresGauge)
	}
	return k
}

func (k *VirtualOS) RAMUsed() int64     { return k.ramUsed }
func (k *VirtualOS) RAMCapacity() int64 { return k.ramCapacity }
func (k *VirtualOS) Failures() int64    { return k.failures }

// RAMUtilization is ram_used/ram_capacity, 0 if the node has no RAM budget.
func (k *VirtualOS) RAMUtilization() float64 {
	if k.ramCapacity <= 0 {
		return 0
	}
	return float64(k.ramUsed) / float64(k.ramCapacity)
}

// NICUtilization approximates link-layer pressure as the fraction of NIC
// device slots currently held, used by demand-scaling's bandwidth_threshold
// check (spec §4.6).
func (k *VirtualOS) NICUtilization() float64 {
	dev := k.devices[devNIC]
	if dev.concurrency <= 0 {
		return 0
	}
	return float64(dev.inUse) / float64(dev.concurrency)
}

// BlockedCount reports how many processes are currently parked waiting for
// a device slot (used by scenario S6's backpressure assertion).
func (k *VirtualOS) BlockedCount(kind ProcessKind) int {
	return len(k.devices[kind.deviceKind()].waiting)
}

// RunningCount reports how many processes currently hold a device slot.
func (k *VirtualOS) RunningCount(kind ProcessKind) int {
	return k.devices[kind.deviceKind()].inUse
}

func (k *VirtualOS) spawn(kind ProcessKind, cpuTicks int, ram int64, work func(complete func(error))) (*Process, error) {
	if k.ramUsed+ram > k.ramCapacity {
		return nil, cmn.NewErr(kind.String(), cmn.KindOOM, "ram exhausted")
	}
	k.pidCounter++
	p := &Process{
		PID:               k.pidCounter,
		Kind:              kind,
		CPUTicksRemaining: cpuTicks,
		RAMReserved:       ram,
		State:             Ready,
		device:            kind.deviceKind(),
		onDevice:          work,
	}
	k.ramUsed += ram
	k.processes[p.PID] = p
	k.enqueueReady(p)
	return p, nil
}

func (k *VirtualOS) enqueueReady(p *Process) {
	k.ready = append(k.ready, p)
	k.scheduleCPUTick()
}

// scheduleCPUTick arranges the next round-robin CPU slice if one isn't
// already pending (spec §4.3: "grants one CPU tick per simulated tick
// slice" across the ready set).
func (k *VirtualOS) scheduleCPUTick() {
	if k.cpuTickActive || len(k.ready) == 0 {
		return
	}
	k.cpuTickActive = true
	k.sched.ScheduleIn(k.cfg.TickSeconds, cpuTickPriority, k.runCPUTick)
}

func (k *VirtualOS) runCPUTick(float64) {
	k.cpuTickActive = false
	if len(k.ready) == 0 {
		return
	}
	// One CPU tick is granted to every process that's ready at the start of
	// this slice (spec §4.3), not just the head of the queue: serializing on
	// a single process per tick would cap a node's aggregate admission rate
	// at chunk_size/tick_seconds regardless of link bandwidth.
	slice := k.ready
	k.ready = nil
	for _, p := range slice {
		p.CPUTicksRemaining--
		if p.CPUTicksRemaining > 0 {
			k.ready = append(k.ready, p) // round robin: back of the line
		} else {
			k.admitToDevice(p)
		}
	}
	k.scheduleCPUTick()
}

func (k *VirtualOS) admitToDevice(p *Process) {
	dev := k.devices[p.device]
	dev.admit(p, k.runOnDevice)
}

func (k *VirtualOS) runOnDevice(p *Process) {
	p.onDevice(func(err error) { k.completeProcess(p, err) })
}

func (k *VirtualOS) completeProcess(p *Process, err error) {
	dev := k.devices[p.device]
	dev.release(k.runOnDevice)

	k.ramUsed -= p.RAMReserved
	if err != nil {
		p.State = Failed
		p.Err = err
		k.failures++
		k.failuresGauge.Inc()
		nlog.Warningf("vos[%s]: %s pid=%d failed: %v", k.nodeID, p.Kind, p.PID, err)
	} else {
		p.State = Done
	}
	delete(k.processes, p.PID)
	if p.OnComplete != nil {
		p.OnComplete(p)
	}
}

// DiskRead spawns a disk_read process (spec §4.3). work is handed the
// device-gated start signal and must call complete(err) when the
// underlying VirtualDisk read settles.
func (k *VirtualOS) DiskRead(cpuTicks int, ram int64, work func(complete func(error)), onComplete func(*Process)) (*Process, error) {
	p, err := k.spawn(KindDiskRead, cpuTicks, ram, work)
	if err != nil {
		return nil, err
	}
	p.OnComplete = onComplete
	return p, nil
}

// DiskWrite spawns a disk_write process (spec §4.3).
func (k *VirtualOS) DiskWrite(cpuTicks int, ram int64, work func(complete func(error)), onComplete func(*Process)) (*Process, error) {
	p, err := k.spawn(KindDiskWrite, cpuTicks, ram, work)
	if err != nil {
		return nil, err
	}
	p.OnComplete = onComplete
	return p, nil
}

// NetworkSend spawns an egress process through the NIC device (spec §4.3).
// direction distinguishes ingest (receiving) from egress (sending) for
// telemetry only; both share the same NIC device concurrency budget.
func (k *VirtualOS) NetworkSend(ingest bool, cpuTicks int, ram int64, work func(complete func(error)), onComplete func(*Process)) (*Process, error) {
	kind := KindEgress
	if ingest {
		kind = KindIngest
	}
	p, err := k.spawn(kind, cpuTicks, ram, work)
	if err != nil {
		return nil, err
	}
	p.OnComplete = onComplete
	return p, nil
}

// MaintenanceHook spawns a background maintenance process (spec §4.3).
func (k *VirtualOS) MaintenanceHook(cpuTicks int, ram int64, work func(complete func(error)), onComplete func(*Process)) (*Process, error) {
	p, err := k.spawn(KindMaintenance, cpuTicks, ram, work)
	if err != nil {
		return nil, err
	}
	p.OnComplete = onComplete
	return p, nil
}
