package vos

// deviceKind tags the small fixed set of device variants a node exposes
// (spec §9: "replace runtime-polymorphic hierarchies with a small tagged
// variant set").
type deviceKind int

const (
	devDisk deviceKind = iota
	devNIC
	devMaintenance
)

// device gates concurrency for one class of syscall (spec §4.3: "disk: 1
// outstanding I/O; NIC: N parallel transmissions"). Excess work parks on
// waiting until a running process's completion frees a slot.
type device struct {
	kind        deviceKind
	concurrency int
	inUse       int
	waiting     []*Process
}

func newDevice(kind deviceKind, concurrency int) *device {
	if concurrency < 1 {
		concurrency = 1
	}
	return &device{kind: kind, concurrency: concurrency}
}

// admit tries to acquire a slot for p. If none is free, p parks in
// waiting (state Blocked) and start is not called until a later release().
func (d *device) admit(p *Process, start func(*Process)) {
	if d.inUse < d.concurrency {
		d.inUse++
		p.State = Running
		start(p)
		return
	}
	p.State = Blocked
	d.waiting = append(d.waiting, p)
}

// release frees p's slot and, if anything is waiting, admits the next
// process in FIFO order.
func (d *device) release(start func(*Process)) {
	d.inUse--
	if d.inUse < 0 {
		d.inUse = 0
	}
	if len(d.waiting) == 0 {
		return
	}
	next := d.waiting[0]
	d.waiting = d.waiting[1:]
	d.inUse++
	next.State = Running
	start(next)
}
