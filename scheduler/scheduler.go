package scheduler

import (
	"container/heap"

	"github.com/nexusai-enterprises/cloudsim/cmn"
)

// Scheduler is the single logical executor that owns simulated time (spec
// §5: "pass an explicit Simulator handle to every component"; here named
// Scheduler since it is the time-owning primitive components embed).
type Scheduler struct {
	now   float64
	seq   uint64
	queue eventHeap
}

// New returns a Scheduler with its clock at zero.
func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.queue)
	return s
}

// Now returns the current simulated time.
func (s *Scheduler) Now() float64 { return s.now }

// Pending returns the number of events still queued, counting cancelled
// tombstones that have not yet been swept (they are only removed when popped).
func (s *Scheduler) Pending() int { return s.queue.Len() }

// ScheduleAt schedules callback to fire at the given absolute simulated
// time. Fails (returns nil) if time is in the past, per spec §4.1.
func (s *Scheduler) ScheduleAt(t float64, priority int, cb Callback) Handle {
	if t < s.now {
		return nil
	}
	s.seq++
	e := &Event{Time: t, Priority: priority, Seq: s.seq, Callback: cb}
	heap.Push(&s.queue, e)
	return e
}

// ScheduleIn schedules callback to fire delta simulated seconds from now.
// delta must be >= 0.
func (s *Scheduler) ScheduleIn(delta float64, priority int, cb Callback) Handle {
	cmn.Assert(delta >= 0, "scheduler.ScheduleIn: negative delta")
	return s.ScheduleAt(s.now+delta, priority, cb)
}

// Cancel tombstones a pending event; it will be skipped when popped. O(1)
// here (the heap is swept lazily at pop time), matching the "cancellation
// handle" contract of spec §5 without needing an O(log n) heap-fix.
func (s *Scheduler) Cancel(h Handle) {
	if h == nil {
		return
	}
	h.cancelled = true
}

// Run pops and invokes events in order until the queue is empty, until
// `until` (if non-nil) would be exceeded, or until maxEvents (if > 0) have
// been dispatched. Determinism contract: two Schedulers fed identical
// schedules dispatch in bit-identical order (spec §4.1, §8 invariant #4).
func (s *Scheduler) Run(until *float64, maxEvents int) (dispatched int) {
	for s.queue.Len() > 0 {
		if maxEvents > 0 && dispatched >= maxEvents {
			return
		}
		next := s.queue[0]
		if until != nil && next.Time > *until {
			break
		}
		e := heap.Pop(&s.queue).(*Event)
		if e.cancelled {
			continue
		}
		s.now = e.Time
		e.Callback(s.now)
		dispatched++
	}
	if until != nil && s.now < *until {
		s.now = *until
	}
	return
}

// AdvanceTo moves the clock forward to t without dispatching anything.
// Panics if t is in the past, preserving the "never advances backward"
// invariant (spec §4.1).
func (s *Scheduler) AdvanceTo(t float64) {
	cmn.Assert(t >= s.now, "scheduler.AdvanceTo: time travel")
	s.now = t
}
