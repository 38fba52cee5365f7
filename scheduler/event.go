// Package scheduler implements CloudSim's single-threaded, deterministic
// discrete-event dispatcher (spec §4.1, §5). It is the sole driver of
// simulated time: every other component schedules callbacks on it instead
// of blocking, sleeping, or spawning goroutines.
package scheduler

// Callback is invoked when its Event is popped from the queue. now is the
// scheduler's simulated clock at the moment of dispatch (== Event.Time,
// unless the event was scheduled "at now" within another callback, in
// which case it still equals the shared current tick).
type Callback func(now float64)

// Event is a single scheduled unit of work. Immutable after Schedule
// except for the cancelled tombstone flag (spec §3: "Immutable after
// schedule").
type Event struct {
	Time     float64
	Priority int
	Seq      uint64
	Callback Callback

	cancelled bool
	index     int // heap.Interface bookkeeping
}

// Handle is returned by ScheduleAt/ScheduleIn and passed to Cancel.
type Handle = *Event

// Cancelled reports whether this handle was cancelled before it fired.
func (e *Event) Cancelled() bool { return e.cancelled }
