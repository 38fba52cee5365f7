package xact

import "github.com/nexusai-enterprises/cloudsim/cmn"

// ChunkState mirrors spec §3's chunk state machine:
// pending -> in_flight(hop_i) -> committed_at_dst | failed.
type ChunkState int

const (
	ChunkPending ChunkState = iota
	ChunkInFlight
	ChunkCommitted
	ChunkFailed
)

// Chunk tracks one fixed-size slice of a Transfer as it walks its own route
// hop by hop. Hop is the index into Route of the node the chunk currently
// occupies (or is departing from, while in flight). Route starts as a copy
// of the Transfer's initial path but is private to the chunk from then on:
// a failover reroute (spec §4.5 step 6) only ever touches the rerouted
// chunk's own Route, never a path shared with chunks already downstream of
// the failure.
type Chunk struct {
	ID       int
	Length   int64
	Checksum uint64
	Route    []cmn.NodeID
	Hop      int
	State    ChunkState
}

// State mirrors spec §4.5's transfer state machine. Terminal states are
// sticky.
type State int

const (
	Pending State = iota
	Active
	Completed
	Failed
	Aborted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transfer is one `initiate_file_transfer`/`initiate_replica_transfer`
// invocation (spec §3).
type Transfer struct {
	ID        cmn.TransferID
	Src, Dst  cmn.NodeID
	FileID    cmn.FileID
	Size      int64
	ChunkSize int64
	Route     []cmn.NodeID // initial path at admission; chunks reroute independently, see Chunk.Route
	Chunks    []*Chunk
	State     State
	CreatedAt float64
	Err       error

	reservation cmn.ReservationID
	isReplica   bool
	onDone      func(*Transfer)
}

func (t *Transfer) committedCount() int {
	n := 0
	for _, c := range t.Chunks {
		if c.State == ChunkCommitted {
			n++
		}
	}
	return n
}

func (t *Transfer) allCommitted() bool { return t.committedCount() == len(t.Chunks) }
