// Package vdisk implements the simulator's per-node block storage: a
// reservation-first VirtualDisk with asynchronous chunk commit/read,
// checksums, and corruption injection (spec §4.2). Grounded on aistore's
// EC putJogger ticket/callback shape (other_examples ec-putjogger.go) and
// go-ublk's queued-I/O-ticket idiom, re-expressed as scheduler events
// rather than goroutines (spec §5).
package vdisk

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/nexusai-enterprises/cloudsim/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func marshalRecord(rec ChunkRecord) ([]byte, error) { return json.Marshal(rec) }

func unmarshalRecord(s string) (ChunkRecord, bool) {
	var rec ChunkRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return ChunkRecord{}, false
	}
	return rec, true
}

// ChunkRecord is a committed chunk of a file on disk (spec §3).
type ChunkRecord struct {
	FileID     cmn.FileID
	ChunkID    int
	Offset     int64
	Length     int64
	Checksum   uint64
	Corrupt    bool
	CommittedAt float64
}

// IOStatus is the terminal state of an IOTicket.
type IOStatus int

const (
	IOPending IOStatus = iota
	IOCommitted
	IOFailed
)

// IOTicket tracks a single asynchronous disk operation from admission to
// completion (spec §4.2).
type IOTicket struct {
	ID       int64
	FileID   cmn.FileID
	ChunkID  int
	Status   IOStatus
	Err      error
	Record   ChunkRecord // valid once Status == IOCommitted and this was a read/write
	Bytes    []byte      // simulated payload: length-only placeholder, never real data
	onDone   func(*IOTicket)
}
