// Package xact implements the TransferEngine: per-tick bandwidth-shared,
// multi-hop chunked file transfer with failover (spec §4.5). Grounded on
// aistore's xact/xs.XactTCB/XactTCObjs state-machine-and-refcount shape,
// re-expressed as scheduler callbacks instead of goroutines/channels per
// the no-concurrency rule.
package xact

import "github.com/nexusai-enterprises/cloudsim/cmn"

// Flow is a single chunk in transit across a single link (spec §3, §GLOSSARY).
// onHopDone fires when the hop's bytes are fully delivered, releasing the
// sender's NIC device slot and advancing the owning chunk.
type Flow struct {
	ID           cmn.FlowID
	TransferID   cmn.TransferID
	ChunkID      int
	LinkID       cmn.LinkID
	RemainingBytes int64
	Priority     int
	StartedAt    float64

	onHopDone func(error)
}
