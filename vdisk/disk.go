package vdisk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/tidwall/buntdb"

	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/cmn/nlog"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
)

type reservation struct {
	fileID cmn.FileID
	bytes  int64
	tickets map[int64]scheduler.Handle
}

// VirtualDisk is a node's simulated block store (spec §4.2, §3). Capacity
// accounting follows a reservation-first discipline: callers reserve
// before writing, and the reservation converts to committed bytes only
// when the scheduled commit event fires.
type VirtualDisk struct {
	sched *scheduler.Scheduler
	cfg   *cmn.Config

	capacity  int64
	committed int64
	reserved  int64

	offline bool

	reservations map[cmn.ReservationID]*reservation
	nextTicket   int64
	nextRsvSeq   int64

	index *buntdb.DB // committed-chunk index: key "file:chunk" -> json ChunkRecord
	ids   *cmn.IDGen
}

// New builds a VirtualDisk of the given capacity, driven by sched and
// configured per cfg (seek latency / throughput).
func New(sched *scheduler.Scheduler, cfg *cmn.Config, capacity int64, ids *cmn.IDGen) *VirtualDisk {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		panic("cloudsim: buntdb.Open: " + err.Error())
	}
	return &VirtualDisk{
		sched:        sched,
		cfg:          cfg,
		capacity:     capacity,
		reservations: make(map[cmn.ReservationID]*reservation),
		index:        db,
		ids:          ids,
	}
}

func (d *VirtualDisk) Capacity() int64  { return d.capacity }
func (d *VirtualDisk) Committed() int64 { return d.committed }
func (d *VirtualDisk) Reserved() int64  { return d.reserved }
func (d *VirtualDisk) Offline() bool    { return d.offline }

// SetOffline toggles disk availability (mirrors node online/offline state,
// spec §4.2: "Disk may be offline... all new tickets fail immediately").
func (d *VirtualDisk) SetOffline(off bool) { d.offline = off }

// Reserve reserves bytes against capacity for a file, spec §4.2.
func (d *VirtualDisk) Reserve(fileID cmn.FileID, bytes int64) (cmn.ReservationID, error) {
	if d.offline {
		return "", cmn.NewErr("reserve", cmn.KindDiskOffline, "disk offline")
	}
	if d.committed+d.reserved+bytes > d.capacity {
		return "", cmn.NewErr("reserve", cmn.KindNoSpace, fmt.Sprintf(
			"committed=%d reserved=%d request=%d capacity=%d", d.committed, d.reserved, bytes, d.capacity))
	}
	d.nextRsvSeq++
	rid := d.ids.ReservationID()
	d.reservations[rid] = &reservation{fileID: fileID, bytes: bytes, tickets: make(map[int64]scheduler.Handle)}
	d.reserved += bytes
	return rid, nil
}

// Abort releases a reservation's bytes and cancels its pending tickets
// (spec §4.2, §5 abort semantics).
func (d *VirtualDisk) Abort(rid cmn.ReservationID) {
	r, ok := d.reservations[rid]
	if !ok {
		return
	}
	for _, h := range r.tickets {
		d.sched.Cancel(h)
	}
	d.reserved -= r.bytes
	delete(d.reservations, rid)
}

func (d *VirtualDisk) commitLatency(bytes int64) float64 {
	seekSec := d.cfg.SeekLatencyMs / 1000.0
	throughput := d.cfg.DiskThroughput
	if throughput <= 0 {
		throughput = 1
	}
	return seekSec + float64(bytes)/float64(throughput)
}

// WriteChunk schedules a commit event at now + seek_latency + bytes/throughput
// (spec §4.2). onDone fires with the ticket's terminal status.
func (d *VirtualDisk) WriteChunk(rid cmn.ReservationID, chunkID int, length int64, checksum uint64, onDone func(*IOTicket)) (*IOTicket, error) {
	if d.offline {
		return nil, cmn.NewErr("write_chunk", cmn.KindDiskOffline, "disk offline")
	}
	r, ok := d.reservations[rid]
	if !ok {
		return nil, cmn.NewErr("write_chunk", cmn.KindInvalidArgument, "unknown reservation")
	}
	d.nextTicket++
	t := &IOTicket{ID: d.nextTicket, FileID: r.fileID, ChunkID: chunkID, onDone: onDone}
	delay := d.commitLatency(length)
	h := d.sched.ScheduleIn(delay, 0, func(now float64) {
		if d.offline {
			t.Status = IOFailed
			t.Err = cmn.NewErr("write_chunk", cmn.KindDiskOffline, "disk went offline before commit")
			d.fire(t)
			return
		}
		rec := ChunkRecord{FileID: r.fileID, ChunkID: chunkID, Length: length, Checksum: checksum, CommittedAt: now}
		d.storeRecord(rec)
		r.bytes -= length
		d.reserved -= length
		d.committed += length
		delete(r.tickets, t.ID)
		if r.bytes <= 0 {
			delete(d.reservations, rid)
		}
		t.Status = IOCommitted
		t.Record = rec
		d.fire(t)
	})
	r.tickets[t.ID] = h
	return t, nil
}

// ReadChunk schedules a read commit event and returns the stored bytes and
// checksum via onDone, failing with checksum_mismatch if the record's
// corrupt bit is set (spec §4.2).
func (d *VirtualDisk) ReadChunk(fileID cmn.FileID, chunkID int, onDone func(*IOTicket)) (*IOTicket, error) {
	if d.offline {
		return nil, cmn.NewErr("read_chunk", cmn.KindDiskOffline, "disk offline")
	}
	rec, ok := d.lookup(fileID, chunkID)
	if !ok {
		return nil, cmn.NewErr("read_chunk", cmn.KindInvalidArgument, "no such chunk")
	}
	d.nextTicket++
	t := &IOTicket{ID: d.nextTicket, FileID: fileID, ChunkID: chunkID}
	delay := d.commitLatency(rec.Length)
	d.sched.ScheduleIn(delay, 0, func(now float64) {
		if d.offline {
			t.Status = IOFailed
			t.Err = cmn.NewErr("read_chunk", cmn.KindDiskOffline, "disk went offline before read completed")
			d.fire(t)
			return
		}
		cur, ok := d.lookup(fileID, chunkID)
		if !ok {
			t.Status = IOFailed
			t.Err = cmn.NewErr("read_chunk", cmn.KindInvalidArgument, "chunk vanished")
			d.fire(t)
			return
		}
		if cur.Corrupt {
			t.Status = IOFailed
			t.Err = cmn.NewErr("read_chunk", cmn.KindChecksumMismatch, "chunk is corrupt")
			d.fire(t)
			return
		}
		t.Status = IOCommitted
		t.Record = cur
		d.fire(t)
	})
	t.onDone = onDone
	return t, nil
}

func (d *VirtualDisk) fire(t *IOTicket) {
	if t.onDone != nil {
		t.onDone(t)
	}
}

// InjectCorruption flips a committed chunk's corrupt bit; the next read
// fails with checksum_mismatch (spec §4.2).
func (d *VirtualDisk) InjectCorruption(fileID cmn.FileID, chunkID int) {
	rec, ok := d.lookup(fileID, chunkID)
	if !ok {
		return
	}
	rec.Corrupt = true
	d.storeRecord(rec)
	nlog.Warningf("vdisk: injected corruption into %s/%d", fileID, chunkID)
}

// RecoverChunk replaces a corrupt record with trusted bytes supplied by the
// caller (spec §4.2: "replaces a corrupt record on behalf of a caller").
func (d *VirtualDisk) RecoverChunk(fileID cmn.FileID, chunkID int, length int64, checksum uint64) {
	rec, ok := d.lookup(fileID, chunkID)
	if !ok {
		return
	}
	rec.Length = length
	rec.Checksum = checksum
	rec.Corrupt = false
	d.storeRecord(rec)
}

// Checksum is the checksum function used for chunk payloads throughout the
// simulator (xxhash, a teacher dependency).
func Checksum(data []byte) uint64 { return xxhash.Checksum64(data) }

func indexKey(fileID cmn.FileID, chunkID int) string {
	return fmt.Sprintf("%s:%d", fileID, chunkID)
}

func (d *VirtualDisk) storeRecord(rec ChunkRecord) {
	val, err := marshalRecord(rec)
	cmn.Assert(err == nil, "vdisk: marshal chunk record")
	_ = d.index.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(indexKey(rec.FileID, rec.ChunkID), string(val), nil)
		return err
	})
}

func (d *VirtualDisk) lookup(fileID cmn.FileID, chunkID int) (ChunkRecord, bool) {
	var rec ChunkRecord
	var found bool
	_ = d.index.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(indexKey(fileID, chunkID))
		if err != nil {
			return nil // buntdb.ErrNotFound: leave found=false
		}
		if r, ok := unmarshalRecord(v); ok {
			rec, found = r, true
		}
		return nil
	})
	return rec, found
}

// ChunksOf returns every committed ChunkRecord belonging to fileID, in
// chunk-id order — used by fan-out/backfill and by inspect().
func (d *VirtualDisk) ChunksOf(fileID cmn.FileID) []ChunkRecord {
	prefix := string(fileID) + ":"
	var out []ChunkRecord
	_ = d.index.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			if r, ok := unmarshalRecord(value); ok {
				out = append(out, r)
			}
			return true
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID }) // keys sort as text ("f:10" < "f:2")
	return out
}

// HasFile reports whether any chunk of fileID is committed on this disk.
func (d *VirtualDisk) HasFile(fileID cmn.FileID) bool {
	return len(d.ChunksOf(fileID)) > 0
}

// Files returns the distinct file IDs with at least one committed chunk,
// sorted — used by inspect() and snapshotting to enumerate stored files
// without the caller needing to already know the file IDs.
func (d *VirtualDisk) Files() []cmn.FileID {
	seen := make(map[cmn.FileID]struct{})
	_ = d.index.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, _ string) bool {
			if i := strings.IndexByte(key, ':'); i >= 0 {
				seen[cmn.FileID(key[:i])] = struct{}{}
			}
			return true
		})
	})
	out := make([]cmn.FileID, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
