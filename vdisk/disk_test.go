package vdisk_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
	"github.com/nexusai-enterprises/cloudsim/vdisk"
)

var _ = Describe("VirtualDisk", func() {
	var (
		sched *scheduler.Scheduler
		cfg   *cmn.Config
		ids   *cmn.IDGen
		disk  *vdisk.VirtualDisk
	)

	BeforeEach(func() {
		sched = scheduler.New()
		cfg = cmn.DefaultConfig()
		ids = cmn.NewIDGen(1)
		disk = vdisk.New(sched, cfg, 100, ids)
	})

	It("rejects a reservation that would exceed capacity", func() {
		_, err := disk.Reserve("f1", 50)
		Expect(err).NotTo(HaveOccurred())
		_, err = disk.Reserve("f2", 60)
		Expect(cmn.IsErr(err, cmn.KindNoSpace)).To(BeTrue())
	})

	It("keeps committed+reserved <= capacity at all times", func() {
		rid, err := disk.Reserve("f1", 40)
		Expect(err).NotTo(HaveOccurred())
		Expect(disk.Reserved()).To(Equal(int64(40)))

		committed := false
		_, err = disk.WriteChunk(rid, 0, 40, vdisk.Checksum([]byte("x")), func(t *vdisk.IOTicket) {
			committed = true
		})
		Expect(err).NotTo(HaveOccurred())
		sched.Run(nil, 0)

		Expect(committed).To(BeTrue())
		Expect(disk.Committed()).To(Equal(int64(40)))
		Expect(disk.Reserved()).To(Equal(int64(0)))
		Expect(disk.Committed() + disk.Reserved()).To(BeNumerically("<=", disk.Capacity()))
	})

	It("releases reserved bytes and cancels tickets on abort", func() {
		rid, _ := disk.Reserve("f1", 40)
		fired := false
		disk.WriteChunk(rid, 0, 40, 0, func(*vdisk.IOTicket) { fired = true })
		disk.Abort(rid)
		sched.Run(nil, 0)
		Expect(fired).To(BeFalse())
		Expect(disk.Reserved()).To(Equal(int64(0)))
	})

	It("fails every new ticket once the disk goes offline", func() {
		disk.SetOffline(true)
		_, err := disk.Reserve("f1", 10)
		Expect(cmn.IsErr(err, cmn.KindDiskOffline)).To(BeTrue())
	})

	It("fails reads with checksum_mismatch after corruption, and recovers", func() {
		rid, _ := disk.Reserve("f1", 10)
		disk.WriteChunk(rid, 0, 10, vdisk.Checksum([]byte("hello")), nil)
		sched.Run(nil, 0)

		disk.InjectCorruption("f1", 0)

		var readErr error
		disk.ReadChunk("f1", 0, func(t *vdisk.IOTicket) { readErr = t.Err })
		sched.Run(nil, 0)
		Expect(cmn.IsErr(readErr, cmn.KindChecksumMismatch)).To(BeTrue())

		disk.RecoverChunk("f1", 0, 10, vdisk.Checksum([]byte("hello")))

		var ok bool
		disk.ReadChunk("f1", 0, func(t *vdisk.IOTicket) { ok = t.Status == vdisk.IOCommitted })
		sched.Run(nil, 0)
		Expect(ok).To(BeTrue())
	})

	It("records a matching checksum on commit, for completed-transfer verification", func() {
		rid, _ := disk.Reserve("f1", 5)
		sum := vdisk.Checksum([]byte("abcde"))
		var rec vdisk.ChunkRecord
		disk.WriteChunk(rid, 0, 5, sum, func(t *vdisk.IOTicket) { rec = t.Record })
		sched.Run(nil, 0)
		Expect(rec.Checksum).To(Equal(sum))
		Expect(disk.HasFile("f1")).To(BeTrue())
	})
})
