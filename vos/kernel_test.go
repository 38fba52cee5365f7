package vos_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/scheduler"
	"github.com/nexusai-enterprises/cloudsim/vos"
)

var _ = Describe("VirtualOS", func() {
	var (
		sched *scheduler.Scheduler
		cfg   *cmn.Config
	)

	BeforeEach(func() {
		sched = scheduler.New()
		cfg = cmn.DefaultConfig()
		cfg.TickSeconds = 0.01
	})

	It("rejects admission once ram_reserved would exceed capacity", func() {
		k := vos.New(sched, cfg, "n1", 100, nil)
		_, err := k.MaintenanceHook(1, 60, func(complete func(error)) { complete(nil) }, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = k.MaintenanceHook(1, 50, func(complete func(error)) { complete(nil) }, nil)
		Expect(cmn.IsErr(err, cmn.KindOOM)).To(BeTrue())
	})

	It("propagates device errors to the process and counts the failure", func() {
		k := vos.New(sched, cfg, "n1", 100, nil)
		var gotErr error
		_, err := k.DiskWrite(1, 10, func(complete func(error)) {
			complete(cmn.NewErr("write", cmn.KindChecksumMismatch, "bad checksum"))
		}, func(p *vos.Process) { gotErr = p.Err })
		Expect(err).NotTo(HaveOccurred())

		sched.Run(nil, 0)
		Expect(gotErr).To(HaveOccurred())
		Expect(k.Failures()).To(Equal(int64(1)))
		Expect(k.RAMUsed()).To(Equal(int64(0)))
	})

	It("caps concurrent NIC transfers at nic_concurrency and drains the backlog (S6)", func() {
		cfg.NICConcurrency = 2
		k := vos.New(sched, cfg, "n1", 0, nil)

		completed := 0
		for i := 0; i < 4; i++ {
			_, err := k.NetworkSend(false, 1, 0, func(complete func(error)) {
				sched.ScheduleIn(1.0, 0, func(float64) { complete(nil) })
			}, func(*vos.Process) { completed++ })
			Expect(err).NotTo(HaveOccurred())
		}

		boundary := 0.05
		sched.Run(&boundary, 0)
		Expect(k.RunningCount(vos.KindEgress)).To(Equal(2))
		Expect(k.BlockedCount(vos.KindEgress)).To(Equal(2))
		Expect(completed).To(Equal(0))

		sched.Run(nil, 0)
		Expect(completed).To(Equal(4))
		Expect(k.RunningCount(vos.KindEgress)).To(Equal(0))
		Expect(k.BlockedCount(vos.KindEgress)).To(Equal(0))
	})

	It("round-robins CPU ticks across ready processes before device admission", func() {
		k := vos.New(sched, cfg, "n1", 0, nil)
		var order []int
		for i := 1; i <= 3; i++ {
			i := i
			k.MaintenanceHook(2, 0, func(complete func(error)) {
				order = append(order, i)
				complete(nil)
			}, nil)
		}
		sched.Run(nil, 0)
		Expect(order).To(Equal([]int{1, 2, 3}))
	})
})
