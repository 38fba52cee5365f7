package ais_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nexusai-enterprises/cloudsim/ais"
	"github.com/nexusai-enterprises/cloudsim/cmn"
)

var _ = Describe("ControllerAPI scenarios", func() {
	var c *ais.Controller

	BeforeEach(func() {
		cfg := cmn.DefaultConfig()
		cfg.TickSeconds = 0.1
		c = ais.New(cfg)
	})

	// S1: single-hop transfer timing.
	It("completes a single-hop transfer within the expected window", func() {
		_, err := c.AddNode(ais.NodeOpts{ID: "A", StorageBytes: 8 << 30})
		Expect(err).NotTo(HaveOccurred())
		_, err = c.AddNode(ais.NodeOpts{ID: "B", StorageBytes: 8 << 30})
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Connect([]cmn.NodeID{"A", "B"}, 1<<30, 10)
		Expect(err).NotTo(HaveOccurred())

		_, err = c.InitiateFileTransfer("A", "B", "f1", 1<<30, 8<<20)
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Step(30)
		Expect(err).NotTo(HaveOccurred())

		res, err := c.Inspect("B")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Usage.DiskUsed).To(Equal(int64(1 << 30)))
		Expect(res.Telemetry.Failures).To(BeZero())
	})

	// S4: replica fan-out across a mesh.
	It("fans a write out to every mesh sibling", func() {
		for _, id := range []cmn.NodeID{"A1", "A2", "A3", "client"} {
			_, err := c.AddNode(ais.NodeOpts{ID: id, StorageBytes: 1 << 30})
			Expect(err).NotTo(HaveOccurred())
		}
		_, err := c.Connect([]cmn.NodeID{"A1", "A2"}, 1<<30, 5)
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Connect([]cmn.NodeID{"client", "A1"}, 1<<30, 5)
		Expect(err).NotTo(HaveOccurred())

		_, err = c.InitiateFileTransfer("client", "A1", "f1", 10<<20, 0)
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Step(10)
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []cmn.NodeID{"A1", "A2", "A3"} {
			res, err := c.Inspect(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StoredFiles).To(ContainElement(cmn.FileID("f1")))
		}
	})

	// S6: OS backpressure under a NIC concurrency limit.
	It("completes every transfer from a node whose NIC concurrency is capped", func() {
		cfg := cmn.DefaultConfig()
		cfg.NICConcurrency = 2
		c = ais.New(cfg)
		_, err := c.AddNode(ais.NodeOpts{ID: "S", StorageBytes: 1 << 30})
		Expect(err).NotTo(HaveOccurred())
		for _, id := range []cmn.NodeID{"D1", "D2", "D3", "D4"} {
			_, err := c.AddNode(ais.NodeOpts{ID: id, StorageBytes: 1 << 30})
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Connect([]cmn.NodeID{"S", id}, 1<<30, 1)
			Expect(err).NotTo(HaveOccurred())
		}
		for _, id := range []cmn.NodeID{"D1", "D2", "D3", "D4"} {
			_, err := c.InitiateFileTransfer("S", id, cmn.FileID("f-"+string(id)), 1<<20, 0)
			Expect(err).NotTo(HaveOccurred())
		}
		_, err = c.Step(10)
		Expect(err).NotTo(HaveOccurred())
		// Default clusters of 3: S, D1, D2 form one and D3, D4 the next, so
		// each write is also fanned out to the destination's siblings.
		want := map[cmn.NodeID][]cmn.FileID{
			"D1": {"f-D1", "f-D2"},
			"D2": {"f-D1", "f-D2"},
			"D3": {"f-D3", "f-D4"},
			"D4": {"f-D3", "f-D4"},
		}
		for _, id := range []cmn.NodeID{"D1", "D2", "D3", "D4"} {
			res, err := c.Inspect(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StoredFiles).To(Equal(want[id]))
		}
	})

	It("leaves telemetry counters unchanged after add_node/remove_node", func() {
		before := c.Telemetry()
		_, err := c.AddNode(ais.NodeOpts{ID: "X"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.RemoveNode("X")).To(Succeed())
		after := c.Telemetry()
		Expect(after.TransfersCompleted).To(Equal(before.TransfersCompleted))
		Expect(after.TransfersFailed).To(Equal(before.TransfersFailed))
	})

	It("round-trips a snapshot", func() {
		_, err := c.AddNode(ais.NodeOpts{ID: "A", StorageBytes: 1 << 30})
		Expect(err).NotTo(HaveOccurred())
		_, err = c.AddNode(ais.NodeOpts{ID: "B", StorageBytes: 1 << 30})
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Connect([]cmn.NodeID{"A", "B"}, 1<<30, 5)
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Push("A", "f1", 1<<20, true)
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Step(10)
		Expect(err).NotTo(HaveOccurred())

		blob, err := c.Snapshot()
		Expect(err).NotTo(HaveOccurred())

		restored := ais.New(cmn.DefaultConfig())
		Expect(restored.Restore(blob)).To(Succeed())

		res, err := restored.Inspect("A")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.StoredFiles).To(ContainElement(cmn.FileID("f1")))
		Expect(res.Neighbors).To(ContainElement(cmn.NodeID("B")))
	})
})
