package mirror_test

import (
	"github.com/nexusai-enterprises/cloudsim/cmn"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ClusterManager", func() {
	It("S4: a write to one cluster member fans out to every other member", func() {
		h := newHarness()
		h.addNode("A1", 50_000_000, 0)
		h.addNode("A2", 50_000_000, 0)
		h.addNode("A3", 50_000_000, 0)
		// One link plus auto-mirroring completes the full mesh.
		h.addLink("A1", "A2", 1_000_000_000, 1)

		h.addNode("client", 0, 0)
		h.addLink("client", "A1", 1_000_000_000, 1)

		_, err := h.engine.InitiateFileTransfer("client", "A1", "f1", 10_000_000, 0)
		Expect(err).NotTo(HaveOccurred())

		h.sched.Run(nil, 0)

		Expect(h.runtimes["A1"].disk.HasFile("f1")).To(BeTrue())
		Expect(h.runtimes["A2"].disk.HasFile("f1")).To(BeTrue())
		Expect(h.runtimes["A3"].disk.HasFile("f1")).To(BeTrue())
		Expect(h.countEventKind("transfer_completed")).To(Equal(3))
	})

	It("invariant #6: fan-out skips an offline sibling without blocking the primary write", func() {
		h := newHarness()
		h.addNode("A1", 50_000_000, 0)
		h.addNode("A2", 50_000_000, 0)
		h.addNode("A3", 50_000_000, 0)
		h.addLink("A1", "A2", 1_000_000_000, 1)
		h.fabric.FailNode("A2")

		h.addNode("client", 0, 0)
		h.addLink("client", "A1", 1_000_000_000, 1)

		_, err := h.engine.InitiateFileTransfer("client", "A1", "f1", 5_000_000, 0)
		Expect(err).NotTo(HaveOccurred())

		h.sched.Run(nil, 0)

		Expect(h.runtimes["A1"].disk.HasFile("f1")).To(BeTrue())
		Expect(h.runtimes["A3"].disk.HasFile("f1")).To(BeTrue())
		Expect(h.runtimes["A2"].disk.HasFile("f1")).To(BeFalse())
		Expect(h.countEventKind("transfer_completed")).To(Equal(2))
	})

	It("S5: sustained disk pressure on a node triggers a demand-scaled replica spawn", func() {
		h := newHarness()
		h.cfg.DefaultReplicaClusterSize = 1
		h.cfg.ScalingCheckIntervalSec = 1

		h.addNode("N", 100_000_000, 0)
		h.addNode("P1", 200_000_000, 0)
		h.addLink("N", "P1", 1_000_000_000, 1)

		h.manager.StartScalingLoop()

		_, err := h.engine.InitiateFileTransfer("P1", "N", "f1", 90_000_000, 0)
		Expect(err).NotTo(HaveOccurred())

		boundary := 1.5
		h.sched.Run(&boundary, 0)

		Expect(h.countEventKind("replica_spawned")).To(Equal(1))

		var spawnedID cmn.NodeID
		for _, e := range h.events {
			if e.kind == "replica_spawned" {
				spawnedID = cmn.NodeID(e.actor)
			}
		}
		Expect(spawnedID).NotTo(BeEmpty())

		c, ok := h.manager.ClusterOf(spawnedID)
		Expect(ok).To(BeTrue())
		Expect(c.Root).To(Equal(cmn.NodeID("N")))

		_, linked := h.fabric.FindLink(spawnedID, "P1")
		Expect(linked).To(BeTrue())
	})
})
