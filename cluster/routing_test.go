package cluster_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nexusai-enterprises/cloudsim/cluster"
	"github.com/nexusai-enterprises/cloudsim/cmn"
)

func mkNode(id cmn.NodeID) *cluster.Node {
	return cluster.NewNode(id, "10.0.0.1", "z1", 1<<30, 1<<30, 1e9, 4)
}

var _ = Describe("RoutingFabric (link-state)", func() {
	var f *cluster.RoutingFabric

	BeforeEach(func() {
		f = cluster.NewRoutingFabric(cluster.LinkState, cluster.LatencyWeight, 16)
		for _, id := range []cmn.NodeID{"A", "B", "C", "D", "E"} {
			f.AddNode(mkNode(id))
		}
	})

	link := func(id cmn.LinkID, a, b cmn.NodeID, bw int64, lat float64) *cluster.Link {
		return cluster.NewLink(id, a, b, bw, lat)
	}

	It("resolves a direct route between neighbors", func() {
		f.AddLink(link("AB", "A", "B", 1e9, 10))
		route, err := f.GetRoute("A", "B")
		Expect(err).NotTo(HaveOccurred())
		Expect(route).To(Equal([]cmn.NodeID{"A", "B"}))
	})

	It("fails with no_route when unreachable", func() {
		f.AddLink(link("AB", "A", "B", 1e9, 10))
		_, err := f.GetRoute("A", "C")
		Expect(cmn.IsErr(err, cmn.KindNoRoute)).To(BeTrue())
	})

	It("reroutes around a failed link when an alternate path exists", func() {
		// A-B-C-D primary, A-E-C-D secondary (spec S3)
		f.AddLink(link("AB", "A", "B", 1e9, 10))
		f.AddLink(link("BC", "B", "C", 1e9, 10))
		f.AddLink(link("CD", "C", "D", 1e9, 10))
		f.AddLink(link("AE", "A", "E", 1e9, 10))
		f.AddLink(link("EC", "E", "C", 1e9, 10))

		route, err := f.GetRoute("A", "D")
		Expect(err).NotTo(HaveOccurred())
		Expect(route).To(Equal([]cmn.NodeID{"A", "B", "C", "D"}))

		bc, _ := f.FindLink("B", "C")
		f.FailLink(bc.ID)

		route, err = f.GetRoute("A", "D")
		Expect(err).NotTo(HaveOccurred())
		Expect(route).To(Equal([]cmn.NodeID{"A", "E", "C", "D"}))
	})

	It("yields no_route once the only path is severed", func() {
		f.AddLink(link("AB", "A", "B", 1e9, 10))
		ab, _ := f.FindLink("A", "B")
		f.FailLink(ab.ID)
		_, err := f.GetRoute("A", "B")
		Expect(cmn.IsErr(err, cmn.KindNoRoute)).To(BeTrue())
	})

	It("excludes offline nodes from routing", func() {
		f.AddLink(link("AB", "A", "B", 1e9, 10))
		f.AddLink(link("BC", "B", "C", 1e9, 10))
		f.FailNode("B")
		_, err := f.GetRoute("A", "C")
		Expect(cmn.IsErr(err, cmn.KindNoRoute)).To(BeTrue())
		f.RestoreNode("B")
		route, err := f.GetRoute("A", "C")
		Expect(err).NotTo(HaveOccurred())
		Expect(route).To(Equal([]cmn.NodeID{"A", "B", "C"}))
	})
})

var _ = Describe("RoutingFabric (distance-vector)", func() {
	It("converges to the same shortest path as link-state after enough rounds", func() {
		f := cluster.NewRoutingFabric(cluster.DistanceVector, cluster.LatencyWeight, 16)
		for _, id := range []cmn.NodeID{"A", "B", "C", "D"} {
			f.AddNode(mkNode(id))
		}
		f.AddLink(cluster.NewLink("AB", "A", "B", 1e9, 10))
		f.AddLink(cluster.NewLink("BC", "B", "C", 1e9, 10))
		f.AddLink(cluster.NewLink("CD", "C", "D", 1e9, 10))

		for i := 0; i < 4; i++ { // one round more than the diameter (3)
			f.Exchange()
		}
		route, err := f.GetRoute("A", "D")
		Expect(err).NotTo(HaveOccurred())
		Expect(route).To(Equal([]cmn.NodeID{"A", "B", "C", "D"}))
	})
})
