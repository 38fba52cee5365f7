package ais

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexusai-enterprises/cloudsim/cmn"
)

// NodeTelemetry is one node's rendered metric snapshot (spec §6.1: counters
// and gauges read back out of a private prometheus.Registry rather than
// served over a real /metrics endpoint).
type NodeTelemetry struct {
	Failures        float64
	DiskUtilization float64
	RAMUtilization  float64
	NICUtilization  float64
}

// ClusterTelemetry aggregates NodeTelemetry across the whole fabric plus
// the controller's own lifetime transfer counters.
type ClusterTelemetry struct {
	Nodes               map[cmn.NodeID]NodeTelemetry
	TotalBytesCommitted int64
	TransfersCompleted  int64
	TransfersFailed     int64
}

// gatherFailures walks a node's registered metric families for the process
// failure counter, via client_golang's MetricFamily/Metric walk (spec
// §6.1), instead of hand-tracking a duplicate counter in Go code.
func gatherFailures(reg *prometheus.Registry) float64 {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != "cloudsim_os_process_failures_total" {
			continue
		}
		var total float64
		for _, m := range mf.Metric {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func utilization(used, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(used) / float64(capacity)
}

// Telemetry renders the cluster-wide metrics view (spec §6: `telemetry()`).
func (c *Controller) Telemetry() ClusterTelemetry {
	nodes := make(map[cmn.NodeID]NodeTelemetry, len(c.runtimes))
	var totalCommitted int64
	for id, rt := range c.runtimes {
		nodes[id] = NodeTelemetry{
			Failures:        gatherFailures(c.registries[id]),
			DiskUtilization: utilization(rt.disk.Committed()+rt.disk.Reserved(), rt.disk.Capacity()),
			RAMUtilization:  rt.os.RAMUtilization(),
			NICUtilization:  rt.os.NICUtilization(),
		}
		totalCommitted += rt.disk.Committed()
	}
	return ClusterTelemetry{
		Nodes:               nodes,
		TotalBytesCommitted: totalCommitted,
		TransfersCompleted:  c.transfersCompleted,
		TransfersFailed:     c.transfersFailed,
	}
}

// nodeTelemetry renders a single node's metric snapshot, the per-node slice
// backing inspect()'s telemetry field.
func (c *Controller) nodeTelemetry(id cmn.NodeID) NodeTelemetry {
	rt, ok := c.runtimes[id]
	if !ok {
		return NodeTelemetry{}
	}
	return NodeTelemetry{
		Failures:        gatherFailures(c.registries[id]),
		DiskUtilization: utilization(rt.disk.Committed()+rt.disk.Reserved(), rt.disk.Capacity()),
		RAMUtilization:  rt.os.RAMUtilization(),
		NICUtilization:  rt.os.NICUtilization(),
	}
}
