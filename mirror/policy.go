// Package mirror implements the ClusterManager: replica cluster
// membership, write fan-out, backfill, and demand-driven scaling
// (spec §4.6). Grounded on the teacher's own `mirror` package naming and
// on aistore's rebalance-metadata-on-topology-change shape (cluster/meta
// rmd.go) for the "propagate to every member on change" pattern.
package mirror

import "github.com/nexusai-enterprises/cloudsim/cmn"

// NodeStats is the snapshot a Policy evaluates (spec §9: "one policy
// interface with a fixed capability set {evaluate(node_stats) -> spawn?}").
type NodeStats struct {
	StorageUtil    float64
	BandwidthUtil  float64
	RAMUtil        float64
	RecentFailures int64
}

// Policy decides whether a node under pressure should spawn a sibling
// replica.
type Policy interface {
	Evaluate(cfg *cmn.Config, stats NodeStats) (spawn bool, reason string)
}

// ThresholdPolicy is the default demand-scaling policy (spec §4.6).
type ThresholdPolicy struct{}

func NewThresholdPolicy() ThresholdPolicy { return ThresholdPolicy{} }

// Evaluate checks thresholds in the deterministic order storage ->
// bandwidth -> os failures -> ram (SPEC_FULL.md §9.1 open-question
// decision #2), spawning on the first sustained breach.
func (ThresholdPolicy) Evaluate(cfg *cmn.Config, stats NodeStats) (bool, string) {
	switch {
	case stats.StorageUtil > cfg.StorageThreshold:
		return true, "storage_threshold"
	case stats.BandwidthUtil > cfg.BandwidthThreshold:
		return true, "bandwidth_threshold"
	case stats.RecentFailures >= cfg.OSFailureThreshold:
		return true, "os_failure_threshold"
	case stats.RAMUtil > cfg.OSMemoryUtilizationThreshold:
		return true, "ram_threshold"
	default:
		return false, ""
	}
}
