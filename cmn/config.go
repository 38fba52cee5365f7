package cmn

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config centralizes simulator tunables, the way aistore's cmn.Config
// centralizes cluster-wide knobs. Zero value is invalid; use DefaultConfig.
type Config struct {
	// Seed drives deterministic ID generation and any policy that must
	// break ties reproducibly.
	Seed int64 `json:"seed"`

	// TickSeconds is the simulated duration advanced per bandwidth-sharing
	// tick in the transfer engine (spec §4.5).
	TickSeconds float64 `json:"tick_seconds"`

	// Chunk sizing bounds (spec §4.5).
	ChunkMin int64 `json:"chunk_min"`
	ChunkMax int64 `json:"chunk_max"`

	// Disk I/O model (spec §4.2).
	SeekLatencyMs   float64 `json:"seek_latency_ms"`
	DiskThroughput  int64   `json:"disk_throughput_bps"`

	// Routing (spec §4.4).
	RoutingStrategy string  `json:"routing_strategy"` // "link-state" | "distance-vector"
	DVIntervalSec   float64 `json:"dv_interval_sec"`
	RouteCacheSize  int     `json:"route_cache_size"`

	// VirtualOS (spec §4.3).
	DiskConcurrency int `json:"disk_concurrency"`
	NICConcurrency  int `json:"nic_concurrency"`

	// Demand-driven scaling thresholds (spec §4.6).
	StorageThreshold              float64 `json:"storage_threshold"`
	BandwidthThreshold            float64 `json:"bandwidth_threshold"`
	OSFailureThreshold            int64   `json:"os_failure_threshold"`
	OSMemoryUtilizationThreshold  float64 `json:"os_memory_utilization_threshold"`
	MaxReplicasPerCluster         int     `json:"max_replicas_per_cluster"`
	DefaultReplicaClusterSize     int     `json:"default_replica_cluster_size"`
	ScalingCheckIntervalSec       float64 `json:"scaling_check_interval_sec"`

	// EventLogSize bounds the ring buffer (spec §3 "bounded ring").
	EventLogSize int `json:"event_log_size"`
}

// DefaultConfig returns a Config populated with the defaults named or
// implied by spec.md (R=3 default cluster size, 0.85/0.80 thresholds, etc).
func DefaultConfig() *Config {
	return &Config{
		Seed:                         1,
		TickSeconds:                  0.1,
		ChunkMin:                     1 << 20,  // 1 MB
		ChunkMax:                     64 << 20, // 64 MB
		SeekLatencyMs:                4,
		DiskThroughput:               500 << 20, // 500 MB/s
		RoutingStrategy:              "link-state",
		DVIntervalSec:                5,
		RouteCacheSize:               1024,
		DiskConcurrency:              1,
		NICConcurrency:               4,
		StorageThreshold:             0.85,
		BandwidthThreshold:           0.80,
		OSFailureThreshold:           3,
		OSMemoryUtilizationThreshold: 0.90,
		MaxReplicasPerCluster:        5,
		DefaultReplicaClusterSize:    3,
		ScalingCheckIntervalSec:      10,
		EventLogSize:                 4096,
	}
}

// Merge overlays every field present in patch (zero values included) onto a
// copy of the receiver, unmarshaling through json-iterator the way aistore's
// config loader merges partial JSON patches onto defaults.
func (c *Config) Merge(patch []byte) (*Config, error) {
	out := *c
	if len(patch) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(patch, &out); err != nil {
		return nil, WrapErr("config_merge", KindInvalidArgument, err, "bad config patch")
	}
	return &out, nil
}

// Marshal serializes the config via json-iterator.
func (c *Config) Marshal() ([]byte, error) { return json.Marshal(c) }
