package xact

import (
	"github.com/nexusai-enterprises/cloudsim/cmn"
	"github.com/nexusai-enterprises/cloudsim/vdisk"
	"github.com/nexusai-enterprises/cloudsim/vos"
)

// NodeRuntime is the per-node handle the engine needs to drive chunk
// admission through a node's kernel and disk. Supplied by the owning
// ais.Controller at construction, keeping xact free of any import on ais
// (which itself imports xact).
type NodeRuntime interface {
	Disk() *vdisk.VirtualDisk
	OS() *vos.VirtualOS
	Online() bool
}

// Lookup resolves a node's runtime handle by ID.
type Lookup func(id cmn.NodeID) (NodeRuntime, bool)
