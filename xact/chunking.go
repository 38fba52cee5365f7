package xact

import "github.com/nexusai-enterprises/cloudsim/cmn"

// chunkSize derives a chunk size from file size and bottleneck bandwidth so
// one chunk fits in roughly one tick at the bottleneck link, clamped to
// [chunk_min, chunk_max] and to the file size (spec §4.5). The route's hop
// count does not enter the calculation.
func chunkSize(cfg *cmn.Config, size int64, bottleneckBps int64) int64 {
	target := int64(float64(bottleneckBps) / 8 * cfg.TickSeconds)
	if target < cfg.ChunkMin {
		target = cfg.ChunkMin
	}
	if target > cfg.ChunkMax {
		target = cfg.ChunkMax
	}
	if target > size {
		target = size
	}
	if target <= 0 {
		target = size
	}
	return target
}

// splitChunks divides size bytes into chunks of at most sz bytes each, the
// last one possibly shorter.
func splitChunks(size, sz int64) []*Chunk {
	if sz <= 0 {
		sz = size
	}
	var chunks []*Chunk
	id := 0
	for remaining := size; remaining > 0; id++ {
		length := sz
		if length > remaining {
			length = remaining
		}
		chunks = append(chunks, &Chunk{ID: id, Length: length, State: ChunkPending})
		remaining -= length
	}
	return chunks
}
