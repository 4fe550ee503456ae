package embedding

import "runtime"

// lowMemoryThreshold is the heap-sys level above which the adaptive batcher
// starts shrinking batch size, trading throughput for headroom.
const lowMemoryThreshold = 512 * 1024 * 1024 // 512MB

// AdaptiveBatchSize recomputes the batch size for the next embedding call
// from current Go runtime memory pressure, clamped to [min, max] (spec.md
// §4.4). It is a heuristic, not a precise system-memory reading — like the
// rest of the pack's memory checks, it uses runtime.MemStats as a proxy.
func AdaptiveBatchSize(base, min, max int) int {
	if max <= 0 {
		max = base
	}
	if min <= 0 {
		min = 1
	}
	if min > max {
		min, max = max, min
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	size := base
	if stats.HeapSys > lowMemoryThreshold {
		// Halve the batch for every doubling of heap size past the
		// threshold, down to min.
		for stats.HeapSys > lowMemoryThreshold && size > min {
			size /= 2
			stats.HeapSys /= 2
		}
	}

	if size < min {
		size = min
	}
	if size > max {
		size = max
	}
	return size
}

// reclaimMemory issues the explicit memory-reclaim hint between batches
// (spec.md §4.4).
func reclaimMemory() {
	runtime.GC()
}
