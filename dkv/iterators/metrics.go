package iterators

import "github.com/VictoriaMetrics/metrics"

var (
	mergeDuplicatesDrained = metrics.NewCounter("merge_duplicates_drained")
	mergeHeapSwaps         = metrics.NewCounter("merge_heap_swaps")
	lsmTombstonesSkipped   = metrics.NewCounter("lsm_tombstones_skipped")
	lsmVersionsCollapsed   = metrics.NewCounter("lsm_versions_collapsed")
	fusedBreaks            = metrics.NewCounter("fused_iterator_breaks")
)

// ResetMetrics zeroes the iterator counters.
func ResetMetrics() {
	mergeDuplicatesDrained.Set(0)
	mergeHeapSwaps.Set(0)
	lsmTombstonesSkipped.Set(0)
	lsmVersionsCollapsed.Set(0)
	fusedBreaks.Set(0)
}
