package planner

import "github.com/strataql/strata/internal/catalog"

// Per-row cost constants for the model in spec.md §4.G:
// cost = rows * (ioPerRow + cpuPerRow). IO dominates scan cost once
// footer-based stripe pruning has cut the candidate set; cpuPerRow
// models decode + predicate evaluation.
const (
	ioPerRow         = 1.0
	cpuPerRow        = 0.1
	indexSeekOverhead = 50.0 // fixed cost of an index lookup, amortized over few keys
)

// TableStats is the row/stripe estimate the planner needs per table. The
// database layer supplies these from the catalog + timeline snapshot;
// the planner itself never reads stripes.
type TableStats struct {
	RowCount    int64
	StripeCount int64
}

func seqScanCost(stats TableStats) float64 {
	rows := float64(stats.RowCount)
	return rows * (ioPerRow + cpuPerRow)
}

// indexScanCost estimates the cost of satisfying a predicate via an
// index with the given estimated selectivity (0 < selectivity <= 1).
func indexScanCost(stats TableStats, selectivity float64) float64 {
	rows := float64(stats.RowCount) * selectivity
	if rows < 1 {
		rows = 1
	}
	return indexSeekOverhead + rows*(ioPerRow+cpuPerRow)
}

// indexKindPriority implements the tie-break order from spec.md §4.G
// when two index kinds offer equal estimated cost: unique > hash >
// btree > bitmap > bloom. Lower number wins.
func indexKindPriority(unique bool, kind catalog.IndexKind) int {
	if unique {
		return 0
	}
	switch kind {
	case catalog.IndexHash:
		return 1
	case catalog.IndexBTree:
		return 2
	case catalog.IndexBitmap:
		return 3
	case catalog.IndexBloom:
		return 4
	default:
		return 5
	}
}
