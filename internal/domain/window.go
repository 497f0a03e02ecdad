package domain

import "slices"

// NoPreviousDiff is the difference reported for the first month, which has
// no preceding month to compare against.
const NoPreviousDiff = 0.0

// MonthlyMetric is one exported row of monthly statistics.
type MonthlyMetric struct {
	Year             int
	Month            int
	AvgMean          float64
	MaxMean          float64
	MaxStdDev        float64
	DiffFromPrevious float64
}

// AddSequentialDiff sorts groups by (year, month) and sets each month's
// DiffFromPrevious to its MaxMean minus the MaxMean of the preceding
// element. Missing months are not filled: the preceding element may be
// several months earlier. The input slice is not modified.
func AddSequentialDiff(groups []MonthlyGroup) []MonthlyMetric {
	sorted := slices.Clone(groups)
	slices.SortFunc(sorted, func(a, b MonthlyGroup) int {
		switch {
		case a.MonthKey.Less(b.MonthKey):
			return -1
		case b.MonthKey.Less(a.MonthKey):
			return 1
		default:
			return 0
		}
	})

	metrics := make([]MonthlyMetric, len(sorted))
	for i, g := range sorted {
		diff := NoPreviousDiff
		if i > 0 {
			diff = g.MaxMean - sorted[i-1].MaxMean
		}
		metrics[i] = MonthlyMetric{
			Year:             g.Year,
			Month:            g.Month,
			AvgMean:          g.AvgMean,
			MaxMean:          g.MaxMean,
			MaxStdDev:        g.MaxStdDev,
			DiffFromPrevious: diff,
		}
	}
	return metrics
}
