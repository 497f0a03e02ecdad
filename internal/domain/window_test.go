package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func group(year, month int, maxMean float64) MonthlyGroup {
	return MonthlyGroup{MonthKey: MonthKey{Year: year, Month: month}, AvgMean: maxMean, MaxMean: maxMean}
}

func diffs(metrics []MonthlyMetric) []float64 {
	out := make([]float64, len(metrics))
	for i, m := range metrics {
		out[i] = m.DiffFromPrevious
	}
	return out
}

func TestAddSequentialDiff_ConsecutiveMonths(t *testing.T) {
	metrics := AddSequentialDiff([]MonthlyGroup{
		group(2023, 1, 7),
		group(2023, 2, 3),
		group(2023, 3, 9),
	})

	assert.Equal(t, []float64{0.0, -4.0, 6.0}, diffs(metrics))
}

func TestAddSequentialDiff_SortsByYearThenMonth(t *testing.T) {
	metrics := AddSequentialDiff([]MonthlyGroup{
		group(2024, 1, 10),
		group(2023, 12, 4),
		group(2023, 2, 1),
	})

	require.Len(t, metrics, 3)
	type ym struct{ Year, Month int }
	got := []ym{{metrics[0].Year, metrics[0].Month}, {metrics[1].Year, metrics[1].Month}, {metrics[2].Year, metrics[2].Month}}
	want := []ym{{2023, 2}, {2023, 12}, {2024, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{0.0, 3.0, 6.0}, diffs(metrics))
}

func TestAddSequentialDiff_GapsUseNearestEarlierMonth(t *testing.T) {
	metrics := AddSequentialDiff([]MonthlyGroup{
		group(2023, 1, 5),
		group(2023, 6, 12),
	})

	assert.Equal(t, []float64{0.0, 7.0}, diffs(metrics))
}

func TestAddSequentialDiff_FirstMonthSentinel(t *testing.T) {
	metrics := AddSequentialDiff([]MonthlyGroup{group(2023, 5, 42)})

	require.Len(t, metrics, 1)
	assert.Equal(t, NoPreviousDiff, metrics[0].DiffFromPrevious)
}

func TestAddSequentialDiff_CarriesStatistics(t *testing.T) {
	in := MonthlyGroup{MonthKey: MonthKey{Year: 2023, Month: 1}, AvgMean: 6, MaxMean: 7, MaxStdDev: 0.2, Count: 2}
	metrics := AddSequentialDiff([]MonthlyGroup{in})

	want := MonthlyMetric{Year: 2023, Month: 1, AvgMean: 6, MaxMean: 7, MaxStdDev: 0.2}
	assert.Equal(t, want, metrics[0])
}

func TestAddSequentialDiff_DoesNotModifyInput(t *testing.T) {
	in := []MonthlyGroup{group(2023, 3, 1), group(2023, 1, 2)}
	AddSequentialDiff(in)

	assert.Equal(t, 3, in[0].Month)
}

func TestAddSequentialDiff_Empty(t *testing.T) {
	assert.Empty(t, AddSequentialDiff(nil))
}
