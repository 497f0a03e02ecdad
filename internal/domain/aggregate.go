package domain

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month int
}

// Less orders keys by year, then month.
func (k MonthKey) Less(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

// MonthlyGroup holds the reductions of every reading in one month.
type MonthlyGroup struct {
	MonthKey
	AvgMean   float64
	MaxMean   float64
	MaxStdDev float64
	Count     int
}

type accumulator struct {
	sum       float64
	maxMean   float64
	maxStdDev float64
	count     int
}

func (a *accumulator) add(r ValidatedRecord) {
	if a.count == 0 || r.Mean > a.maxMean {
		a.maxMean = r.Mean
	}
	if a.count == 0 || r.StdDev > a.maxStdDev {
		a.maxStdDev = r.StdDev
	}
	a.sum += r.Mean
	a.count++
}

// Aggregate groups records by (year, month) regardless of day and computes
// the average mean, maximum mean, and maximum deviation of each group.
// Groups are returned in order of first appearance; use AddSequentialDiff
// for chronological order.
func Aggregate(records []ValidatedRecord) []MonthlyGroup {
	var order []MonthKey
	acc := make(map[MonthKey]*accumulator)

	for _, r := range records {
		key := MonthKey{Year: r.Date.Year(), Month: int(r.Date.Month())}
		a, ok := acc[key]
		if !ok {
			a = &accumulator{}
			acc[key] = a
			order = append(order, key)
		}
		a.add(r)
	}

	groups := make([]MonthlyGroup, 0, len(order))
	for _, key := range order {
		a := acc[key]
		groups = append(groups, MonthlyGroup{
			MonthKey:  key,
			AvgMean:   a.sum / float64(a.count),
			MaxMean:   a.maxMean,
			MaxStdDev: a.maxStdDev,
			Count:     a.count,
		})
	}
	return groups
}
