// Command genmock writes a synthetic raw sensor batch for local runs and
// fixtures. Rows are generated deterministically from a seed; a share of
// them is corrupted in each way the validator rejects, and a share carries
// a standard deviation above the alert threshold. The generated batch is
// run through the domain validator so the printed stats match what the
// ingest stage will see.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/batch.csv
//	go run ./cmd/genmock -out batch.csv -start 2023-01-01 -days 90 -invalid 0.1 -alerts 0.05 -seed 7
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// referenceTime is the fixed "now" used when reporting expected outcomes.
var referenceTime = time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

type options struct {
	start        time.Time
	days         int
	readingsDay  int
	invalidShare float64
	alertShare   float64
	seed         uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the raw batch CSV")
	start := flag.String("start", "2023-01-01", "first reading date (YYYY-MM-DD)")
	days := flag.Int("days", 60, "number of consecutive days to generate")
	perDay := flag.Int("per-day", 1, "readings per day")
	invalid := flag.Float64("invalid", 0.1, "share of rows to corrupt (0-1)")
	alerts := flag.Float64("alerts", 0.05, "share of valid rows above the alert threshold (0-1)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if *days < 1 || *perDay < 1 {
		return fmt.Errorf("-days and -per-day must be at least 1")
	}

	rows := generate(options{
		start:        startDate,
		days:         *days,
		readingsDay:  *perDay,
		invalidShare: *invalid,
		alertShare:   *alerts,
		seed:         *seed,
	})

	data, err := encode(rows)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	log.Printf("wrote %d rows to %s", len(rows), *out)

	return printStats(data, clockwork.NewFakeClockAt(referenceTime))
}

// corruptions rewrites a valid row into one failing a specific check.
var corruptions = []func(r *rand.Rand, row []string) []string{
	func(_ *rand.Rand, row []string) []string { return []string{row[0], "", row[2]} },
	func(_ *rand.Rand, row []string) []string { return []string{"26-04-2023", row[1], row[2]} },
	func(_ *rand.Rand, row []string) []string { return []string{"2099/01/01", row[1], row[2]} },
	func(_ *rand.Rand, row []string) []string { return []string{"2016/12/31", row[1], row[2]} },
	func(_ *rand.Rand, row []string) []string { return []string{row[0], "-" + row[1], row[2]} },
	func(r *rand.Rand, row []string) []string {
		return []string{row[0], row[1], []string{"NaN", "abc", "-0.3"}[r.IntN(3)]}
	},
}

func generate(opts options) [][]string {
	r := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	var rows [][]string
	for d := range opts.days {
		date := opts.start.AddDate(0, 0, d)
		// Seasonal baseline in degrees Celsius.
		base := 15 + 10*seasonal(date)
		for range opts.readingsDay {
			mean := base + r.NormFloat64()*2
			if mean < 0 {
				mean = -mean
			}
			stdDev := 0.05 + r.Float64()*(domain.DefaultAlertThreshold-0.1)
			if r.Float64() < opts.alertShare {
				stdDev = domain.DefaultAlertThreshold + 0.01 + r.Float64()
			}
			row := []string{date.Format(domain.DateLayout), round(mean), round(stdDev)}
			if r.Float64() < opts.invalidShare {
				row = corruptions[r.IntN(len(corruptions))](r, row)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// seasonal maps the day of year onto [-1, 1], peaking in mid July.
func seasonal(t time.Time) float64 {
	day := float64(t.YearDay())
	switch {
	case day <= 196:
		return -1 + 2*day/196
	default:
		return 1 - 2*(day-196)/169
	}
}

func round(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func encode(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.DatasetHeader()); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func printStats(data []byte, clock clockwork.Clock) error {
	rows, err := domain.ReadBatch(bytes.NewReader(data))
	if err != nil {
		return err
	}

	validator := domain.NewValidator()
	evaluator := domain.NewAlertEvaluator()
	byReason := map[domain.Reason]int{}
	var valid, alerts int
	for _, row := range rows {
		out := validator.Validate(row, clock.Now())
		if !out.Valid() {
			byReason[out.Reason]++
			continue
		}
		valid++
		if _, ok := evaluator.Evaluate(out.Record); ok {
			alerts++
		}
	}

	fmt.Printf("\n=== Stats as of %s ===\n", clock.Now().Format(time.DateOnly))
	fmt.Printf("Total: %d\n", len(rows))
	fmt.Printf("Valid: %d\n", valid)
	fmt.Printf("Invalid: %d\n", len(rows)-valid)
	for _, reason := range domain.Reasons() {
		if n := byReason[reason]; n > 0 {
			fmt.Printf("  %s: %d\n", reason, n)
		}
	}
	fmt.Printf("Alerts: %d\n", alerts)
	return nil
}
