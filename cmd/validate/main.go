// Command validate checks a raw sensor batch offline, without touching the
// object store or Kafka. It applies the same validation rules and alert
// threshold as the ingest stage and previews the monthly metrics the valid
// rows would produce.
//
// Usage:
//
//	go run ./cmd/validate -file data/mock/batch.csv
//	go run ./cmd/validate -file batch.csv -now 2024-04-26 -threshold 0.5 -strict
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// report tallies the outcome of validating one batch.
type report struct {
	rows     int
	valid    []domain.ValidatedRecord
	invalid  []domain.InvalidRecord
	byReason map[domain.Reason]int
	alerts   []domain.Alert
}

func main() {
	file := flag.String("file", "", "path to a raw batch CSV (Fecha,Medias,Desviaciones)")
	now := flag.String("now", "", "reference date for the future-date check (YYYY-MM-DD, default today)")
	threshold := flag.Float64("threshold", domain.DefaultAlertThreshold, "standard deviation alert threshold")
	strict := flag.Bool("strict", false, "exit non-zero when any row is invalid")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	if *now != "" {
		t, err := time.Parse(time.DateOnly, *now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: invalid -now: %v\n", err)
			os.Exit(1)
		}
		// End of the given day so readings dated that day are not in the future.
		clock = clockwork.NewFakeClockAt(t.Add(24*time.Hour - time.Nanosecond))
	}

	os.Exit(run(*file, clock, domain.AlertEvaluator{Threshold: *threshold}, *strict))
}

func run(path string, clock clockwork.Clock, evaluator domain.AlertEvaluator, strict bool) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	defer f.Close()

	rows, err := domain.ReadBatch(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	rep := validate(rows, domain.NewValidator(), evaluator, clock.Now())

	fmt.Println("=== Sensor Batch Validation ===")
	fmt.Println()
	fmt.Printf("File:    %s\n", path)
	fmt.Printf("Rows:    %d\n", rep.rows)
	fmt.Printf("Valid:   %d\n", len(rep.valid))
	fmt.Printf("Invalid: %d\n", len(rep.invalid))
	fmt.Printf("Alerts:  %d (threshold %s)\n", len(rep.alerts), domain.FormatDecimal(evaluator.Threshold))

	if len(rep.invalid) > 0 {
		fmt.Println("\n--- Invalid rows by reason ---")
		for _, reason := range domain.Reasons() {
			if n := rep.byReason[reason]; n > 0 {
				fmt.Printf("  %-18s %d\n", reason, n)
			}
		}
		fmt.Println("\n--- Invalid rows ---")
		for _, inv := range rep.invalid {
			fmt.Printf("  line %-5d %-18s %s\n", inv.Line, inv.Reason, strings.Join(inv.Fields, ","))
		}
	}

	if len(rep.alerts) > 0 {
		fmt.Println("\n--- Alerts ---")
		for _, a := range rep.alerts {
			fmt.Printf("  %s\n", a.Message)
		}
	}

	metrics := domain.AddSequentialDiff(domain.Aggregate(rep.valid))
	if len(metrics) > 0 {
		fmt.Println("\n--- Monthly preview ---")
		fmt.Printf("  %-7s %10s %10s %10s %10s\n", "month", "avg", "max", "max_std", "diff")
		for _, m := range metrics {
			fmt.Printf("  %04d-%02d %10s %10s %10s %10s\n", m.Year, m.Month,
				domain.FormatDecimal(m.AvgMean), domain.FormatDecimal(m.MaxMean),
				domain.FormatDecimal(m.MaxStdDev), domain.FormatDecimal(m.DiffFromPrevious))
		}
	}

	if strict && len(rep.invalid) > 0 {
		fmt.Println("\nValidation FAILED.")
		return 1
	}
	fmt.Println("\nValidation complete.")
	return 0
}

func validate(rows []domain.RawRecord, v domain.Validator, evaluator domain.AlertEvaluator, now time.Time) report {
	rep := report{rows: len(rows), byReason: make(map[domain.Reason]int)}
	for _, row := range rows {
		out := v.Validate(row, now)
		if !out.Valid() {
			rep.invalid = append(rep.invalid, out.Invalid())
			rep.byReason[out.Reason]++
			continue
		}
		rep.valid = append(rep.valid, out.Record)
		if alert, ok := evaluator.Evaluate(out.Record); ok {
			rep.alerts = append(rep.alerts, alert)
		}
	}
	return rep
}
