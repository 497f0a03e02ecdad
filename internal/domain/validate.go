package domain

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Reason names the first validation check a row failed.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonMissingField   Reason = "missing_field"
	ReasonDateParseError Reason = "date_parse_error"
	ReasonDateInFuture   Reason = "date_in_future"
	ReasonDateTooOld     Reason = "date_too_old"
	ReasonInvalidMean    Reason = "invalid_mean"
	ReasonInvalidStdDev  Reason = "invalid_std_dev"
)

// Reasons lists every failure reason in check order.
func Reasons() []Reason {
	return []Reason{
		ReasonMissingField,
		ReasonDateParseError,
		ReasonDateInFuture,
		ReasonDateTooOld,
		ReasonInvalidMean,
		ReasonInvalidStdDev,
	}
}

// DefaultMinDate is the earliest accepted reading date.
var DefaultMinDate = time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)

// Outcome is the result of validating one row: either Record is set and
// Reason is ReasonNone, or Reason names the failed check.
type Outcome struct {
	Row    RawRecord
	Record ValidatedRecord
	Reason Reason
}

// Valid reports whether the row passed every check.
func (o Outcome) Valid() bool {
	return o.Reason == ReasonNone
}

// Invalid returns the audit form of a rejected row.
func (o Outcome) Invalid() InvalidRecord {
	return InvalidRecord{Line: o.Row.Line, Fields: o.Row.Fields, Reason: o.Reason}
}

// Validator classifies raw rows. The zero value rejects nothing by date age;
// use NewValidator for the production lower bound.
type Validator struct {
	MinDate time.Time
}

// NewValidator returns a Validator with the default 2017-01-01 lower bound.
func NewValidator() Validator {
	return Validator{MinDate: DefaultMinDate}
}

// Validate runs the ordered checks against row. referenceTime is "now": a
// date later than it is in the future. Validate has no side effects.
func (v Validator) Validate(row RawRecord, referenceTime time.Time) Outcome {
	out := Outcome{Row: row}

	date := strings.TrimSpace(row.field(0))
	mean := strings.TrimSpace(row.field(1))
	stdDev := strings.TrimSpace(row.field(2))

	if date == "" || mean == "" || stdDev == "" {
		out.Reason = ReasonMissingField
		return out
	}

	parsed, err := time.ParseInLocation(dateParseLayout, date, referenceTime.Location())
	if err != nil {
		out.Reason = ReasonDateParseError
		return out
	}
	if parsed.After(referenceTime) {
		out.Reason = ReasonDateInFuture
		return out
	}
	if !v.MinDate.IsZero() && parsed.Before(v.minDateIn(referenceTime.Location())) {
		out.Reason = ReasonDateTooOld
		return out
	}

	meanVal, ok := parseNonNegative(mean)
	if !ok {
		out.Reason = ReasonInvalidMean
		return out
	}
	stdDevVal, ok := parseNonNegative(stdDev)
	if !ok {
		out.Reason = ReasonInvalidStdDev
		return out
	}

	out.Record = ValidatedRecord{Date: parsed, Mean: meanVal, StdDev: stdDevVal, meanText: mean, stdDevText: stdDev}
	return out
}

// minDateIn expresses the lower bound as a calendar date in loc so that
// the comparison is day-based regardless of the reference time zone.
func (v Validator) minDateIn(loc *time.Location) time.Time {
	y, m, d := v.MinDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// parseNonNegative accepts decimal and exponent notation. Hexadecimal
// floats, which strconv also parses, are rejected.
func parseNonNegative(s string) (float64, bool) {
	digits := strings.TrimLeft(s, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseDate parses a dataset date in either padded or unpadded form.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateParseLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ReadBatch reads a raw batch, checks its header, and returns its rows
// tagged with their line numbers. A header mismatch rejects the whole batch.
func ReadBatch(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty batch", ErrHeaderMismatch)
		}
		return nil, fmt.Errorf("read batch header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if !slices.Equal(header, DatasetHeader()) {
		return nil, fmt.Errorf("%w: got %q", ErrHeaderMismatch, header)
	}

	var rows []RawRecord
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read batch: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, RawRecord{Line: line, Fields: fields})
	}
	return rows, nil
}
