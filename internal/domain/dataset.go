package domain

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Dataset is a keyed CSV dataset. Rows are keyed by their first field; the
// order of Rows is the order keys were first seen, not chronological order.
type Dataset struct {
	header []string
	keys   []string
	rows   map[string][]string
}

// NewDataset returns an empty dataset carrying the standard header.
func NewDataset() *Dataset {
	return &Dataset{
		header: DatasetHeader(),
		rows:   make(map[string][]string),
	}
}

// ParseDataset reads a stored dataset. The first row is kept verbatim as
// the header. When a key repeats, the later row replaces the earlier one
// but keeps the earlier position.
func ParseDataset(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	d := NewDataset()
	if len(records) == 0 {
		return d, nil
	}
	d.header = records[0]
	for _, rec := range records[1:] {
		key := rowKey(rec)
		if _, ok := d.rows[key]; !ok {
			d.keys = append(d.keys, key)
		}
		d.rows[key] = rec
	}
	return d, nil
}

// Len returns the number of keyed rows, excluding the header.
func (d *Dataset) Len() int {
	return len(d.keys)
}

// Header returns the dataset header row.
func (d *Dataset) Header() []string {
	return slices.Clone(d.header)
}

// Get returns the row stored under key.
func (d *Dataset) Get(key string) ([]string, bool) {
	row, ok := d.rows[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(row), true
}

// Rows returns every row in dataset order.
func (d *Dataset) Rows() [][]string {
	out := make([][]string, 0, len(d.keys))
	for _, k := range d.keys {
		out = append(out, slices.Clone(d.rows[k]))
	}
	return out
}

// Upsert inserts row under its key, or, when the key exists, overwrites
// only the mean and deviation columns of the stored row.
func (d *Dataset) Upsert(row []string) {
	key := rowKey(row)
	existing, ok := d.rows[key]
	if !ok {
		d.keys = append(d.keys, key)
		d.rows[key] = slices.Clone(row)
		return
	}
	for len(existing) < 3 {
		existing = append(existing, "")
	}
	existing[1] = fieldAt(row, 1)
	existing[2] = fieldAt(row, 2)
	d.rows[key] = existing
}

// Merge upserts every incoming row in order and returns the dataset.
// Merging the same rows again leaves the dataset unchanged.
func (d *Dataset) Merge(incoming [][]string) *Dataset {
	for _, row := range incoming {
		d.Upsert(row)
	}
	return d
}

// WriteCSV writes the header followed by every row.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.header); err != nil {
		return fmt.Errorf("write dataset header: %w", err)
	}
	for _, k := range d.keys {
		if err := cw.Write(d.rows[k]); err != nil {
			return fmt.Errorf("write dataset row %q: %w", k, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Bytes encodes the dataset as CSV.
func (d *Dataset) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Records parses every row as a reading. Rows that do not parse are
// returned as errors and left out of the records.
func (d *Dataset) Records() ([]ValidatedRecord, []error) {
	records := make([]ValidatedRecord, 0, len(d.keys))
	var errs []error
	for _, k := range d.keys {
		rec, err := parseStoredRow(d.rows[k])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func parseStoredRow(row []string) (ValidatedRecord, error) {
	date, err := ParseDate(fieldAt(row, 0))
	if err != nil {
		return ValidatedRecord{}, err
	}
	mean, ok := parseNonNegative(strings.TrimSpace(fieldAt(row, 1)))
	if !ok {
		return ValidatedRecord{}, fmt.Errorf("row %q: invalid mean %q", fieldAt(row, 0), fieldAt(row, 1))
	}
	stdDev, ok := parseNonNegative(strings.TrimSpace(fieldAt(row, 2)))
	if !ok {
		return ValidatedRecord{}, fmt.Errorf("row %q: invalid deviation %q", fieldAt(row, 0), fieldAt(row, 2))
	}
	return ValidatedRecord{Date: date, Mean: mean, StdDev: stdDev}, nil
}

func rowKey(row []string) string {
	return fieldAt(row, 0)
}

func fieldAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
