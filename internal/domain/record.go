package domain

import (
	"errors"
	"strconv"
	"time"
)

// DateLayout is the canonical textual form of a reading date.
const DateLayout = "2006/01/02"

// dateParseLayout accepts unpadded months and days ("2023/1/5").
const dateParseLayout = "2006/1/2"

// Column names shared by the raw, valid, and invalid datasets.
const (
	ColumnDate   = "Fecha"
	ColumnMean   = "Medias"
	ColumnStdDev = "Desviaciones"
)

var (
	// ErrHeaderMismatch is returned when a batch header is not exactly DatasetHeader.
	ErrHeaderMismatch = errors.New("unexpected batch header")

	// ErrObjectNotFound is returned by object stores when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

// DatasetHeader returns the header row of raw, valid, and invalid datasets.
func DatasetHeader() []string {
	return []string{ColumnDate, ColumnMean, ColumnStdDev}
}

// RawRecord is one untyped row of an ingested batch. Line is the 1-based
// line number in the source file (the header is line 1) and identifies the
// row for audit after concurrent validation.
type RawRecord struct {
	Line   int
	Fields []string
}

func (r RawRecord) field(i int) string {
	if i < len(r.Fields) {
		return r.Fields[i]
	}
	return ""
}

// ValidatedRecord is a reading that passed every validation check.
type ValidatedRecord struct {
	Date   time.Time
	Mean   float64
	StdDev float64

	// Trimmed source text of the numbers, kept so stored rows repeat what
	// the sensor sent. Empty for records built in code.
	meanText   string
	stdDevText string
}

// DateKey returns the canonical date string used as the dataset key.
func (r ValidatedRecord) DateKey() string {
	return r.Date.Format(DateLayout)
}

// Fields renders the record as a dataset row: the canonical date followed
// by the numbers as they were received.
func (r ValidatedRecord) Fields() []string {
	return []string{r.DateKey(), numberText(r.meanText, r.Mean), numberText(r.stdDevText, r.StdDev)}
}

func numberText(text string, v float64) string {
	if text != "" {
		return text
	}
	return formatNumber(v)
}

// InvalidRecord keeps the untouched fields of a rejected row and why it was rejected.
type InvalidRecord struct {
	Line   int
	Fields []string
	Reason Reason
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
