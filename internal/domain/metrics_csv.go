package domain

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column names of the exported monthly metrics.
const (
	ColumnYear      = "Ano"
	ColumnMonth     = "Mes"
	ColumnAvgMean   = "TempMediaMensual"
	ColumnMaxMean   = "TempMaxMensual"
	ColumnMaxStdDev = "MaxDesviacion"
	ColumnDiff      = "DiferenciaTempMax"
)

// ErrMetricsHeader is returned when an export lacks a required column.
var ErrMetricsHeader = errors.New("metrics header is missing a column")

// MetricsHeader returns the header row of the monthly metrics export.
func MetricsHeader() []string {
	return []string{ColumnYear, ColumnMonth, ColumnAvgMean, ColumnMaxMean, ColumnMaxStdDev, ColumnDiff}
}

// EncodeMetrics renders metrics as CSV in the given order. Every numeric
// column is written as a decimal, including a 0.0 difference.
func EncodeMetrics(metrics []MonthlyMetric) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(MetricsHeader()); err != nil {
		return nil, fmt.Errorf("write metrics header: %w", err)
	}
	for _, m := range metrics {
		row := []string{
			strconv.Itoa(m.Year),
			strconv.Itoa(m.Month),
			FormatDecimal(m.AvgMean),
			FormatDecimal(m.MaxMean),
			FormatDecimal(m.MaxStdDev),
			FormatDecimal(m.DiffFromPrevious),
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write metrics row %d/%d: %w", m.Year, m.Month, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMetrics reads an export by column name. Rows that fail to parse are
// returned in rowErrs and skipped; err is set only when the file itself is
// unreadable or a column is missing.
func DecodeMetrics(r io.Reader) (metrics []MonthlyMetric, rowErrs []error, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%w: empty file", ErrMetricsHeader)
		}
		return nil, nil, fmt.Errorf("read metrics header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range MetricsHeader() {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMetricsHeader, col)
		}
	}

	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, nil, fmt.Errorf("read metrics: %w", readErr)
		}
		m, parseErr := parseMetricRow(row, index)
		if parseErr != nil {
			line, _ := reader.FieldPos(0)
			rowErrs = append(rowErrs, fmt.Errorf("line %d: %w", line, parseErr))
			continue
		}
		metrics = append(metrics, m)
	}
	return metrics, rowErrs, nil
}

func parseMetricRow(row []string, index map[string]int) (MonthlyMetric, error) {
	get := func(col string) string {
		return strings.TrimSpace(fieldAt(row, index[col]))
	}

	year, err := strconv.Atoi(get(ColumnYear))
	if err != nil {
		return MonthlyMetric{}, fmt.Errorf("parse %s: %w", ColumnYear, err)
	}
	month, err := strconv.Atoi(get(ColumnMonth))
	if err != nil {
		return MonthlyMetric{}, fmt.Errorf("parse %s: %w", ColumnMonth, err)
	}
	if month < 1 || month > 12 {
		return MonthlyMetric{}, fmt.Errorf("parse %s: month %d out of range", ColumnMonth, month)
	}

	m := MonthlyMetric{Year: year, Month: month}
	fields := []struct {
		col string
		dst *float64
	}{
		{ColumnAvgMean, &m.AvgMean},
		{ColumnMaxMean, &m.MaxMean},
		{ColumnMaxStdDev, &m.MaxStdDev},
		{ColumnDiff, &m.DiffFromPrevious},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(get(f.col), 64)
		if err != nil {
			return MonthlyMetric{}, fmt.Errorf("parse %s: %w", f.col, err)
		}
		*f.dst = v
	}
	return m, nil
}

// FormatDecimal renders v in its shortest decimal form with at least one
// fractional digit: 6 -> "6.0", -4 -> "-4.0", 0.25 -> "0.25".
func FormatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
