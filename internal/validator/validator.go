// Package validator performs a streamed, read-only integrity scan over an
// already-written output file. It never fails a job; it only reports.
package validator

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

const timeLayout = "02.01.2006 15:04:05"

// Result summarizes one validation pass.
type Result struct {
	TotalRows          int
	FirstTS            time.Time
	LastTS             time.Time
	MinPrice           decimal.Decimal
	MaxPrice           decimal.Decimal
	OutOfOrder         int
	Duplicates         int
	InvalidOHLC        int
	NonPositivePrices  int
	UnparseableRows    int
}

// Report renders a human-readable summary, in the teacher's "structured
// one-liner per metric" logging style.
func (r Result) Report() string {
	return fmt.Sprintf(
		"rows=%d first=%s last=%s min_price=%s max_price=%s out_of_order=%d duplicates=%d invalid_ohlc=%d non_positive=%d unparseable=%d",
		r.TotalRows, formatTS(r.FirstTS), formatTS(r.LastTS), r.MinPrice.String(), r.MaxPrice.String(),
		r.OutOfOrder, r.Duplicates, r.InvalidOHLC, r.NonPositivePrices, r.UnparseableRows,
	)
}

func formatTS(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// ValidateFile streams path and scans it as either tick rows (5 columns)
// or candle rows (6 columns), as selected by isCandle. When header is true
// the first record is skipped without being inspected.
func ValidateFile(path string, header bool, isCandle bool) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("validator: open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1

	var result Result
	var prevTS time.Time
	havePrev := false
	first := true

	for {
		rec, err := cr.Read()
		if err != nil {
			break
		}
		if header && first {
			first = false
			continue
		}
		first = false

		row, err := parseRow(rec, isCandle)
		if err != nil {
			result.UnparseableRows++
			continue
		}

		result.TotalRows++
		if result.FirstTS.IsZero() {
			result.FirstTS = row.ts
		}
		result.LastTS = row.ts

		if havePrev {
			switch {
			case row.ts.Before(prevTS):
				result.OutOfOrder++
			case row.ts.Equal(prevTS):
				result.Duplicates++
			}
		}
		prevTS = row.ts
		havePrev = true

		for _, p := range row.prices {
			if result.MinPrice.IsZero() && result.MaxPrice.IsZero() && result.TotalRows == 1 {
				result.MinPrice = p
				result.MaxPrice = p
			} else {
				if p.LessThan(result.MinPrice) {
					result.MinPrice = p
				}
				if p.GreaterThan(result.MaxPrice) {
					result.MaxPrice = p
				}
			}
			if !p.IsPositive() {
				result.NonPositivePrices++
			}
		}

		if isCandle && !row.ohlcValid() {
			result.InvalidOHLC++
		}
	}

	return result, nil
}

type parsedRow struct {
	ts     time.Time
	prices []decimal.Decimal // candle: [open, high, low, close]; tick: [ask, bid]
}

func (r parsedRow) ohlcValid() bool {
	if len(r.prices) != 4 {
		return true
	}
	open, high, low, closeP := r.prices[0], r.prices[1], r.prices[2], r.prices[3]
	if high.LessThan(open) || high.LessThan(closeP) || high.LessThan(low) {
		return false
	}
	if low.GreaterThan(open) || low.GreaterThan(closeP) || low.GreaterThan(high) {
		return false
	}
	return true
}

func parseRow(rec []string, isCandle bool) (parsedRow, error) {
	if isCandle {
		if len(rec) != 6 {
			return parsedRow{}, fmt.Errorf("expected 6 fields, got %d", len(rec))
		}
		ts, err := time.Parse(timeLayout, rec[0])
		if err != nil {
			return parsedRow{}, err
		}
		open, err := decimal.NewFromString(rec[1])
		if err != nil {
			return parsedRow{}, err
		}
		high, err := decimal.NewFromString(rec[2])
		if err != nil {
			return parsedRow{}, err
		}
		low, err := decimal.NewFromString(rec[3])
		if err != nil {
			return parsedRow{}, err
		}
		closeP, err := decimal.NewFromString(rec[4])
		if err != nil {
			return parsedRow{}, err
		}
		return parsedRow{ts: ts, prices: []decimal.Decimal{open, high, low, closeP}}, nil
	}

	if len(rec) != 5 {
		return parsedRow{}, fmt.Errorf("expected 5 fields, got %d", len(rec))
	}
	tsStr := rec[0]
	layout := timeLayout
	if len(tsStr) > len(timeLayout) {
		layout = timeLayout + ".000"
	}
	ts, err := time.Parse(layout, tsStr)
	if err != nil {
		return parsedRow{}, err
	}
	ask, err := decimal.NewFromString(rec[1])
	if err != nil {
		return parsedRow{}, err
	}
	bid, err := decimal.NewFromString(rec[2])
	if err != nil {
		return parsedRow{}, err
	}
	return parsedRow{ts: ts, prices: []decimal.Decimal{ask, bid}}, nil
}
