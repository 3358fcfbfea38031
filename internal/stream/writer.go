// Package stream implements the two-phase streaming CSV assembly: Phase A
// spills one sorted, header-less partial file per completed trading day;
// Phase B merges the partials, in ascending day order, into the single
// final output file, folding any cross-day candle fragments as it goes.
// Memory use is bounded by one day's rows at a time regardless of the
// requested date range.
package stream

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fxhistorian/internal/aggregate"
	"fxhistorian/internal/metrics"
	"fxhistorian/internal/model"
)

// ErrWriteFailure wraps any error encountered writing a partial or the
// final file. A failed spill marks only that day as not completed; a
// failed Merge becomes the symbol's error. The spill directory is removed
// when the symbol finishes in either case, so partials are not kept for a
// later resume.
var ErrWriteFailure = fmt.Errorf("stream: write failure")

// Writer drives Phase A/Phase B for one symbol's run.
type Writer struct {
	spill      *SpillDir
	symbol     string
	mode       model.DataSource // never set or read; isCandle selects the row shape
	isCandle   bool
	volumeKind model.VolumeKind
	header     bool
	metrics    *metrics.Metrics
}

// NewWriter builds a Writer over an already-created SpillDir. m may be nil,
// in which case spill/merge row counts are not recorded.
func NewWriter(spill *SpillDir, symbol string, isCandle bool, volumeKind model.VolumeKind, header bool, m *metrics.Metrics) *Writer {
	return &Writer{spill: spill, symbol: symbol, isCandle: isCandle, volumeKind: volumeKind, header: header, metrics: m}
}

// SpillTicks writes one day's already-sorted ticks to its partial file,
// header-less.
func (w *Writer) SpillTicks(ordinal int, ticks []model.Tick) error {
	return w.spillRows(ordinal, len(ticks), func(cw *csv.Writer) error {
		for _, t := range ticks {
			if err := cw.Write(TickRow(t)); err != nil {
				return err
			}
		}
		return nil
	})
}

// SpillCandles writes one day's already-sorted candles to its partial
// file, header-less.
func (w *Writer) SpillCandles(ordinal int, candles []model.Candle) error {
	return w.spillRows(ordinal, len(candles), func(cw *csv.Writer) error {
		for _, c := range candles {
			if err := cw.Write(CandleRow(c, w.volumeKind)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Writer) spillRows(ordinal int, n int, write func(*csv.Writer) error) error {
	if n == 0 {
		return nil
	}
	f, err := os.Create(w.spill.PartialPath(ordinal))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := write(cw); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if w.metrics != nil {
		w.metrics.RowsSpilled.WithLabelValues(w.symbol).Add(float64(n))
	}
	return nil
}

// Merge runs Phase B: it reads the partials named by ordinals, in
// ascending order, and writes the single merged output file at path. For
// tick output the partials are already globally sorted and disjoint so
// rows are copied straight through; for candle output a one-row-lookahead
// Merger folds fragments that share a timestamp across a day boundary.
func (w *Writer) Merge(path string, ordinals []int) error {
	sorted := append([]int(nil), ordinals...)
	sort.Ints(sorted)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	cw := csv.NewWriter(bw)

	if w.header {
		header := TickHeader
		if w.isCandle {
			header = CandleHeader
		}
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
	}

	var rowsMerged int
	if w.isCandle {
		n, err := w.mergeCandles(cw, sorted)
		if err != nil {
			return err
		}
		rowsMerged = n
	} else {
		n, err := w.copyTicks(cw, sorted)
		if err != nil {
			return err
		}
		rowsMerged = n
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if w.metrics != nil {
		w.metrics.RowsMerged.WithLabelValues(w.symbol).Add(float64(rowsMerged))
	}
	return nil
}

func (w *Writer) copyTicks(cw *csv.Writer, ordinals []int) (int, error) {
	total := 0
	for _, ord := range ordinals {
		path := w.spill.PartialPath(ord)
		n, err := copyPartialRows(path, cw)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func copyPartialRows(path string, cw *csv.Writer) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1
	n := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			break
		}
		if err := cw.Write(rec); err != nil {
			return n, fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
		n++
	}
	return n, nil
}

func (w *Writer) mergeCandles(cw *csv.Writer, ordinals []int) (int, error) {
	merger := aggregate.NewMerger()
	n := 0

	feed := func(c model.Candle) error {
		if merged, ok := merger.Feed(c); ok {
			if err := cw.Write(CandleRow(merged, w.volumeKind)); err != nil {
				return err
			}
			n++
		}
		return nil
	}

	for _, ord := range ordinals {
		path := w.spill.PartialPath(ord)
		candles, err := readPartialCandles(path)
		if err != nil {
			return n, err
		}
		for _, c := range candles {
			if err := feed(c); err != nil {
				return n, fmt.Errorf("%w: %v", ErrWriteFailure, err)
			}
		}
	}

	if merged, ok := merger.Flush(); ok {
		if err := cw.Write(CandleRow(merged, w.volumeKind)); err != nil {
			return n, fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
		n++
	}
	return n, nil
}

func readPartialCandles(path string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1
	var out []model.Candle
	for {
		rec, err := cr.Read()
		if err != nil {
			break
		}
		c, err := parseCandleRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCandleRow(rec []string) (model.Candle, error) {
	if len(rec) != 6 {
		return model.Candle{}, fmt.Errorf("malformed candle partial row: %v", rec)
	}
	ts, err := time.ParseInLocation(timeLayout, rec[0], time.UTC)
	if err != nil {
		return model.Candle{}, err
	}
	open, err := decimal.NewFromString(rec[1])
	if err != nil {
		return model.Candle{}, err
	}
	high, err := decimal.NewFromString(rec[2])
	if err != nil {
		return model.Candle{}, err
	}
	low, err := decimal.NewFromString(rec[3])
	if err != nil {
		return model.Candle{}, err
	}
	closeP, err := decimal.NewFromString(rec[4])
	if err != nil {
		return model.Candle{}, err
	}
	vol, err := decimal.NewFromString(rec[5])
	if err != nil {
		return model.Candle{}, err
	}
	return model.Candle{TSStart: ts, Open: open, High: high, Low: low, Close: closeP, Volume: vol}, nil
}

// OutputFilename builds the conventional output filename for a symbol and
// inclusive date range.
func OutputFilename(symbol string, start, end time.Time) string {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	return fmt.Sprintf("%s-%04d_%02d_%02d-%04d_%02d_%02d.csv", symbol, sy, sm, sd, ey, em, ed)
}
