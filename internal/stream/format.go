package stream

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fxhistorian/internal/model"
)

const timeLayout = "02.01.2006 15:04:05"

// formatTickTime renders a tick timestamp as DD.MM.YYYY HH:MM:SS.mmm UTC.
// The millisecond suffix is always present for ticks, per the union of the
// source's divergent writer copies.
func formatTickTime(ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("%s.%03d", ts.Format(timeLayout), ts.Nanosecond()/1_000_000)
}

// formatCandleTime renders a candle timestamp as DD.MM.YYYY HH:MM:SS UTC,
// no sub-second fraction.
func formatCandleTime(ts time.Time) string {
	return ts.UTC().Format(timeLayout)
}

func formatPrice(p decimal.Decimal) string {
	return p.StringFixed(5)
}

func formatVolumeUnits(v int64) string {
	return fmt.Sprintf("%d", v)
}

func formatVolumeDecimal(v decimal.Decimal, kind model.VolumeKind) string {
	if kind == model.VolumeTicks {
		return v.StringFixed(0)
	}
	return v.StringFixed(2)
}

// TickRow formats one tick as a CSV record.
func TickRow(t model.Tick) []string {
	return []string{
		formatTickTime(t.TS),
		formatPrice(t.Ask),
		formatPrice(t.Bid),
		formatVolumeUnits(t.AskVol),
		formatVolumeUnits(t.BidVol),
	}
}

// CandleRow formats one candle as a CSV record.
func CandleRow(c model.Candle, volKind model.VolumeKind) []string {
	return []string{
		formatCandleTime(c.TSStart),
		formatPrice(c.Open),
		formatPrice(c.High),
		formatPrice(c.Low),
		formatPrice(c.Close),
		formatVolumeDecimal(c.Volume, volKind),
	}
}

// TickHeader and CandleHeader are the two recognized output headers.
var (
	TickHeader   = []string{"time", "ask", "bid", "ask_volume", "bid_volume"}
	CandleHeader = []string{"time", "open", "high", "low", "close", "volume"}
)
