// Package model holds the value types shared by every stage of the
// download-decode-aggregate-write pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSide selects which side of the quote an aggregation reads.
type PriceSide string

const (
	SideBid PriceSide = "BID"
	SideAsk PriceSide = "ASK"
	SideMid PriceSide = "MID"
)

// VolumeKind selects which volume an aggregation sums.
type VolumeKind string

const (
	VolumeTotal VolumeKind = "TOTAL"
	VolumeBid   VolumeKind = "BID"
	VolumeAsk   VolumeKind = "ASK"
	VolumeTicks VolumeKind = "TICKS"
)

// DataSource controls whether the pipeline fetches pre-aggregated candles
// or raw ticks.
type DataSource string

const (
	SourceAuto   DataSource = "auto"
	SourceTick   DataSource = "tick"
	SourceNative DataSource = "native"
)

// Tick is one recorded quote update. TS is always UTC with millisecond
// resolution. Immutable once constructed.
type Tick struct {
	TS     time.Time
	Ask    decimal.Decimal
	Bid    decimal.Decimal
	AskVol int64
	BidVol int64
}

// Price returns the value selected by side.
func (t Tick) Price(side PriceSide) decimal.Decimal {
	switch side {
	case SideBid:
		return t.Bid
	case SideAsk:
		return t.Ask
	case SideMid:
		return t.Ask.Add(t.Bid).Div(decimal.NewFromInt(2))
	default:
		return t.Ask
	}
}

// Volume returns the value selected by kind. TICKS is meaningless per-tick
// (it is a count, handled by the aggregator) and returns 0 here.
func (t Tick) Volume(kind VolumeKind) int64 {
	switch kind {
	case VolumeBid:
		return t.BidVol
	case VolumeAsk:
		return t.AskVol
	case VolumeTotal:
		return t.AskVol + t.BidVol
	default:
		return 0
	}
}

// Candle is a derived OHLCV aggregate over one bucket.
type Candle struct {
	TSStart time.Time
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
	// Empty marks a zero-filled gap candle inserted to preserve strict
	// arithmetic time progression; it carries no real trades.
	Empty bool
}

// Period is a fixed aggregation width in seconds. Zero means tick
// pass-through mode.
type Period int64

// Seconds returns the period width.
func (p Period) Seconds() int64 { return int64(p) }

// IsTick reports whether this period means "no aggregation".
func (p Period) IsTick() bool { return p == 0 }

// NativeCandleTimeframe is the subset of periods the archive pre-computes.
type NativeCandleTimeframe string

const (
	NativeMinute1 NativeCandleTimeframe = "minute-1"
	NativeHour1   NativeCandleTimeframe = "hour-1"
	NativeDay1    NativeCandleTimeframe = "day-1"
)

// NativeTimeframeForPeriod reports the native timeframe a period qualifies
// for, if any.
func NativeTimeframeForPeriod(p Period) (NativeCandleTimeframe, bool) {
	switch p.Seconds() {
	case 60:
		return NativeMinute1, true
	case 3600:
		return NativeHour1, true
	case 86400:
		return NativeDay1, true
	default:
		return "", false
	}
}
