// Package aggregate buckets ticks into fixed-period OHLCV candles and
// merges candle fragments that straddle a day boundary.
package aggregate

import (
	"github.com/shopspring/decimal"

	"fxhistorian/internal/model"
)

// Options configures one aggregation run.
type Options struct {
	Period     model.Period
	PriceSide  model.PriceSide
	VolumeKind model.VolumeKind
}

// Bucket buckets one day's ascending ticks into period-aligned candles. It
// fills zero-OHLC empty candles for any gap of more than one period so the
// output's timestamps progress in exact arithmetic steps. The cross-day
// Merger in merge.go folds same-timestamp fragments produced by calling
// Bucket once per day back together during the final output assembly.
func Bucket(ticks []model.Tick, opt Options) []model.Candle {
	if opt.Period.IsTick() {
		panic("aggregate: Bucket called with tick pass-through period")
	}
	if len(ticks) == 0 {
		return nil
	}

	period := opt.Period.Seconds()
	var candles []model.Candle
	var cur *model.Candle
	var curKey int64

	flush := func() {
		if cur != nil {
			candles = append(candles, *cur)
		}
	}

	for _, t := range ticks {
		key := bucketKey(t.TS.Unix(), period)
		price := t.Price(opt.PriceSide)

		if cur == nil {
			cur = newCandle(key, price)
			curKey = key
		} else if key != curKey {
			flush()
			fillGap(&candles, curKey, key, period)
			cur = newCandle(key, price)
			curKey = key
		}

		cur.High = maxDec(cur.High, price)
		cur.Low = minDec(cur.Low, price)
		cur.Close = price
		cur.Volume = cur.Volume.Add(tickVolume(t, opt.VolumeKind))
	}
	flush()

	return candles
}

func newCandle(bucketKey int64, openPrice decimal.Decimal) *model.Candle {
	return &model.Candle{
		TSStart: bucketStart(bucketKey),
		Open:    openPrice,
		High:    openPrice,
		Low:     openPrice,
		Close:   openPrice,
		Volume:  decimal.Zero,
	}
}

// fillGap appends zero-OHLC empty candles for every period strictly
// between fromKey (exclusive) and toKey (exclusive).
func fillGap(candles *[]model.Candle, fromKey, toKey, period int64) {
	if period <= 0 {
		return
	}
	n := int((toKey - fromKey) / period)
	for i := 1; i < n; i++ {
		key := fromKey + int64(i)*period
		*candles = append(*candles, model.Candle{
			TSStart: bucketStart(key),
			Open:    decimal.Zero,
			High:    decimal.Zero,
			Low:     decimal.Zero,
			Close:   decimal.Zero,
			Volume:  decimal.Zero,
			Empty:   true,
		})
	}
}

func tickVolume(t model.Tick, kind model.VolumeKind) decimal.Decimal {
	if kind == model.VolumeTicks {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(t.Volume(kind)).Div(decimal.NewFromInt(1_000_000))
}

func maxDec(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func minDec(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
