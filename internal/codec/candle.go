package codec

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fxhistorian/internal/model"
)

// candleRecordSize is the on-wire size of one pre-computed candle record.
const candleRecordSize = 24

// DecodeNativeCandles decompresses and parses a pre-computed candle blob.
// base is the timeframe-dependent origin instant: (Y,M,D,00:00) for
// minute candles, (Y,M,01,00:00) for hour candles, (Y,01,01,00:00) for day
// candles. time_offset_s in each record is relative to base.
func DecodeNativeCandles(blob []byte, symbol string, base time.Time) ([]model.Candle, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	raw, err := decompressAllStreams(blob)
	if err != nil {
		return nil, err
	}

	point := model.PointValue(symbol)
	usable := len(raw) - (len(raw) % candleRecordSize)
	n := usable / candleRecordSize
	candles := make([]model.Candle, 0, n)

	for i := 0; i < usable; i += candleRecordSize {
		rec := raw[i : i+candleRecordSize]
		offsetS := binary.BigEndian.Uint32(rec[0:4])
		openRaw := binary.BigEndian.Uint32(rec[4:8])
		closeRaw := binary.BigEndian.Uint32(rec[8:12])
		lowRaw := binary.BigEndian.Uint32(rec[12:16])
		highRaw := binary.BigEndian.Uint32(rec[16:20])
		volBits := binary.BigEndian.Uint32(rec[20:24])
		vol := math.Float32frombits(volBits)

		candles = append(candles, model.Candle{
			TSStart: base.Add(time.Duration(offsetS) * time.Second),
			Open:    rawPriceToDecimal(openRaw, point),
			Close:   rawPriceToDecimal(closeRaw, point),
			Low:     rawPriceToDecimal(lowRaw, point),
			High:    rawPriceToDecimal(highRaw, point),
			Volume:  decimal.NewFromFloat(float64(vol)).Round(2),
		})
	}

	return candles, nil
}

// NativeCandleBase computes the origin instant for a native timeframe on a
// given UTC calendar date.
func NativeCandleBase(tf model.NativeCandleTimeframe, date time.Time) time.Time {
	y, m, d := date.Date()
	switch tf {
	case model.NativeMinute1:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case model.NativeHour1:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case model.NativeDay1:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}
