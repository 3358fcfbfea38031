package codec

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fxhistorian/internal/model"
)

// tickRecordSize is the on-wire size of one tick record: time_ms, ask_raw,
// bid_raw u32 followed by ask_vol, bid_vol f32, all big-endian.
const tickRecordSize = 20

// DecodeTicks decompresses and parses one hour's tick blob. hourStart is the
// UTC instant at the beginning of the archive hour; time_ms in each record
// is an offset from it, never from the start of the day.
func DecodeTicks(blob []byte, symbol string, hourStart time.Time) ([]model.Tick, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	raw, err := decompressAllStreams(blob)
	if err != nil {
		return nil, err
	}

	point := model.PointValue(symbol)
	usable := len(raw) - (len(raw) % tickRecordSize)
	n := usable / tickRecordSize
	ticks := make([]model.Tick, 0, n)

	for i := 0; i < usable; i += tickRecordSize {
		rec := raw[i : i+tickRecordSize]
		timeMs := binary.BigEndian.Uint32(rec[0:4])
		askRaw := binary.BigEndian.Uint32(rec[4:8])
		bidRaw := binary.BigEndian.Uint32(rec[8:12])
		askVolBits := binary.BigEndian.Uint32(rec[12:16])
		bidVolBits := binary.BigEndian.Uint32(rec[16:20])
		askVol := math.Float32frombits(askVolBits)
		bidVol := math.Float32frombits(bidVolBits)

		ticks = append(ticks, model.Tick{
			TS:     hourStart.Add(time.Duration(timeMs) * time.Millisecond),
			Ask:    rawPriceToDecimal(askRaw, point),
			Bid:    rawPriceToDecimal(bidRaw, point),
			AskVol: volumeUnits(askVol),
			BidVol: volumeUnits(bidVol),
		})
	}

	return ticks, nil
}

// rawPriceToDecimal converts a packed integer price to a decimal price by
// dividing by the symbol's point value.
func rawPriceToDecimal(raw uint32, point int64) decimal.Decimal {
	return decimal.NewFromInt(int64(raw)).Div(decimal.NewFromInt(point))
}

// volumeUnits multiplies a raw float32 volume by 1,000,000 and rounds to
// the nearest integer unit, per the wire-format's volume convention.
func volumeUnits(v float32) int64 {
	return int64(math.Round(float64(v) * 1_000_000))
}

// EncodeTick re-packs a Tick into its 20-byte wire record relative to
// hourStart, inverse of DecodeTicks for one record. Used by round-trip
// tests and by any future re-archival path.
func EncodeTick(t model.Tick, symbol string, hourStart time.Time) []byte {
	point := model.PointValue(symbol)
	buf := make([]byte, tickRecordSize)

	offsetMs := uint32(t.TS.Sub(hourStart) / time.Millisecond)
	askRaw := uint32(t.Ask.Mul(decimal.NewFromInt(point)).Round(0).IntPart())
	bidRaw := uint32(t.Bid.Mul(decimal.NewFromInt(point)).Round(0).IntPart())
	askVol := float32(t.AskVol) / 1_000_000
	bidVol := float32(t.BidVol) / 1_000_000

	binary.BigEndian.PutUint32(buf[0:4], offsetMs)
	binary.BigEndian.PutUint32(buf[4:8], askRaw)
	binary.BigEndian.PutUint32(buf[8:12], bidRaw)
	binary.BigEndian.PutUint32(buf[12:16], math.Float32bits(askVol))
	binary.BigEndian.PutUint32(buf[16:20], math.Float32bits(bidVol))
	return buf
}
