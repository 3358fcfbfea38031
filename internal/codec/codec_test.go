package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"

	"fxhistorian/internal/model"
)

func compressLZMA(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func encodeCandleRecord(open, close_, low, high decimal.Decimal, volume float32, offsetS uint32, point int64) []byte {
	buf := make([]byte, candleRecordSize)
	binary.BigEndian.PutUint32(buf[0:4], offsetS)
	binary.BigEndian.PutUint32(buf[4:8], uint32(open.Mul(decimal.NewFromInt(point)).Round(0).IntPart()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(close_.Mul(decimal.NewFromInt(point)).Round(0).IntPart()))
	binary.BigEndian.PutUint32(buf[12:16], uint32(low.Mul(decimal.NewFromInt(point)).Round(0).IntPart()))
	binary.BigEndian.PutUint32(buf[16:20], uint32(high.Mul(decimal.NewFromInt(point)).Round(0).IntPart()))
	binary.BigEndian.PutUint32(buf[20:24], math.Float32bits(volume))
	return buf
}

func TestDecodeTicks_RoundTrip(t *testing.T) {
	hourStart := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	want := model.Tick{
		TS:     hourStart.Add(1500 * time.Millisecond),
		Ask:    decimal.RequireFromString("1.08451"),
		Bid:    decimal.RequireFromString("1.08443"),
		AskVol: 2_500_000,
		BidVol: 1_750_000,
	}

	raw := EncodeTick(want, "eurusd", hourStart)
	blob := compressLZMA(t, raw)

	got, err := DecodeTicks(blob, "eurusd", hourStart)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, got[0].TS.Equal(want.TS))
	assert.True(t, got[0].Ask.Equal(want.Ask))
	assert.True(t, got[0].Bid.Equal(want.Bid))
	assert.Equal(t, want.AskVol, got[0].AskVol)
	assert.Equal(t, want.BidVol, got[0].BidVol)
}

func TestDecodeTicks_EmptyBlob(t *testing.T) {
	got, err := DecodeTicks(nil, "eurusd", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeTicks_MultiStream(t *testing.T) {
	hourStart := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 := model.Tick{TS: hourStart, Ask: decimal.RequireFromString("1.1"), Bid: decimal.RequireFromString("1.0999"), AskVol: 1_000_000, BidVol: 1_000_000}
	t2 := model.Tick{TS: hourStart.Add(time.Second), Ask: decimal.RequireFromString("1.1001"), Bid: decimal.RequireFromString("1.1000"), AskVol: 2_000_000, BidVol: 2_000_000}

	stream1 := compressLZMA(t, EncodeTick(t1, "eurusd", hourStart))
	stream2 := compressLZMA(t, EncodeTick(t2, "eurusd", hourStart))

	blob := append(append([]byte{}, stream1...), stream2...)
	got, err := DecodeTicks(blob, "eurusd", hourStart)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].TS.Equal(t1.TS))
	assert.True(t, got[1].TS.Equal(t2.TS))
}

func TestDecodeTicks_FatalFirstStream(t *testing.T) {
	_, err := DecodeTicks([]byte{0xff, 0xff, 0xff, 0xff}, "eurusd", time.Now())
	require.Error(t, err)
}

func TestDecodeNativeCandles_RoundTrip(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	point := model.PointValue("eurusd")

	open := decimal.RequireFromString("1.08000")
	close_ := decimal.RequireFromString("1.08050")
	low := decimal.RequireFromString("1.07950")
	high := decimal.RequireFromString("1.08100")

	raw := encodeCandleRecord(open, close_, low, high, 12.5, 300, point)
	blob := compressLZMA(t, raw)

	got, err := DecodeNativeCandles(blob, "eurusd", base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Open.Equal(open))
	assert.True(t, got[0].High.Equal(high))
	assert.True(t, got[0].Low.Equal(low))
	assert.True(t, got[0].Close.Equal(close_))
	assert.True(t, got[0].TSStart.Equal(base.Add(300*time.Second)))
}

func TestNativeCandleBase(t *testing.T) {
	date := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, NativeCandleBase(model.NativeMinute1, date).Equal(time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, NativeCandleBase(model.NativeHour1, date).Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, NativeCandleBase(model.NativeDay1, date).Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}
