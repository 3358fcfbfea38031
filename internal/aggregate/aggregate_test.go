package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxhistorian/internal/model"
)

func tick(ts time.Time, ask, bid string, askVol, bidVol int64) model.Tick {
	return model.Tick{
		TS:     ts,
		Ask:    decimal.RequireFromString(ask),
		Bid:    decimal.RequireFromString(bid),
		AskVol: askVol,
		BidVol: bidVol,
	}
}

func TestBucket_SingleBucket(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ticks := []model.Tick{
		tick(base, "1.10", "1.0998", 1_000_000, 1_000_000),
		tick(base.Add(10*time.Second), "1.105", "1.1048", 1_000_000, 1_000_000),
		tick(base.Add(20*time.Second), "1.095", "1.0948", 1_000_000, 1_000_000),
		tick(base.Add(30*time.Second), "1.102", "1.1018", 1_000_000, 1_000_000),
	}

	out := Bucket(ticks, Options{Period: model.Period(60), PriceSide: model.SideAsk, VolumeKind: model.VolumeTotal})
	require.Len(t, out, 1)
	c := out[0]
	assert.True(t, c.Open.Equal(decimal.RequireFromString("1.10")))
	assert.True(t, c.Close.Equal(decimal.RequireFromString("1.102")))
	assert.True(t, c.High.Equal(decimal.RequireFromString("1.105")))
	assert.True(t, c.Low.Equal(decimal.RequireFromString("1.095")))
	assert.False(t, c.Empty)
}

func TestBucket_FillsGapWithEmptyCandles(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ticks := []model.Tick{
		tick(base, "1.10", "1.0998", 1, 1),
		tick(base.Add(3*time.Minute+5*time.Second), "1.12", "1.1198", 1, 1),
	}

	out := Bucket(ticks, Options{Period: model.Period(60), PriceSide: model.SideAsk, VolumeKind: model.VolumeTotal})
	require.Len(t, out, 4)
	assert.False(t, out[0].Empty)
	assert.True(t, out[1].Empty)
	assert.True(t, out[2].Empty)
	assert.False(t, out[3].Empty)

	assert.True(t, out[1].TSStart.Equal(base.Add(time.Minute)))
	assert.True(t, out[2].TSStart.Equal(base.Add(2*time.Minute)))
	assert.True(t, out[1].Open.IsZero())
}

func TestBucket_EmptyTicksReturnsNil(t *testing.T) {
	out := Bucket(nil, Options{Period: model.Period(60)})
	assert.Nil(t, out)
}

func TestBucket_PanicsOnTickPassthroughPeriod(t *testing.T) {
	assert.Panics(t, func() {
		Bucket([]model.Tick{tick(time.Now(), "1", "1", 1, 1)}, Options{Period: model.Period(0)})
	})
}

func TestBucket_VolumeTicksCountsOnePerTick(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ticks := []model.Tick{
		tick(base, "1.1", "1.0998", 5_000_000, 5_000_000),
		tick(base.Add(time.Second), "1.1", "1.0998", 5_000_000, 5_000_000),
		tick(base.Add(2*time.Second), "1.1", "1.0998", 5_000_000, 5_000_000),
	}
	out := Bucket(ticks, Options{Period: model.Period(60), PriceSide: model.SideAsk, VolumeKind: model.VolumeTicks})
	require.Len(t, out, 1)
	assert.True(t, out[0].Volume.Equal(decimal.NewFromInt(3)))
}

func TestBucket_BucketKeyIsTimezoneIndependent(t *testing.T) {
	loc := time.FixedZone("TEST", -7*3600)
	base := time.Date(2024, 3, 1, 9, 0, 30, 0, time.UTC)
	inLoc := base.In(loc)

	ticksUTC := []model.Tick{tick(base, "1.1", "1.0998", 1, 1)}
	ticksLoc := []model.Tick{tick(inLoc, "1.1", "1.0998", 1, 1)}

	outUTC := Bucket(ticksUTC, Options{Period: model.Period(60), PriceSide: model.SideAsk, VolumeKind: model.VolumeTotal})
	outLoc := Bucket(ticksLoc, Options{Period: model.Period(60), PriceSide: model.SideAsk, VolumeKind: model.VolumeTotal})

	require.Len(t, outUTC, 1)
	require.Len(t, outLoc, 1)
	assert.True(t, outUTC[0].TSStart.Equal(outLoc[0].TSStart))
}

func TestMerger_FoldsSameTimestampFragments(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMerger()

	frag1 := model.Candle{TSStart: ts, Open: decimal.RequireFromString("1.1"), High: decimal.RequireFromString("1.12"), Low: decimal.RequireFromString("1.09"), Close: decimal.RequireFromString("1.11"), Volume: decimal.NewFromInt(2)}
	frag2 := model.Candle{TSStart: ts, Open: decimal.RequireFromString("1.11"), High: decimal.RequireFromString("1.15"), Low: decimal.RequireFromString("1.08"), Close: decimal.RequireFromString("1.13"), Volume: decimal.NewFromInt(3)}
	next := model.Candle{TSStart: ts.Add(time.Minute), Open: decimal.RequireFromString("1.13"), High: decimal.RequireFromString("1.13"), Low: decimal.RequireFromString("1.13"), Close: decimal.RequireFromString("1.13"), Volume: decimal.NewFromInt(1)}

	_, ok := m.Feed(frag1)
	assert.False(t, ok)
	_, ok = m.Feed(frag2)
	assert.False(t, ok)

	merged, ok := m.Feed(next)
	require.True(t, ok)
	assert.True(t, merged.Open.Equal(decimal.RequireFromString("1.1")))
	assert.True(t, merged.Close.Equal(decimal.RequireFromString("1.13")))
	assert.True(t, merged.High.Equal(decimal.RequireFromString("1.15")))
	assert.True(t, merged.Low.Equal(decimal.RequireFromString("1.08")))
	assert.True(t, merged.Volume.Equal(decimal.NewFromInt(5)))

	final, ok := m.Flush()
	require.True(t, ok)
	assert.True(t, final.TSStart.Equal(ts.Add(time.Minute)))
}

func TestMergeAll_SingletonsPassThroughUnchanged(t *testing.T) {
	ts1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Minute)
	candles := []model.Candle{
		{TSStart: ts1, Open: decimal.RequireFromString("1.1"), Close: decimal.RequireFromString("1.1")},
		{TSStart: ts2, Open: decimal.RequireFromString("1.2"), Close: decimal.RequireFromString("1.2")},
	}
	out := MergeAll(candles)
	require.Len(t, out, 2)
	assert.True(t, out[0].TSStart.Equal(ts1))
	assert.True(t, out[1].TSStart.Equal(ts2))
}

func TestMergeAll_EmptyInput(t *testing.T) {
	assert.Empty(t, MergeAll(nil))
}
