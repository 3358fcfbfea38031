package fetch

import (
	"fmt"
	"time"

	"fxhistorian/internal/model"
)

// archiveBase is a var rather than a const so tests can redirect it at a
// local server; production code never reassigns it.
var archiveBase = "https://www.dukascopy.com/datafeed"

// SetArchiveBaseForTest points URL construction at base and returns a
// restore func. Exported for use by other packages' tests that need a
// Driver or NativeFetcher to hit a local httptest.Server.
func SetArchiveBaseForTest(base string) (restore func()) {
	prev := archiveBase
	archiveBase = base
	return func() { archiveBase = prev }
}

// TickURL builds the URL of one hour's tick blob. Month is 0-indexed in the
// archive's own convention (January is "00").
func TickURL(symbol string, date time.Time, hour int) string {
	y, m, d := date.Date()
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%02dh_ticks.bi5",
		archiveBase, symbol, y, int(m)-1, d, hour)
}

// MinuteCandleURL builds the URL of one day's pre-computed 1-minute candle
// blob for the given price side.
func MinuteCandleURL(symbol string, date time.Time, side model.PriceSide) string {
	y, m, d := date.Date()
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%s_candles_min_1.bi5",
		archiveBase, symbol, y, int(m)-1, d, side)
}

// HourCandleURL builds the URL of one month's pre-computed 1-hour candle
// blob for the given price side.
func HourCandleURL(symbol string, date time.Time, side model.PriceSide) string {
	y, m, _ := date.Date()
	return fmt.Sprintf("%s/%s/%04d/%02d/%s_candles_hour_1.bi5",
		archiveBase, symbol, y, int(m)-1, side)
}

// DayCandleURL builds the URL of one year's pre-computed 1-day candle blob
// for the given price side.
func DayCandleURL(symbol string, date time.Time, side model.PriceSide) string {
	y, _, _ := date.Date()
	return fmt.Sprintf("%s/%s/%04d/%s_candles_day_1.bi5",
		archiveBase, symbol, y, side)
}
