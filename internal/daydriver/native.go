package daydriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fxhistorian/internal/codec"
	"fxhistorian/internal/fetch"
	"fxhistorian/internal/model"
)

// NativeFetcher fetches pre-computed archive candles directly, bypassing
// tick decode and aggregation. Unlike ticks, the archive batches native
// candles at coarser granularity than one-per-day: minute candles are one
// blob per day, hour candles one blob per month, day candles one blob per
// year. A small cache avoids re-fetching the same month/year blob once per
// calendar day the orchestrator happens to visit.
type NativeFetcher struct {
	fetcher *fetch.Fetcher

	mu    sync.Mutex
	cache map[string][]model.Candle
}

// NewNativeFetcher builds a NativeFetcher sharing the given Fetcher.
func NewNativeFetcher(fetcher *fetch.Fetcher) *NativeFetcher {
	return &NativeFetcher{fetcher: fetcher, cache: make(map[string][]model.Candle)}
}

// FetchDay returns the native candles whose TSStart falls within [date,
// date+24h) for the given timeframe and price side.
func (n *NativeFetcher) FetchDay(ctx context.Context, symbol string, date time.Time, tf model.NativeCandleTimeframe, side model.PriceSide) ([]model.Candle, error) {
	all, err := n.fetchBlobCached(ctx, symbol, date, tf, side)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	out := make([]model.Candle, 0)
	for _, c := range all {
		if !c.TSStart.Before(dayStart) && c.TSStart.Before(dayEnd) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (n *NativeFetcher) fetchBlobCached(ctx context.Context, symbol string, date time.Time, tf model.NativeCandleTimeframe, side model.PriceSide) ([]model.Candle, error) {
	key := cacheKey(symbol, date, tf, side)

	n.mu.Lock()
	if cached, ok := n.cache[key]; ok {
		n.mu.Unlock()
		return cached, nil
	}
	n.mu.Unlock()

	url, err := nativeURL(symbol, date, tf, side)
	if err != nil {
		return nil, err
	}

	outcome, err := n.fetcher.Get(ctx, symbol, url)
	if err != nil {
		return nil, err
	}

	var candles []model.Candle
	if outcome.Kind == fetch.OutcomeOK && len(outcome.Body) > 0 {
		base := codec.NativeCandleBase(tf, date)
		candles, err = codec.DecodeNativeCandles(outcome.Body, symbol, base)
		if err != nil {
			return nil, err
		}
	}

	n.mu.Lock()
	n.cache[key] = candles
	n.mu.Unlock()
	return candles, nil
}

func cacheKey(symbol string, date time.Time, tf model.NativeCandleTimeframe, side model.PriceSide) string {
	y, m, d := date.Date()
	switch tf {
	case model.NativeMinute1:
		return fmt.Sprintf("%s|%s|%s|%04d-%02d-%02d", symbol, tf, side, y, m, d)
	case model.NativeHour1:
		return fmt.Sprintf("%s|%s|%s|%04d-%02d", symbol, tf, side, y, m)
	case model.NativeDay1:
		return fmt.Sprintf("%s|%s|%s|%04d", symbol, tf, side, y)
	default:
		return fmt.Sprintf("%s|%s|%s|%04d-%02d-%02d", symbol, tf, side, y, m, d)
	}
}

func nativeURL(symbol string, date time.Time, tf model.NativeCandleTimeframe, side model.PriceSide) (string, error) {
	switch tf {
	case model.NativeMinute1:
		return fetch.MinuteCandleURL(symbol, date, side), nil
	case model.NativeHour1:
		return fetch.HourCandleURL(symbol, date, side), nil
	case model.NativeDay1:
		return fetch.DayCandleURL(symbol, date, side), nil
	default:
		return "", fmt.Errorf("daydriver: unsupported native timeframe %q", tf)
	}
}
