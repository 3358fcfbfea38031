// Package daydriver fans a single trading day out into its 24 hourly blob
// fetches under a bounded concurrency and rate limit, and reassembles the
// decoded ticks in chronological order.
package daydriver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fxhistorian/internal/codec"
	"fxhistorian/internal/fetch"
	"fxhistorian/internal/model"
)

// Config tunes the per-day hourly fan-out.
type Config struct {
	Concurrency  int           // K: hours in flight at once, default 8
	RequestDelay time.Duration // inter-submission stagger, default 100ms
}

// DefaultConfig returns the archive's documented fan-out defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 8, RequestDelay: 100 * time.Millisecond}
}

// Driver drives one day's 24 hourly tick fetches.
type Driver struct {
	cfg     Config
	fetcher *fetch.Fetcher
	limiter *rate.Limiter
	sem     chan struct{}
	logger  *zap.Logger
}

// New builds a Driver sharing fetcher and a rate limiter tuned to the
// configured inter-request delay.
func New(cfg Config, fetcher *fetch.Fetcher, logger *zap.Logger) *Driver {
	if cfg.Concurrency == 0 {
		cfg = DefaultConfig()
	}
	every := cfg.RequestDelay
	if every <= 0 {
		every = time.Millisecond
	}
	return &Driver{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		sem:     make(chan struct{}, cfg.Concurrency),
		logger:  logger,
	}
}

type hourResult struct {
	hour  int
	ticks []model.Tick
	err   error
}

// FetchDay fetches all 24 hourly tick blobs for (symbol, date) and returns
// the decoded ticks in ascending ts order. A single hour's decode-fatal
// error is logged and contributes zero ticks; it never aborts the day.
func (d *Driver) FetchDay(ctx context.Context, symbol string, date time.Time) ([]model.Tick, error) {
	results := make([]hourResult, 24)
	var wg sync.WaitGroup

	for hour := 0; hour < 24; hour++ {
		if ctx.Err() != nil {
			break
		}
		if err := d.limiter.Wait(ctx); err != nil {
			break
		}

		d.sem <- struct{}{}
		wg.Add(1)
		go func(hour int) {
			defer wg.Done()
			defer func() { <-d.sem }()
			results[hour] = d.fetchHour(ctx, symbol, date, hour)
		}(hour)
	}
	wg.Wait()

	var all []model.Tick
	for _, r := range results {
		if r.err != nil {
			// PersistentThrottling is the one signal that must escape
			// the day rather than being swallowed: the orchestrator's
			// breaker needs it to trip.
			if errors.Is(r.err, fetch.ErrPersistentThrottling) {
				return nil, r.err
			}
			d.logger.Debug("hour decode failed, contributing zero ticks",
				zap.String("symbol", symbol), zap.Int("hour", r.hour), zap.Error(r.err))
			continue
		}
		all = append(all, r.ticks...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].TS.Before(all[j].TS) })
	return all, nil
}

func (d *Driver) fetchHour(ctx context.Context, symbol string, date time.Time, hour int) hourResult {
	url := fetch.TickURL(symbol, date, hour)
	outcome, err := d.fetcher.Get(ctx, symbol, url)
	if err != nil {
		return hourResult{hour: hour, err: err}
	}
	if outcome.Kind == fetch.OutcomeEmpty || len(outcome.Body) == 0 {
		return hourResult{hour: hour}
	}

	y, m, dd := date.Date()
	hourStart := time.Date(y, m, dd, hour, 0, 0, 0, time.UTC)
	ticks, err := codec.DecodeTicks(outcome.Body, symbol, hourStart)
	if err != nil {
		return hourResult{hour: hour, err: fmt.Errorf("decode hour %02d: %w", hour, err)}
	}
	return hourResult{hour: hour, ticks: ticks}
}
