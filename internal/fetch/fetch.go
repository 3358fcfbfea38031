// Package fetch implements the single HTTP GET-with-retry operation the
// rest of the pipeline drives: one call per hourly or per-period archive
// blob, with the archive's idiosyncratic throttling absorbed internally.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"fxhistorian/internal/metrics"
)

// ErrPersistentThrottling is the distinguished signal raised when an
// archive blob could not be retrieved after max_attempts tries dominated
// by 503 responses. The orchestrator trips its circuit breaker on it.
var ErrPersistentThrottling = errors.New("fetch: persistent throttling detected")

// OutcomeKind classifies the terminal result of one Get call.
type OutcomeKind int

const (
	// OutcomeOK carries a non-empty successful body.
	OutcomeOK OutcomeKind = iota
	// OutcomeEmpty means the resource does not exist (404) or retries
	// were exhausted on a non-throttling error; the caller treats this
	// as zero contributed records, never as a hard failure.
	OutcomeEmpty
)

// Outcome is the typed result of Get: either bytes, or an empty result,
// with PersistentThrottling and context cancellation signaled as errors
// instead since they require caller action beyond "contributed nothing".
type Outcome struct {
	Kind OutcomeKind
	Body []byte
}

// Config tunes the retry/backoff state machine. New replaces a Config whose
// MaxAttempts is zero with DefaultConfig() as a whole; when MaxAttempts is
// set, every other field is used as given and zero values are not filled in.
type Config struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	RequestTimeout   time.Duration
	ConnectTimeout   time.Duration
	PerHostMaxConns  int
	UserAgent        string
	Referer          string
}

// DefaultConfig returns the retry parameters named in the archive's
// tolerance notes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		RequestTimeout:  60 * time.Second,
		ConnectTimeout:  10 * time.Second,
		PerHostMaxConns: 8,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Referer:         "https://www.dukascopy.com/swiss/english/marketwatch/historical/",
	}
}

// Fetcher issues retried GETs against the archive.
type Fetcher struct {
	cfg     Config
	client  *resty.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds a Fetcher. cfg.PerHostMaxConns governs the shared transport's
// connection cap and should equal the DayDriver's inner concurrency K, so
// one symbol's hourly fan-out cannot starve another symbol's connections.
// m may be nil, in which case Get records no metrics.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	if cfg.MaxAttempts == 0 {
		cfg = DefaultConfig()
	}

	transport := &http.Transport{
		MaxConnsPerHost:     cfg.PerHostMaxConns,
		MaxIdleConnsPerHost: cfg.PerHostMaxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	client := resty.New().
		SetTransport(transport).
		SetTimeout(cfg.RequestTimeout + jitter(5*time.Second)).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Referer", cfg.Referer).
		SetHeader("Accept-Encoding", "gzip, deflate, br")

	return &Fetcher{cfg: cfg, client: client, logger: logger, metrics: m}
}

// Get performs the retried GET. It returns OutcomeOK/OutcomeEmpty for every
// case the caller should simply continue past, ErrPersistentThrottling
// when the breaker should trip, or the context's own error on
// cancellation. symbol labels the recorded fetch metrics; it has no
// bearing on the request itself.
func (f *Fetcher) Get(ctx context.Context, symbol, url string) (Outcome, error) {
	start := time.Now()
	throttleStreak := 0
	attempts := 0

	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		attempts++
		if err := ctx.Err(); err != nil {
			f.record(symbol, "cancelled", start)
			return Outcome{}, err
		}

		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				f.record(symbol, "cancelled", start)
				return Outcome{}, ctx.Err()
			}
			if isTransient(err) {
				if !f.sleep(ctx, transientDelay(attempt, f.cfg)) {
					f.record(symbol, "cancelled", start)
					return Outcome{}, ctx.Err()
				}
				continue
			}
			// Unrecognized transport error: treat like any other
			// non-2xx with linear backoff.
			if !f.sleep(ctx, linearDelay(attempt, f.cfg)) {
				f.record(symbol, "cancelled", start)
				return Outcome{}, ctx.Err()
			}
			continue
		}

		switch status := resp.StatusCode(); {
		case status == http.StatusOK:
			f.record(symbol, "ok", start)
			return Outcome{Kind: OutcomeOK, Body: resp.Body()}, nil
		case status == http.StatusNotFound:
			f.record(symbol, "empty", start)
			return Outcome{Kind: OutcomeEmpty}, nil
		case status == 500 || status == 502 || status == 503 || status == 504:
			if status == http.StatusServiceUnavailable {
				throttleStreak++
			}
			if !f.sleep(ctx, transientDelay(attempt, f.cfg)) {
				f.record(symbol, "cancelled", start)
				return Outcome{}, ctx.Err()
			}
		default:
			if !f.sleep(ctx, linearDelay(attempt, f.cfg)) {
				f.record(symbol, "cancelled", start)
				return Outcome{}, ctx.Err()
			}
		}
	}

	if throttleStreak > 0 && throttleStreak*2 >= attempts {
		f.logger.Warn("persistent throttling detected", zap.String("url", url), zap.Int("attempts", attempts))
		f.record(symbol, "persistent_throttling", start)
		return Outcome{}, fmt.Errorf("%w: %s after %d attempts", ErrPersistentThrottling, url, attempts)
	}

	f.logger.Debug("retries exhausted, skipping resource", zap.String("url", url), zap.Int("attempts", attempts))
	f.record(symbol, "empty", start)
	return Outcome{Kind: OutcomeEmpty}, nil
}

// record updates the fetch outcome counter and latency histogram, if
// metrics were supplied to New.
func (f *Fetcher) record(symbol, outcome string, start time.Time) {
	if f.metrics == nil {
		return
	}
	f.metrics.FetchOutcomes.WithLabelValues(outcome).Inc()
	f.metrics.FetchLatency.WithLabelValues(symbol).Observe(time.Since(start).Seconds())
}

// sleep waits for d or returns false if ctx is done first.
func (f *Fetcher) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func isTransient(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// transientDelay implements the exponential branch for 503-class
// responses: min(base*2^attempt + U(0.5,2.0), max). backoff/v4 supplies
// the exponential growth curve; the per-status branching itself is not
// something its generic Retry() driver can express, so the dispatch stays
// explicit here.
func transientDelay(attempt int, cfg Config) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = cfg.MaxDelay
	for i := 0; i < attempt; i++ {
		eb.NextBackOff()
	}
	d := eb.NextBackOff()
	if d == backoff.Stop {
		d = cfg.MaxDelay
	}
	d += jitter(1500*time.Millisecond) + 500*time.Millisecond
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

// linearDelay implements the shorter linear branch for other non-2xx
// statuses: base*(attempt+1) + U(0,1).
func linearDelay(attempt int, cfg Config) time.Duration {
	d := cfg.BaseDelay*time.Duration(attempt+1) + jitter(time.Second)
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

func jitter(max time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(max) + 1))
}
