// Package orchestrator drives the full symbol/day iteration: day
// generation, data-source selection, the bounded worker pool, the
// circuit breaker, cancellation, resume, and progress notification. It is
// the only package that wires every other component together; it depends
// on Observer, Holiday, and JobStateStore only as interfaces.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fxhistorian/internal/aggregate"
	"fxhistorian/internal/config"
	"fxhistorian/internal/daydriver"
	"fxhistorian/internal/fetch"
	"fxhistorian/internal/metrics"
	"fxhistorian/internal/model"
	"fxhistorian/internal/stream"
	"fxhistorian/internal/validator"
)

// Request describes one download job.
type Request struct {
	Symbols    []string
	Start      time.Time
	End        time.Time
	Period     model.Period
	DataSource model.DataSource
	PriceSide  model.PriceSide
	VolumeKind model.VolumeKind
	Threads    int
	Header     bool
	Resume     bool
	OutputDir  string
}

// Orchestrator owns the shared infrastructure (fetcher, breaker, resume
// store, holiday calendar, observer, metrics) and runs Request values
// against it.
type Orchestrator struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	fetcher  *fetch.Fetcher
	driver   *daydriver.Driver
	native   *daydriver.NativeFetcher
	breaker  *Breaker
	jobState JobStateStore
	holidays Holiday
	observer Observer

	cancelled atomic.Bool
}

func dayKey(symbol string, date time.Time) string {
	return symbol + "@" + date.Format("2006-01-02")
}

// New builds an Orchestrator. Any of jobState, holidays, observer may be
// nil, in which case the package's default implementations are used. The
// Driver and NativeFetcher are built once here and shared across every
// symbol and day, so their rate limiters and semaphores govern the whole
// run rather than resetting per day.
func New(logger *zap.Logger, m *metrics.Metrics, fetcher *fetch.Fetcher, dayCfg daydriver.Config, resetTimeout time.Duration, jobState JobStateStore, holidays Holiday, observer Observer) *Orchestrator {
	if jobState == nil {
		jobState = NewJSONFileJobStateStore(".")
	}
	if holidays == nil {
		holidays = DefaultHolidayCalendar{}
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Orchestrator{
		logger:   logger,
		metrics:  m,
		fetcher:  fetcher,
		driver:   daydriver.New(dayCfg, fetcher, logger),
		native:   daydriver.NewNativeFetcher(fetcher),
		breaker:  NewBreaker(resetTimeout, logger, m),
		jobState: jobState,
		holidays: holidays,
		observer: observer,
	}
}

// Cancel sets the shared cancellation flag. New work items no-op;
// in-flight work completes; each symbol's StreamWriter still performs its
// merge over whatever partials exist.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

// GenerateDays returns the inclusive [start,end] trading days, skipping
// Saturdays, today, and any date the holiday calendar flags.
func (o *Orchestrator) GenerateDays(start, end time.Time) []time.Time {
	today := time.Now().UTC()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday {
			continue
		}
		if d.Equal(today) {
			continue
		}
		if o.holidays.IsHoliday(d) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// symbolRun tracks one symbol's in-flight state across its day workers.
type symbolRun struct {
	symbol     string
	spill      *stream.SpillDir
	writer     *stream.Writer
	total      []time.Time
	completed  []time.Time
	ordinals   []int
	mu         sync.Mutex
	wg         sync.WaitGroup
	doneCount  int32
}

// Run executes req to completion (or cancellation). It returns a map from
// symbol to that symbol's fatal error; symbols that finished cleanly have
// no entry, and their output path is reported through Observer.OnFinish.
// Errors for individual symbols do not abort the others.
func (o *Orchestrator) Run(ctx context.Context, req Request) map[string]error {
	source, err := resolveSource(req)
	errs := make(map[string]error)
	if err != nil {
		for _, s := range req.Symbols {
			errs[s] = err
		}
		return errs
	}

	threads := req.Threads
	if threads < 1 {
		threads = 5
	}
	pool := NewSupervisor(threads, o.logger)

	var outerWG sync.WaitGroup
	errsMu := sync.Mutex{}

	for _, symbol := range req.Symbols {
		run, pending, err := o.prepareSymbol(symbol, req)
		if err != nil {
			errsMu.Lock()
			errs[symbol] = err
			errsMu.Unlock()
			o.observer.OnError(symbol, err)
			continue
		}

		o.observer.OnStart(symbol, len(run.total))
		run.wg.Add(len(pending))

		if o.metrics != nil {
			o.metrics.ActiveSymbols.Inc()
		}

		outerWG.Add(1)
		go func(symbol string, run *symbolRun) {
			defer outerWG.Done()
			if o.metrics != nil {
				defer o.metrics.ActiveSymbols.Dec()
			}
			run.wg.Wait()
			path, finErr := o.finalizeSymbol(req, symbol, run)
			if finErr != nil {
				errsMu.Lock()
				errs[symbol] = finErr
				errsMu.Unlock()
				o.observer.OnError(symbol, finErr)
				return
			}
			o.observer.OnFinish(symbol, path)
		}(symbol, run)

		for _, date := range pending {
			if o.cancelled.Load() {
				run.wg.Done()
				continue
			}

			date := date
			pool.Submit(ctx, dayKey(symbol, date), func(ctx context.Context) error {
				defer run.wg.Done()
				o.processDay(ctx, req, symbol, run, date)
				return nil
			})
		}
	}

	pool.Wait()
	outerWG.Wait()
	return errs
}

func resolveSource(req Request) (model.DataSource, error) {
	return config.ResolveDataSource(req.DataSource, req.Period)
}

func (o *Orchestrator) prepareSymbol(symbol string, req Request) (*symbolRun, []time.Time, error) {
	total := o.GenerateDays(req.Start, req.End)

	pending := total
	if req.Resume {
		completed, err := o.jobState.Load(symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: load resume state for %s: %w", symbol, err)
		}
		pending = nil
		for _, d := range total {
			if !completed[d.Format("2006-01-02")] {
				pending = append(pending, d)
			}
		}
	}

	spill, err := stream.NewSpillDir(req.OutputDir, symbol)
	if err != nil {
		return nil, nil, err
	}

	isCandle := !req.Period.IsTick()
	writer := stream.NewWriter(spill, symbol, isCandle, req.VolumeKind, req.Header, o.metrics)

	run := &symbolRun{symbol: symbol, spill: spill, writer: writer, total: total}
	return run, pending, nil
}

func (o *Orchestrator) processDay(ctx context.Context, req Request, symbol string, run *symbolRun, date time.Time) {
	if o.cancelled.Load() {
		return
	}

	source, _ := resolveSource(req)
	ordinal := stream.DayOrdinal(date)

	var writeErr error
	if source == model.SourceNative {
		writeErr = o.processNativeDay(ctx, req, symbol, run, date, ordinal)
	} else {
		writeErr = o.processTickDay(ctx, req, symbol, run, date, ordinal)
	}

	run.mu.Lock()
	if writeErr == nil {
		run.completed = append(run.completed, date)
		run.ordinals = append(run.ordinals, ordinal)
	}
	count := atomic.AddInt32(&run.doneCount, 1)
	completedSnapshot := append([]time.Time(nil), run.completed...)
	run.mu.Unlock()

	o.observer.OnUpdate(symbol, int(count), len(run.total), writeErr == nil)

	if o.metrics != nil {
		result := "ok"
		if writeErr != nil {
			result = "failed"
		}
		o.metrics.DaysCompleted.WithLabelValues(symbol, result).Inc()
	}

	if writeErr != nil {
		o.logger.Debug("day failed, will retry on next resume",
			zap.String("symbol", symbol), zap.Time("date", date), zap.Error(writeErr))
		return
	}

	if req.Resume && count%5 == 0 {
		if err := o.jobState.Save(symbol, completedSnapshot, run.total); err != nil {
			o.logger.Warn("failed to persist resume state", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (o *Orchestrator) processTickDay(ctx context.Context, req Request, symbol string, run *symbolRun, date time.Time, ordinal int) error {
	var ticks []model.Tick
	_, err := o.breaker.Guard(ctx, func(ctx context.Context) (fetch.Outcome, error) {
		var ferr error
		ticks, ferr = o.driver.FetchDay(ctx, symbol, date)
		if ferr != nil {
			return fetch.Outcome{}, ferr
		}
		return fetch.Outcome{Kind: fetch.OutcomeOK}, nil
	})
	if err != nil {
		return err
	}

	if req.Period.IsTick() {
		if len(ticks) == 0 {
			return nil
		}
		return run.writer.SpillTicks(ordinal, ticks)
	}

	opt := aggregate.Options{Period: req.Period, PriceSide: req.PriceSide, VolumeKind: req.VolumeKind}
	candles := aggregate.Bucket(ticks, opt)
	if len(candles) == 0 {
		return nil
	}
	return run.writer.SpillCandles(ordinal, candles)
}

func (o *Orchestrator) processNativeDay(ctx context.Context, req Request, symbol string, run *symbolRun, date time.Time, ordinal int) error {
	tf, _ := model.NativeTimeframeForPeriod(req.Period)

	var candles []model.Candle
	_, err := o.breaker.Guard(ctx, func(ctx context.Context) (fetch.Outcome, error) {
		var ferr error
		candles, ferr = o.native.FetchDay(ctx, symbol, date, tf, req.PriceSide)
		if ferr != nil {
			return fetch.Outcome{}, ferr
		}
		return fetch.Outcome{Kind: fetch.OutcomeOK}, nil
	})
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	return run.writer.SpillCandles(ordinal, candles)
}

func (o *Orchestrator) finalizeSymbol(req Request, symbol string, run *symbolRun) (string, error) {
	defer run.spill.Close()

	outputPath := filepath.Join(req.OutputDir, stream.OutputFilename(symbol, req.Start, req.End))

	run.mu.Lock()
	ordinals := append([]int(nil), run.ordinals...)
	completed := append([]time.Time(nil), run.completed...)
	run.mu.Unlock()

	if err := run.writer.Merge(outputPath, ordinals); err != nil {
		return "", err
	}

	if req.Resume {
		if len(completed) == len(run.total) {
			if err := o.jobState.Clear(symbol); err != nil {
				o.logger.Warn("failed to clear resume state", zap.String("symbol", symbol), zap.Error(err))
			}
		} else if err := o.jobState.Save(symbol, completed, run.total); err != nil {
			o.logger.Warn("failed to persist final resume state", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	result, err := validator.ValidateFile(outputPath, req.Header, !req.Period.IsTick())
	if err != nil {
		o.logger.Warn("validation pass failed", zap.String("symbol", symbol), zap.Error(err))
	} else {
		o.logger.Info("validation report", zap.String("symbol", symbol), zap.String("report", result.Report()))
		if o.metrics != nil {
			o.metrics.ValidationIssues.WithLabelValues(symbol, "out_of_order").Add(float64(result.OutOfOrder))
			o.metrics.ValidationIssues.WithLabelValues(symbol, "duplicates").Add(float64(result.Duplicates))
			o.metrics.ValidationIssues.WithLabelValues(symbol, "invalid_ohlc").Add(float64(result.InvalidOHLC))
			o.metrics.ValidationIssues.WithLabelValues(symbol, "non_positive").Add(float64(result.NonPositivePrices))
		}
	}

	return outputPath, nil
}
