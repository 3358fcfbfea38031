package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fxhistorian/internal/config"
	"fxhistorian/internal/daydriver"
	"fxhistorian/internal/fetch"
	"fxhistorian/internal/metrics"
	"fxhistorian/internal/orchestrator"
	fxredis "fxhistorian/pkg/redis"
	"fxhistorian/pkg/redisobserver"
	"fxhistorian/pkg/wsbroadcaster"
)

// App wires every component together for one archive download run.
type App struct {
	config *config.Config
	logger *zap.Logger
	orch   *orchestrator.Orchestrator
	m      *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	fmt.Println("fxhistorian - Dukascopy tick/candle archive downloader")

	configPath := flag.String("config", "configs/config.yaml", "path to YAML config file")
	flag.Parse()

	app := &App{}
	if err := app.initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := app.run(); err != nil {
		app.logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func (app *App) initialize(configPath string) error {
	var err error
	app.ctx, app.cancel = context.WithCancel(context.Background())

	app.logger, err = setupLogger()
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	app.logger.Info("loading configuration", zap.String("path", configPath))
	app.config, err = config.NewLoader().LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if app.config.Metrics.Enabled {
		app.m = metrics.New(app.logger)
		if err := app.m.Start(app.config.Metrics.Port); err != nil {
			return fmt.Errorf("start metrics: %w", err)
		}
	}

	fetchCfg := fetch.DefaultConfig()
	if app.config.Fetch.MaxAttempts > 0 {
		fetchCfg.MaxAttempts = app.config.Fetch.MaxAttempts
	}
	if app.config.DayFan.Concurrency > 0 {
		fetchCfg.PerHostMaxConns = app.config.DayFan.Concurrency
	}
	if base, max, timeout, err := app.config.FetchDurations(); err == nil {
		fetchCfg.BaseDelay = base
		fetchCfg.MaxDelay = max
		fetchCfg.RequestTimeout = timeout
	}
	fetcher := fetch.New(fetchCfg, app.logger, app.m)

	dayCfg := daydriver.DefaultConfig()
	if app.config.DayFan.Concurrency > 0 {
		dayCfg.Concurrency = app.config.DayFan.Concurrency
	}
	if delay, err := app.config.DayFanDelay(); err == nil {
		dayCfg.RequestDelay = delay
	}

	resetTimeout, err := app.config.BreakerResetTimeout()
	if err != nil {
		resetTimeout = 60 * time.Second
	}

	observer, err := app.buildObserver()
	if err != nil {
		return fmt.Errorf("build observer: %w", err)
	}

	jobState := orchestrator.NewJSONFileJobStateStore(app.config.OutputDir)

	app.orch = orchestrator.New(app.logger, app.m, fetcher, dayCfg, resetTimeout, jobState, nil, observer)
	return nil
}

func (app *App) buildObserver() (orchestrator.Observer, error) {
	var observers []orchestrator.Observer
	observers = append(observers, orchestrator.NewLoggingObserver(app.logger))

	if app.config.Sinks.Redis.Enabled {
		client, err := fxredis.NewClient(fxredis.ClientConfig{
			URL:      app.config.Sinks.Redis.URL,
			DB:       app.config.Sinks.Redis.DB,
			Password: app.config.Sinks.Redis.Password,
		}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		observers = append(observers, redisobserver.New(client, app.logger, 0))
	}

	if app.config.Sinks.WS.Enabled {
		ws := wsbroadcaster.New(app.logger)
		addr := app.config.Sinks.WS.Addr
		if addr == "" {
			addr = ":8089"
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/progress", ws.Handler)
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				app.logger.Error("websocket progress server stopped", zap.Error(err))
			}
		}()
		observers = append(observers, ws)
	}

	if len(observers) == 1 {
		return observers[0], nil
	}
	return orchestrator.NewMultiObserver(observers...), nil
}

func setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func (app *App) run() error {
	start, err := app.config.ParsedStartDate()
	if err != nil {
		return err
	}
	end, err := app.config.ParsedEndDate()
	if err != nil {
		return err
	}
	period, err := config.ParsePeriod(app.config.Period)
	if err != nil {
		return fmt.Errorf("parse period: %w", err)
	}

	req := orchestrator.Request{
		Symbols:    app.config.Symbols,
		Start:      start,
		End:        end,
		Period:     period,
		DataSource: app.config.DataSource,
		PriceSide:  app.config.PriceSide,
		VolumeKind: app.config.VolumeKind,
		Threads:    app.config.Threads,
		Header:     app.config.Header,
		Resume:     app.config.Resume,
		OutputDir:  app.config.OutputDir,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		app.logger.Warn("shutdown signal received, finishing in-flight work")
		app.orch.Cancel()
	}()

	app.logger.Info("starting download",
		zap.Strings("symbols", req.Symbols),
		zap.Time("start", req.Start),
		zap.Time("end", req.End),
	)

	errs := app.orch.Run(app.ctx, req)

	if app.m != nil {
		app.m.Stop()
	}

	failed := 0
	for symbol, err := range errs {
		app.logger.Error("symbol run failed", zap.String("symbol", symbol), zap.Error(err))
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed", failed, len(req.Symbols))
	}
	app.logger.Info("download complete")
	return nil
}
