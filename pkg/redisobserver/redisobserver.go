// Package redisobserver implements orchestrator.Observer by publishing
// progress events to Redis pub/sub, one channel per symbol, so an
// external dashboard can watch a run live without polling log files.
package redisobserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	fxredis "fxhistorian/pkg/redis"
)

// Event is the JSON payload published for every progress notification.
type Event struct {
	Symbol     string    `json:"symbol"`
	Kind       string    `json:"kind"` // start|update|finish|error
	Done       int       `json:"done,omitempty"`
	Total      int       `json:"total,omitempty"`
	Success    bool      `json:"success,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Observer publishes progress events to Redis, throttled to a maximum
// publish rate so a fast-completing symbol with thousands of days cannot
// flood the connection.
type Observer struct {
	client *fxredis.Client
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	maxPerSecond  int
	throttleMu    sync.Mutex
	count         int
	lastResetTime time.Time
}

// New builds a Redis-backed Observer. maxPerSecond caps publish rate;
// pass 0 for the default of 1000/s, which comfortably covers even a
// daily OnUpdate for a multi-year, multi-symbol run.
func New(client *fxredis.Client, logger *zap.Logger, maxPerSecond int) *Observer {
	if maxPerSecond <= 0 {
		maxPerSecond = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		client:        client,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		maxPerSecond:  maxPerSecond,
		lastResetTime: time.Now(),
	}
}

func (o *Observer) allow() bool {
	o.throttleMu.Lock()
	defer o.throttleMu.Unlock()

	now := time.Now()
	if now.Sub(o.lastResetTime) >= time.Second {
		o.count = 0
		o.lastResetTime = now
	}
	if o.count >= o.maxPerSecond {
		return false
	}
	o.count++
	return true
}

func (o *Observer) publish(symbol string, ev Event) {
	if !o.allow() {
		o.logger.Debug("progress event throttled", zap.String("symbol", symbol))
		return
	}
	ev.Timestamp = time.Now().UTC()
	if err := o.client.Publish(o.ctx, fxredis.ChannelName(symbol), ev); err != nil {
		o.logger.Warn("failed to publish progress event", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (o *Observer) OnStart(symbol string, totalDays int) {
	o.publish(symbol, Event{Symbol: symbol, Kind: "start", Total: totalDays})
}

func (o *Observer) OnUpdate(symbol string, done, total int, success bool) {
	o.publish(symbol, Event{Symbol: symbol, Kind: "update", Done: done, Total: total, Success: success})
}

func (o *Observer) OnFinish(symbol string, outputPath string) {
	o.publish(symbol, Event{Symbol: symbol, Kind: "finish", OutputPath: outputPath, Success: true})
}

func (o *Observer) OnError(symbol string, err error) {
	o.publish(symbol, Event{Symbol: symbol, Kind: "error", Error: err.Error()})
}

// Close stops the observer's background context. It does not close the
// underlying Redis client, which callers may share with other sinks.
func (o *Observer) Close() {
	o.cancel()
}
