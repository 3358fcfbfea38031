package orchestrator

import "go.uber.org/zap"

// Observer is the only coupling between the core pipeline and any
// UI/CLI/sink. It is deliberately narrow: four methods, no return values
// the core depends on. Implementations are responsible for their own
// thread-safety since callbacks may arrive from any worker goroutine.
type Observer interface {
	OnStart(symbol string, totalDays int)
	OnUpdate(symbol string, done, total int, success bool)
	OnFinish(symbol string, outputPath string)
	OnError(symbol string, err error)
}

// NoopObserver discards every notification.
type NoopObserver struct{}

func (NoopObserver) OnStart(string, int)             {}
func (NoopObserver) OnUpdate(string, int, int, bool)  {}
func (NoopObserver) OnFinish(string, string)          {}
func (NoopObserver) OnError(string, error)            {}

// LoggingObserver renders progress through a structured logger. It ships
// as the minimal non-noop built-in; richer sinks (Redis pub/sub, WebSocket
// broadcast) live as separate packages that implement the same interface.
type LoggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver wraps a logger as an Observer.
func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnStart(symbol string, totalDays int) {
	o.logger.Info("symbol started", zap.String("symbol", symbol), zap.Int("total_days", totalDays))
}

func (o *LoggingObserver) OnUpdate(symbol string, done, total int, success bool) {
	o.logger.Debug("symbol progress",
		zap.String("symbol", symbol), zap.Int("done", done), zap.Int("total", total), zap.Bool("success", success))
}

func (o *LoggingObserver) OnFinish(symbol string, outputPath string) {
	o.logger.Info("symbol finished", zap.String("symbol", symbol), zap.String("output", outputPath))
}

func (o *LoggingObserver) OnError(symbol string, err error) {
	o.logger.Error("symbol error", zap.String("symbol", symbol), zap.Error(err))
}

// MultiObserver fans every notification out to a set of Observers, so the
// orchestrator can be handed several sinks (e.g. logging plus Redis) while
// still depending on a single Observer value.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver builds a fan-out Observer.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

func (m *MultiObserver) OnStart(symbol string, totalDays int) {
	for _, o := range m.observers {
		o.OnStart(symbol, totalDays)
	}
}

func (m *MultiObserver) OnUpdate(symbol string, done, total int, success bool) {
	for _, o := range m.observers {
		o.OnUpdate(symbol, done, total, success)
	}
}

func (m *MultiObserver) OnFinish(symbol string, outputPath string) {
	for _, o := range m.observers {
		o.OnFinish(symbol, outputPath)
	}
}

func (m *MultiObserver) OnError(symbol string, err error) {
	for _, o := range m.observers {
		o.OnError(symbol, err)
	}
}
