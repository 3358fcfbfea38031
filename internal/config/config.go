// Package config defines the single immutable configuration value the
// rest of the pipeline is built from. It is constructed once, up front,
// either by loading YAML (LoadConfig) or programmatically. Its top-level
// fields are the run options (symbols, dates, period, threads, data
// source, price side, volume kind, header, resume, output directory); the
// nested sections tune fetch retries, day fan-out, the circuit breaker,
// metrics and the optional progress sinks.
package config

import (
	"fmt"
	"time"

	"fxhistorian/internal/model"
)

// Config is the complete, immutable configuration for one run.
type Config struct {
	Symbols     []string          `yaml:"symbols"`
	StartDate   string            `yaml:"start_date"` // ISO YYYY-MM-DD
	EndDate     string            `yaml:"end_date"`   // ISO YYYY-MM-DD
	Period      string            `yaml:"period"`     // TICK, S1.., M1.., H1, D1, CUSTOM:<n><s|m|h|d>
	Threads     int               `yaml:"threads"`     // T, outer workers, 1..30
	DataSource  model.DataSource  `yaml:"data_source"`
	PriceSide   model.PriceSide   `yaml:"price_side"`
	VolumeKind  model.VolumeKind  `yaml:"volume_kind"`
	Header      bool              `yaml:"header"`
	Resume      bool              `yaml:"resume"`
	OutputDir   string            `yaml:"output_dir"`

	Fetch   FetchConfig   `yaml:"fetch"`
	DayFan  DayFanConfig  `yaml:"day_fan_out"`
	Breaker BreakerConfig `yaml:"circuit_breaker"`
	Metrics MetricsConfig `yaml:"metrics"`
	Sinks   SinksConfig   `yaml:"sinks"`
}

// FetchConfig mirrors the Fetcher's retry-policy parameters.
type FetchConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	BaseDelay      string `yaml:"base_delay"`
	MaxDelay       string `yaml:"max_delay"`
	RequestTimeout string `yaml:"request_timeout"`
}

// DayFanConfig mirrors the DayDriver's inner concurrency parameters.
type DayFanConfig struct {
	Concurrency  int    `yaml:"concurrency"` // K
	RequestDelay string `yaml:"request_delay"`
}

// BreakerConfig mirrors the orchestrator's circuit-breaker reset window.
type BreakerConfig struct {
	ResetTimeout string `yaml:"reset_timeout"`
}

// MetricsConfig controls the Prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
}

// SinksConfig enables the optional Observer sinks. The core never
// references these types; only cmd/ wiring reads them to decide which
// Observer implementation(s) to construct.
type SinksConfig struct {
	Redis RedisSinkConfig `yaml:"redis"`
	WS    WSSinkConfig    `yaml:"websocket"`
}

// RedisSinkConfig configures the optional Redis pub/sub progress sink.
type RedisSinkConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// WSSinkConfig configures the optional WebSocket broadcast progress sink.
type WSSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Defaults returns a Config with every field the specification treats as
// optional filled in.
func Defaults() Config {
	return Config{
		Threads:    5,
		DataSource: model.SourceAuto,
		PriceSide:  model.SideBid,
		VolumeKind: model.VolumeTotal,
		Header:     true,
		Resume:     true,
		OutputDir:  ".",
		Fetch: FetchConfig{
			MaxAttempts:    10,
			BaseDelay:      "1s",
			MaxDelay:       "30s",
			RequestTimeout: "60s",
		},
		DayFan: DayFanConfig{
			Concurrency:  8,
			RequestDelay: "100ms",
		},
		Breaker: BreakerConfig{ResetTimeout: "60s"},
		Metrics: MetricsConfig{Enabled: true, Port: 9090},
	}
}

// ParsedStartDate parses StartDate as a UTC calendar date.
func (c *Config) ParsedStartDate() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", c.StartDate, time.UTC)
}

// ParsedEndDate parses EndDate as a UTC calendar date.
func (c *Config) ParsedEndDate() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", c.EndDate, time.UTC)
}

// FetchDurations resolves the Fetch section's string durations.
func (c *Config) FetchDurations() (base, max, timeout time.Duration, err error) {
	if base, err = time.ParseDuration(or(c.Fetch.BaseDelay, "1s")); err != nil {
		return
	}
	if max, err = time.ParseDuration(or(c.Fetch.MaxDelay, "30s")); err != nil {
		return
	}
	timeout, err = time.ParseDuration(or(c.Fetch.RequestTimeout, "60s"))
	return
}

// DayFanDelay resolves the DayFan section's request delay.
func (c *Config) DayFanDelay() (time.Duration, error) {
	return time.ParseDuration(or(c.DayFan.RequestDelay, "100ms"))
}

// BreakerResetTimeout resolves the circuit breaker's reset window.
func (c *Config) BreakerResetTimeout() (time.Duration, error) {
	return time.ParseDuration(or(c.Breaker.ResetTimeout, "60s"))
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Validate checks the recognized fields for basic sanity: required
// presence and the enumerated ranges the specification names.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if _, err := c.ParsedStartDate(); err != nil {
		return fmt.Errorf("config: invalid start_date: %w", err)
	}
	if _, err := c.ParsedEndDate(); err != nil {
		return fmt.Errorf("config: invalid end_date: %w", err)
	}
	if c.Threads < 1 || c.Threads > 30 {
		return fmt.Errorf("config: threads must be in [1,30], got %d", c.Threads)
	}
	switch c.DataSource {
	case model.SourceAuto, model.SourceTick, model.SourceNative:
	default:
		return fmt.Errorf("config: invalid data_source %q", c.DataSource)
	}
	switch c.PriceSide {
	case model.SideBid, model.SideAsk, model.SideMid:
	default:
		return fmt.Errorf("config: invalid price_side %q", c.PriceSide)
	}
	switch c.VolumeKind {
	case model.VolumeTotal, model.VolumeBid, model.VolumeAsk, model.VolumeTicks:
	default:
		return fmt.Errorf("config: invalid volume_kind %q", c.VolumeKind)
	}
	if _, _, _, err := c.FetchDurations(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
