// Package config defines the loader configuration and its layered sources.
package config

import (
	"fmt"
	"runtime"
	"time"
	_ "time/tzdata" // zones resolve without a system zoneinfo
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// DateLayout is the layout of StartDate.
const DateLayout = "2006-01-02"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Backend selects storage: memory, badger or postgres.
	Backend        string `koanf:"backend"`
	BadgerPath     string `koanf:"badger_path"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`
	PostgresDSN    string `koanf:"postgres_dsn"`

	// Timezone is the IANA zone days and weeks are cut in.
	Timezone string `koanf:"timezone"`

	// Generator settings, used when EventsFile is empty.
	StartDate        string `koanf:"start_date"`
	Days             int    `koanf:"days"`
	StepSeconds      int    `koanf:"step_seconds"`
	Users            int    `koanf:"users"`
	EventsPerStepMin int    `koanf:"events_per_step_min"`
	EventsPerStepMax int    `koanf:"events_per_step_max"`
	Seed             uint64 `koanf:"seed"`

	// EventsFile replays NDJSON events instead of generating them.
	EventsFile string `koanf:"events_file"`
	// MaxEventsPerSecond throttles the source; 0 disables throttling.
	MaxEventsPerSecond float64 `koanf:"max_events_per_second"`

	// WorkerCount is the number of per-user lanes; 1 processes inline.
	WorkerCount   int `koanf:"worker_count"`
	LaneQueueSize int `koanf:"lane_queue_size"`

	// OpTimeoutMS bounds each storage operation.
	OpTimeoutMS   int `koanf:"op_timeout_ms"`
	RetryMaxTries int `koanf:"retry_max_tries"`

	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`
	// MetricsNamespace and MetricsSubsystem prefix every collector name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// MetricsBucketsMS overrides the latency histogram buckets.
	MetricsBucketsMS []float64 `koanf:"metrics_buckets_ms"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Backend:          BackendMemory,
		BadgerPath:       "data/badger",
		Timezone:         "America/Detroit",
		StartDate:        "2013-03-01",
		Days:             31,
		StepSeconds:      60,
		Users:            10000,
		EventsPerStepMin: 15,
		EventsPerStepMax: 30,
		Seed:             1,
		WorkerCount:      runtime.NumCPU(),
		LaneQueueSize:    1024,
		OpTimeoutMS:      5000,
		RetryMaxTries:    5,
		MetricsNamespace: "podium",
		MetricsSubsystem: "loader",
	}
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.BadgerPath == "" && !c.BadgerInMemory {
			return fmt.Errorf("%w: badger_path must not be empty", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.EventsFile == "" {
		if _, err := c.Start(); err != nil {
			return err
		}
		switch {
		case c.Days < 1:
			return fmt.Errorf("%w: days must be positive", ErrInvalidConfig)
		case c.StepSeconds < 1:
			return fmt.Errorf("%w: step_seconds must be positive", ErrInvalidConfig)
		case c.Users < 1:
			return fmt.Errorf("%w: users must be positive", ErrInvalidConfig)
		case c.EventsPerStepMin < 0 || c.EventsPerStepMax < c.EventsPerStepMin:
			return fmt.Errorf("%w: events_per_step range [%d,%d]", ErrInvalidConfig, c.EventsPerStepMin, c.EventsPerStepMax)
		}
	}

	switch {
	case c.MaxEventsPerSecond < 0:
		return fmt.Errorf("%w: max_events_per_second must not be negative", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.LaneQueueSize < 1:
		return fmt.Errorf("%w: lane_queue_size must be positive", ErrInvalidConfig)
	case c.OpTimeoutMS < 1:
		return fmt.Errorf("%w: op_timeout_ms must be positive", ErrInvalidConfig)
	case c.RetryMaxTries < 1:
		return fmt.Errorf("%w: retry_max_tries must be positive", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	case c.MetricsNamespace == "":
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	}
	for i, b := range c.MetricsBucketsMS {
		if b <= 0 || (i > 0 && b <= c.MetricsBucketsMS[i-1]) {
			return fmt.Errorf("%w: metrics_buckets_ms must be positive and strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Start returns midnight of StartDate in Timezone.
func (c *Config) Start() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.ParseInLocation(DateLayout, c.StartDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start_date %q: %w", ErrInvalidConfig, c.StartDate, err)
	}
	return ts, nil
}

// Step returns the generator step length.
func (c *Config) Step() time.Duration {
	return time.Duration(c.StepSeconds) * time.Second
}

// OpTimeout returns the per-operation storage timeout.
func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMS) * time.Millisecond
}
