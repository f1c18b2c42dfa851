package config

// Config is the top-level, strictly-decoded configuration for the scheduler
// daemon. It is loaded from YAML or JSON (see yaml.go) and may be hot-reloaded
// by ConfigManager while the process runs.
type Config struct {
	Scheduler  SchedulerConfig   `json:"scheduler"`
	Logging    LoggingConfig     `json:"logging"`
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`
	Tasks      []TaskConfig      `json:"tasks,omitempty"`
}

// SchedulerConfig controls the core dispatch loop.
//
// Mode only takes effect at construction time: changing it (or any other
// field here) via a hot-reloaded config after the scheduler has started is rejected by the
// validator (ErrIllegalState), matching the immutability rule in §4.7 of the
// specification.
type SchedulerConfig struct {
	Mode string `json:"mode"` // "foreground" | "background"

	// CheckInterval and ShutdownGrace are Go duration strings (e.g. "100ms", "5s").
	CheckInterval string `json:"check_interval"`
	ShutdownGrace string `json:"shutdown_grace"`

	// Timezone is an IANA name. It is decoded and reported in reload change
	// summaries, but nothing applies it: task time-of-day windows are
	// evaluated in the location of the scheduler clock's Now().
	Timezone string `json:"timezone,omitempty"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`

	// ErrorRateLimit caps Error-level log writes per second; 0 disables
	// throttling. See pkg/logx.Config.ErrorRateLimit.
	ErrorRateLimit float64 `json:"error_rate_limit,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TaskEngineConfig controls the optional, opt-in advanced executor
// (internal/task/engine) that embedders may use in place of the core
// Executor when they need bounded concurrency, retries, or circuit breaking.
// It is never required by the core Scheduler.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type TaskEngineConfig struct {
	Enabled   *bool `json:"enabled,omitempty"`
	Workers   int   `json:"workers,omitempty"`
	QueueSize int   `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
	RetryMax    int `json:"retry_max,omitempty"`

	CircuitTripFailures int    `json:"circuit_trip_failures,omitempty"`
	CircuitBaseDelay    string `json:"circuit_base_delay,omitempty"`
	CircuitMaxDelay     string `json:"circuit_max_delay,omitempty"`
	CircuitResetAfter   string `json:"circuit_reset_after,omitempty"`
}

// TaskConfig declaratively registers a demo periodic task with the daemon
// front-end (cmd/schedulerd). It is sugar over scheduler.Register and is not
// part of the core library contract — see §4.11 of the specification.
type TaskConfig struct {
	Name     string `json:"name"`
	Interval string `json:"interval"` // Go duration string, e.g. "30s"
	Priority string `json:"priority,omitempty"` // "low"|"normal"|"high"|"critical"

	StartImmediately *bool           `json:"start_immediately,omitempty"`
	MaxRunningTime   string          `json:"max_running_time,omitempty"`
	Windows          []WindowConfig  `json:"windows,omitempty"`
}

// WindowConfig is a "HH:MM:SS"-"HH:MM:SS" admission window.
type WindowConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
