package config

import "time"

// Config holds all configuration for the gateway: the HTTP surface, the
// engine roster and its per-engine pool/breaker policy, the model registry
// seed, and the worker/monitor cadence.
type Config struct {
	Logging LoggingConfig  `yaml:"logging"`
	Server  ServerConfig   `yaml:"server"`
	Engines []EngineConfig `yaml:"engines"`
	Models  []ModelConfig  `yaml:"models"`
	Worker  WorkerConfig   `yaml:"worker"`
	Monitor MonitorConfig  `yaml:"monitor"`
}

// ServerConfig holds the thin HTTP surface's listener configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig is one roster entry: where an engine family lives, how it's
// probed, and the pool/breaker policy that gates dispatch to it.
type EngineConfig struct {
	Identity     string        `yaml:"identity"`
	Name         string        `yaml:"name"`
	BaseURL      string        `yaml:"base_url"`
	ProbePath    string        `yaml:"probe_path"`
	Priority     int           `yaml:"priority"`
	Capabilities []string      `yaml:"capabilities"`
	Pool         PoolConfig    `yaml:"pool"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// PoolConfig is the per-engine connection pool policy.
type PoolConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	KeepAliveIdle  time.Duration `yaml:"keepalive_idle"`
}

// BreakerConfig is the per-engine circuit breaker policy.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// ModelConfig seeds the model registry at startup: which engines may serve
// a model_id, in what order, and which capabilities it declares.
type ModelConfig struct {
	ID               string   `yaml:"id"`
	EnginePreference []string `yaml:"engine_preference"`
	Capabilities     []string `yaml:"capabilities"`
}

// WorkerConfig tunes the async priority job queue.
type WorkerConfig struct {
	Concurrency              int           `yaml:"concurrency"`
	QueueCapacityPerPriority int           `yaml:"queue_capacity_per_priority"`
	ExpiryWindow             time.Duration `yaml:"expiry_window"`
	StaleThreshold           time.Duration `yaml:"stale_threshold"`
	RetentionWindow          time.Duration `yaml:"retention_window"`
}

// MonitorConfig tunes the health monitor's probe cadence.
type MonitorConfig struct {
	ProbeInterval        time.Duration `yaml:"probe_interval"`
	HealthyProbeInterval time.Duration `yaml:"healthy_probe_interval"`
	Workers              int           `yaml:"workers"`
	QueueSize            int           `yaml:"queue_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FileOutput bool   `yaml:"file_output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Theme      string `yaml:"theme"`
}
