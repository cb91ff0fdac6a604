package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

const (
	DefaultPort = 19841
	DefaultHost = "localhost"

	DefaultFileWriteDelay = 150 * time.Millisecond // Small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults: an empty
// engine roster (which Validate accepts; engines come from the config file
// or environment) and reasonable worker/monitor cadence.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FileOutput: true,
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Theme:      "default",
		},
		Worker: WorkerConfig{
			Concurrency:              4,
			QueueCapacityPerPriority: 256,
			ExpiryWindow:             5 * time.Minute,
			StaleThreshold:           2 * time.Minute,
			RetentionWindow:          1 * time.Hour,
		},
		Monitor: MonitorConfig{
			ProbeInterval:        10 * time.Second,
			HealthyProbeInterval: 30 * time.Second,
			Workers:              4,
			QueueSize:            64,
		},
	}
}

// Load loads configuration from file and environment variables, falling
// back to DefaultConfig for anything unset.
func Load(onConfigChange func()) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("INFERNO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("INFERNO_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			// lame debounce to avoid rapid-fire reloads
			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // Ignore multiple rapid changes
			}
			lastReload = now

			// looks like on windows this event is triggered
			// before the file is fully written, not sure why
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return config, nil
}

// Validate checks the config for the invariants the rest of the system
// assumes hold at startup: unique engine identities, sane server bounds,
// and model preferences that resolve to a declared engine. An empty roster
// is accepted.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return domain.NewConfigValidationError("server.port", "must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		return domain.NewConfigValidationError("server.host", "must not be empty")
	}

	seen := make(map[string]struct{}, len(c.Engines))
	for _, e := range c.Engines {
		if e.Identity == "" {
			return domain.NewConfigValidationError("engines[*].identity", "must not be empty")
		}
		if _, dup := seen[e.Identity]; dup {
			return domain.NewConfigValidationError("engines[*].identity", fmt.Sprintf("duplicate identity %q", e.Identity))
		}
		seen[e.Identity] = struct{}{}

		if e.BaseURL == "" {
			return domain.NewConfigValidationError("engines[*].base_url", fmt.Sprintf("engine %q has no base_url", e.Identity))
		}
		if e.Pool.MaxConcurrent <= 0 {
			return domain.NewConfigValidationError("engines[*].pool.max_concurrent", fmt.Sprintf("engine %q must allow at least one concurrent request", e.Identity))
		}
		if e.Breaker.FailureThreshold <= 0 {
			return domain.NewConfigValidationError("engines[*].breaker.failure_threshold", fmt.Sprintf("engine %q must have a positive failure threshold", e.Identity))
		}
	}

	modelSeen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if m.ID == "" {
			return domain.NewConfigValidationError("models[*].id", "must not be empty")
		}
		if _, dup := modelSeen[m.ID]; dup {
			return domain.NewConfigValidationError("models[*].id", fmt.Sprintf("duplicate model id %q", m.ID))
		}
		modelSeen[m.ID] = struct{}{}

		if len(m.EnginePreference) == 0 {
			return domain.NewConfigValidationError("models[*].engine_preference", fmt.Sprintf("model %q has no preferred engines", m.ID))
		}
		for _, identity := range m.EnginePreference {
			if _, ok := seen[identity]; !ok {
				return domain.NewConfigValidationError("models[*].engine_preference", fmt.Sprintf("model %q prefers undeclared engine %q", m.ID, identity))
			}
		}
	}

	if c.Worker.Concurrency <= 0 {
		return domain.NewConfigValidationError("worker.concurrency", "must be positive")
	}
	if c.Worker.QueueCapacityPerPriority <= 0 {
		return domain.NewConfigValidationError("worker.queue_capacity_per_priority", "must be positive")
	}
	if c.Monitor.ProbeInterval <= 0 {
		return domain.NewConfigValidationError("monitor.probe_interval", "must be positive")
	}

	return nil
}
