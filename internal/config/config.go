// Package config loads service configuration from YAML with environment
// overrides and supports hot reload of the files that can change at runtime.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/medwatch-ai/medwatch/internal/extract"
	"github.com/medwatch-ai/medwatch/internal/tracing"
)

// Config is the full service configuration.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig points at the external record source.
type SourceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig points at the understanding service.
type LLMConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig enables the Redis-backed usage ledger.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// BudgetConfig sets usage-ledger limits.
type BudgetConfig struct {
	DefaultLimitUSD float64 `mapstructure:"default_limit_usd"`
	CostPerTaskUSD  float64 `mapstructure:"cost_per_task_usd"`
}

// SchedulerConfig bounds plan execution.
type SchedulerConfig struct {
	MaxConcurrentPerCapability int64         `mapstructure:"max_concurrent_per_capability"`
	RequestsPerSecond          float64       `mapstructure:"requests_per_second"`
	TaskTimeout                time.Duration `mapstructure:"task_timeout"`
}

// FetcherConfig bounds pagination and retry.
type FetcherConfig struct {
	PageSize    int           `mapstructure:"page_size"`
	MaxRecords  int           `mapstructure:"max_records"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig controls zap setup.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://api.fda.gov")
	// Registered explicitly so the env override binds during Unmarshal.
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.timeout", "15s")
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.base_url", "http://localhost:8000")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("budget.default_limit_usd", 1.0)
	v.SetDefault("budget.cost_per_task_usd", 0.01)
	v.SetDefault("scheduler.max_concurrent_per_capability", 3)
	v.SetDefault("scheduler.requests_per_second", 4)
	v.SetDefault("scheduler.task_timeout", "60s")
	v.SetDefault("fetcher.page_size", 50)
	v.SetDefault("fetcher.max_records", 500)
	v.SetDefault("fetcher.max_attempts", 3)
	v.SetDefault("fetcher.backoff_base", "500ms")
	v.SetDefault("fetcher.backoff_max", "5s")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "medwatch")
	v.SetDefault("logging.level", "info")
}

// Load reads the configuration file at path, or defaults plus environment
// when path is "". Environment variables use the MEDWATCH_ prefix with
// underscores, e.g. MEDWATCH_SOURCE_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MEDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// WatchSynonyms reloads the synonym vocabulary when its file changes on
// disk. The watcher runs until the returned stop function is called.
func WatchSynonyms(logger *zap.Logger) (func(), error) {
	path := extract.SynonymConfigPath()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				extract.ReloadSynonyms()
				logger.Info("Synonym vocabulary reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Synonym watcher error", zap.Error(err))
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
