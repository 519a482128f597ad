// Package config resolves settings from defaults, a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/law-makers/marketscrape/internal/engine"
)

// Config holds application configuration values
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Browser  BrowserConfig  `yaml:"browser"`
	Network  NetworkConfig  `yaml:"network"`
	Paginate PaginateConfig `yaml:"paginate"`
	Scroll   ScrollConfig   `yaml:"scroll"`
	Trending TrendingConfig `yaml:"trending"`
	Output   OutputConfig   `yaml:"output"`

	// Schema is a YAML schema file replacing the command's built-in schema
	Schema string `yaml:"schema"`
	// MetricsAddr serves /metrics when set, e.g. ":9090"
	MetricsAddr string `yaml:"metrics_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	// File receives a copy of the log, rotated by size
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type BrowserConfig struct {
	Headless   bool          `yaml:"headless"`
	ChromePath string        `yaml:"chrome_path"`
	UserAgent  string        `yaml:"user_agent"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
	OpTimeout  time.Duration `yaml:"op_timeout"`
}

type NetworkConfig struct {
	// Proxies are proxy URLs or @file references, rotated per session
	Proxies []string `yaml:"proxies"`
	// Headers are "Key: Value" entries sent with every request
	Headers   []string `yaml:"headers"`
	RateLimit float64  `yaml:"rate_limit"`
	RateBurst int      `yaml:"rate_burst"`
}

type PaginateConfig struct {
	StartPage        int           `yaml:"start_page"`
	MaxPage          int           `yaml:"max_page"`
	RecycleInterval  int           `yaml:"recycle_interval"`
	PageRetries      int           `yaml:"page_retries"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RetryCooldown    time.Duration `yaml:"retry_cooldown"`
	FailureCooldown  time.Duration `yaml:"failure_cooldown"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	DelayMin         time.Duration `yaml:"delay_min"`
	DelayMax         time.Duration `yaml:"delay_max"`
	Shards           int           `yaml:"shards"`
}

type ScrollConfig struct {
	Steps           int           `yaml:"steps"`
	SnapshotStride  int           `yaml:"snapshot_stride"`
	StableSnapshots int           `yaml:"stable_snapshots"`
	StepDelay       time.Duration `yaml:"step_delay"`
	FocusDelay      time.Duration `yaml:"focus_delay"`
}

type TrendingConfig struct {
	URL      string        `yaml:"url"`
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
	Timeout  time.Duration `yaml:"timeout"`
}

type OutputConfig struct {
	Dir              string `yaml:"dir"`
	Format           string `yaml:"format"`
	FetchImages      bool   `yaml:"fetch_images"`
	ImageConcurrency int    `yaml:"image_concurrency"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      DefaultLogLevel,
			JSON:       DefaultJSONLog,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Browser: BrowserConfig{
			Headless:   DefaultHeadless,
			UserAgent:  DefaultUserAgent,
			Width:      DefaultWidth,
			Height:     DefaultHeight,
			NavTimeout: DefaultNavTimeout,
			OpTimeout:  DefaultOpTimeout,
		},
		Network: NetworkConfig{
			RateLimit: DefaultRateLimitRPS,
			RateBurst: DefaultRateLimitBurst,
		},
		Paginate: PaginateConfig{
			StartPage:        DefaultStartPage,
			MaxPage:          DefaultMaxPage,
			RecycleInterval:  DefaultRecycleInterval,
			PageRetries:      DefaultPageRetries,
			FailureThreshold: DefaultFailureThreshold,
			RetryCooldown:    DefaultRetryCooldown,
			FailureCooldown:  DefaultFailureCooldown,
			SettleDelay:      DefaultSettleDelay,
			DelayMin:         DefaultDelayMin,
			DelayMax:         DefaultDelayMax,
			Shards:           DefaultShards,
		},
		Scroll: ScrollConfig{
			Steps:           DefaultScrollSteps,
			SnapshotStride:  DefaultSnapshotStride,
			StableSnapshots: DefaultStableSnapshots,
			StepDelay:       DefaultStepDelay,
			FocusDelay:      DefaultFocusDelay,
		},
		Trending: TrendingConfig{
			URL:      DefaultTrendingURL,
			Attempts: DefaultTrendingAttempts,
			Backoff:  DefaultTrendingBackoff,
			Timeout:  DefaultTrendingTimeout,
		},
		Output: OutputConfig{
			Dir:              DefaultOutputDir,
			Format:           DefaultOutputFormat,
			ImageConcurrency: DefaultImageConcurrency,
		},
	}
}

// Load builds a Config by combining defaults, an optional YAML file, a .env
// file, MARKETSCRAPE_* environment variables and the flags explicitly set on
// cmd. cmd may be nil.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := Default()

	path, envFile := "", DefaultEnvFile
	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil {
			path = f.Value.String()
		}
		if f := cmd.Flags().Lookup("env-file"); f != nil && f.Value.String() != "" {
			envFile = f.Value.String()
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Variables already set in the environment win over the .env file
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if cmd != nil {
		if err := cfg.applyFlags(cmd); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// PageOptions converts the pagination settings for the engine
func (c *Config) PageOptions() engine.PageOptions {
	p := c.Paginate
	return engine.PageOptions{
		StartPage:        p.StartPage,
		MaxPage:          p.MaxPage,
		RecycleInterval:  p.RecycleInterval,
		PageRetries:      p.PageRetries,
		FailureThreshold: p.FailureThreshold,
		RetryCooldown:    p.RetryCooldown,
		FailureCooldown:  p.FailureCooldown,
		SettleDelay:      p.SettleDelay,
		DelayMin:         p.DelayMin,
		DelayMax:         p.DelayMax,
	}
}

// SampleOptions converts the scroll settings for the engine. Retries and
// cool-downs are shared with pagination.
func (c *Config) SampleOptions() engine.SampleOptions {
	s := c.Scroll
	return engine.SampleOptions{
		ScrollSteps:     s.Steps,
		SnapshotStride:  s.SnapshotStride,
		StableSnapshots: s.StableSnapshots,
		StepDelay:       s.StepDelay,
		FocusDelay:      s.FocusDelay,
		SettleDelay:     c.Paginate.SettleDelay,
		Retries:         c.Paginate.PageRetries,
		RetryCooldown:   c.Paginate.RetryCooldown,
	}
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
