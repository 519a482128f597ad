package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/law-makers/marketscrape/internal/utils/headers"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "MARKETSCRAPE_"

// binding ties a setting to its flag and environment variable. list is used
// instead of set for repeatable settings.
type binding struct {
	flag  string
	env   string
	set   func(c *Config, v string) error
	list  func(c *Config, v []string)
	split func(string) []string
}

var bindings = []binding{
	{flag: "log-level", env: "LOG_LEVEL", set: stringVar(func(c *Config) *string { return &c.Log.Level })},
	{flag: "verbose", env: "VERBOSE", set: levelIf("debug")},
	{flag: "quiet", env: "QUIET", set: levelIf("error")},
	{flag: "json", env: "JSON_LOG", set: boolVar(func(c *Config) *bool { return &c.Log.JSON })},
	{flag: "log-file", env: "LOG_FILE", set: stringVar(func(c *Config) *string { return &c.Log.File })},

	{flag: "headless", env: "HEADLESS", set: boolVar(func(c *Config) *bool { return &c.Browser.Headless })},
	{flag: "chrome-path", env: "CHROME_PATH", set: stringVar(func(c *Config) *string { return &c.Browser.ChromePath })},
	{flag: "user-agent", env: "USER_AGENT", set: stringVar(func(c *Config) *string { return &c.Browser.UserAgent })},
	{flag: "width", env: "WIDTH", set: intVar(func(c *Config) *int { return &c.Browser.Width })},
	{flag: "height", env: "HEIGHT", set: intVar(func(c *Config) *int { return &c.Browser.Height })},
	{flag: "nav-timeout", env: "NAV_TIMEOUT", set: durationVar(func(c *Config) *time.Duration { return &c.Browser.NavTimeout })},
	{flag: "timeout", env: "OP_TIMEOUT", set: durationVar(func(c *Config) *time.Duration { return &c.Browser.OpTimeout })},

	{flag: "proxy", env: "PROXIES", list: func(c *Config, v []string) { c.Network.Proxies = v }, split: splitComma},
	{flag: "header", env: "HEADERS", list: func(c *Config, v []string) { c.Network.Headers = v }, split: headers.Split},
	{flag: "rate-limit", env: "RATE_LIMIT", set: floatVar(func(c *Config) *float64 { return &c.Network.RateLimit })},
	{flag: "rate-burst", env: "RATE_BURST", set: intVar(func(c *Config) *int { return &c.Network.RateBurst })},

	{flag: "start-page", env: "START_PAGE", set: intVar(func(c *Config) *int { return &c.Paginate.StartPage })},
	{flag: "max-page", env: "MAX_PAGE", set: intVar(func(c *Config) *int { return &c.Paginate.MaxPage })},
	{flag: "recycle-interval", env: "RECYCLE_INTERVAL", set: intVar(func(c *Config) *int { return &c.Paginate.RecycleInterval })},
	{flag: "page-retries", env: "PAGE_RETRIES", set: intVar(func(c *Config) *int { return &c.Paginate.PageRetries })},
	{flag: "failure-threshold", env: "FAILURE_THRESHOLD", set: intVar(func(c *Config) *int { return &c.Paginate.FailureThreshold })},
	{flag: "retry-cooldown", env: "RETRY_COOLDOWN", set: durationVar(func(c *Config) *time.Duration { return &c.Paginate.RetryCooldown })},
	{flag: "failure-cooldown", env: "FAILURE_COOLDOWN", set: durationVar(func(c *Config) *time.Duration { return &c.Paginate.FailureCooldown })},
	{flag: "settle-delay", env: "SETTLE_DELAY", set: durationVar(func(c *Config) *time.Duration { return &c.Paginate.SettleDelay })},
	{flag: "delay-min", env: "DELAY_MIN", set: durationVar(func(c *Config) *time.Duration { return &c.Paginate.DelayMin })},
	{flag: "delay-max", env: "DELAY_MAX", set: durationVar(func(c *Config) *time.Duration { return &c.Paginate.DelayMax })},
	{flag: "shards", env: "SHARDS", set: intVar(func(c *Config) *int { return &c.Paginate.Shards })},

	{flag: "steps", env: "SCROLL_STEPS", set: intVar(func(c *Config) *int { return &c.Scroll.Steps })},
	{flag: "stride", env: "SNAPSHOT_STRIDE", set: intVar(func(c *Config) *int { return &c.Scroll.SnapshotStride })},
	{flag: "stable", env: "STABLE_SNAPSHOTS", set: intVar(func(c *Config) *int { return &c.Scroll.StableSnapshots })},
	{flag: "step-delay", env: "STEP_DELAY", set: durationVar(func(c *Config) *time.Duration { return &c.Scroll.StepDelay })},
	{flag: "focus-delay", env: "FOCUS_DELAY", set: durationVar(func(c *Config) *time.Duration { return &c.Scroll.FocusDelay })},

	{flag: "url", env: "TRENDING_URL", set: stringVar(func(c *Config) *string { return &c.Trending.URL })},
	{flag: "attempts", env: "TRENDING_ATTEMPTS", set: intVar(func(c *Config) *int { return &c.Trending.Attempts })},
	{flag: "backoff", env: "TRENDING_BACKOFF", set: durationVar(func(c *Config) *time.Duration { return &c.Trending.Backoff })},

	{flag: "output", env: "OUTPUT_DIR", set: stringVar(func(c *Config) *string { return &c.Output.Dir })},
	{flag: "format", env: "OUTPUT_FORMAT", set: stringVar(func(c *Config) *string { return &c.Output.Format })},
	{flag: "fetch-images", env: "FETCH_IMAGES", set: boolVar(func(c *Config) *bool { return &c.Output.FetchImages })},
	{flag: "image-concurrency", env: "IMAGE_CONCURRENCY", set: intVar(func(c *Config) *int { return &c.Output.ImageConcurrency })},

	{flag: "schema", env: "SCHEMA", set: stringVar(func(c *Config) *string { return &c.Schema })},
	{flag: "metrics-addr", env: "METRICS_ADDR", set: stringVar(func(c *Config) *string { return &c.MetricsAddr })},
}

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	d := Default()
	f := cmd.PersistentFlags()

	f.String("config", "", "Path to a YAML configuration file")
	f.String("env-file", DefaultEnvFile, "Path to a .env file (ignored when missing)")
	f.BoolP("verbose", "v", false, "Enable debug logging")
	f.BoolP("quiet", "q", false, "Suppress all output except errors")
	f.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	f.Bool("json", d.Log.JSON, "Log in JSON format")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	f.Bool("headless", d.Browser.Headless, "Run Chrome headless")
	f.String("chrome-path", "", "Path to the Chrome executable")
	f.String("user-agent", d.Browser.UserAgent, "User agent for browser and API requests")
	f.Int("width", d.Browser.Width, "Viewport width")
	f.Int("height", d.Browser.Height, "Viewport height")
	f.Duration("nav-timeout", d.Browser.NavTimeout, "Navigation timeout")
	f.Duration("timeout", d.Browser.OpTimeout, "Timeout of every other browser operation")

	f.StringArray("proxy", nil, "Proxy URL or @file, rotated per session (repeatable)")
	f.StringArrayP("header", "H", nil, "Extra request header \"Key: Value\" (repeatable)")
	f.Float64("rate-limit", d.Network.RateLimit, "Requests per second per host, 0 for unlimited")
	f.Int("rate-burst", d.Network.RateBurst, "Rate limiter burst")

	f.StringP("output", "o", d.Output.Dir, "Output directory")
	f.String("format", d.Output.Format, "Record file format (json, csv)")
}

// RegisterPaginateFlags registers the pagination flags
func RegisterPaginateFlags(cmd *cobra.Command) {
	d := Default().Paginate
	f := cmd.Flags()
	f.Int("start-page", d.StartPage, "First page")
	f.Int("max-page", d.MaxPage, "Last page")
	f.Int("recycle-interval", d.RecycleInterval, "Pages per browser session, 0 to never recycle")
	f.Int("failure-threshold", d.FailureThreshold, "Consecutive failed pages before aborting")
	f.Duration("failure-cooldown", d.FailureCooldown, "Pause after a failed page")
	f.Duration("delay-min", d.DelayMin, "Minimum delay between pages")
	f.Duration("delay-max", d.DelayMax, "Maximum delay between pages")
	f.Int("shards", d.Shards, "Concurrent sessions over disjoint page ranges")
	registerRetryFlags(cmd)
}

// RegisterScrollFlags registers the virtualized list flags
func RegisterScrollFlags(cmd *cobra.Command) {
	d := Default().Scroll
	f := cmd.Flags()
	f.Int("steps", d.Steps, "Scroll steps")
	f.Int("stride", d.SnapshotStride, "Snapshot every n-th step")
	f.Int("stable", d.StableSnapshots, "Stop after n snapshots without new rows, 0 to run every step")
	f.Duration("step-delay", d.StepDelay, "Delay after each scroll step")
	f.Duration("focus-delay", d.FocusDelay, "Delay after focusing the list")
	registerRetryFlags(cmd)
}

func registerRetryFlags(cmd *cobra.Command) {
	d := Default().Paginate
	f := cmd.Flags()
	f.Int("page-retries", d.PageRetries, "Retries of a failed page or scroll session")
	f.Duration("retry-cooldown", d.RetryCooldown, "Pause before a retry")
	f.Duration("settle-delay", d.SettleDelay, "Wait after navigation before reading the page")
}

// RegisterExtractFlags registers flags shared by the browser commands
func RegisterExtractFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("schema", "", "YAML schema file replacing the built-in schema")
	f.Bool("fetch-images", false, "Download record images into <output>/images")
	f.Int("image-concurrency", DefaultImageConcurrency, "Concurrent image downloads")
}

// RegisterTrendingFlags registers the trending API flags
func RegisterTrendingFlags(cmd *cobra.Command) {
	d := Default().Trending
	f := cmd.Flags()
	f.String("url", d.URL, "Trending API endpoint")
	f.Int("attempts", d.Attempts, "Request attempts")
	f.Duration("backoff", d.Backoff, "Backoff unit; the wait after attempt n is n times this")
}

// applyEnv reads MARKETSCRAPE_* variables through lookup
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		v, ok := lookup(EnvPrefix + b.env)
		if !ok || v == "" {
			continue
		}
		if b.list != nil {
			b.list(c, b.split(v))
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, b.env, err)
		}
	}
	return nil
}

// applyFlags reads the flags explicitly set on the command line
func (c *Config) applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	for _, b := range bindings {
		f := flags.Lookup(b.flag)
		if f == nil || !f.Changed {
			continue
		}
		if b.list != nil {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				b.list(c, sv.GetSlice())
			}
			continue
		}
		if err := b.set(c, f.Value.String()); err != nil {
			return fmt.Errorf("invalid --%s: %w", b.flag, err)
		}
	}
	return nil
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// levelIf sets the log level when a boolean switch is on
func levelIf(level string) func(*Config, string) error {
	return func(c *Config, v string) error {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		if on {
			c.Log.Level = level
		}
		return nil
	}
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
