package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/law-makers/marketscrape/internal/output"
	"github.com/law-makers/marketscrape/internal/utils/headers"
	urlutil "github.com/law-makers/marketscrape/internal/utils/url"
)

func validate(c *Config) error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	b := c.Browser
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", b.Width, b.Height)
	}
	if b.NavTimeout <= 0 || b.OpTimeout <= 0 {
		return fmt.Errorf("browser timeouts must be > 0")
	}

	n := c.Network
	if n.RateLimit < 0 {
		return fmt.Errorf("rate limit must be >= 0")
	}
	if _, err := headers.Parse(n.Headers); err != nil {
		return err
	}

	p := c.Paginate
	if p.StartPage < 1 {
		return fmt.Errorf("start page must be >= 1")
	}
	if p.StartPage > p.MaxPage {
		return fmt.Errorf("start page %d is after max page %d", p.StartPage, p.MaxPage)
	}
	if p.RecycleInterval < 0 || p.PageRetries < 0 {
		return fmt.Errorf("recycle interval and page retries must be >= 0")
	}
	if p.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be >= 1")
	}
	if p.DelayMin < 0 || p.DelayMin > p.DelayMax {
		return fmt.Errorf("delay range [%s, %s] is invalid", p.DelayMin, p.DelayMax)
	}
	if p.RetryCooldown < 0 || p.FailureCooldown < 0 || p.SettleDelay < 0 {
		return fmt.Errorf("cool-downs and settle delay must be >= 0")
	}
	if p.Shards < 1 || p.Shards > DefaultMaxShards {
		return fmt.Errorf("shards must be between 1 and %d", DefaultMaxShards)
	}

	s := c.Scroll
	if s.Steps < 1 {
		return fmt.Errorf("scroll steps must be >= 1")
	}
	if s.SnapshotStride < 1 {
		return fmt.Errorf("snapshot stride must be >= 1")
	}
	if s.StableSnapshots < 0 || s.StepDelay < 0 || s.FocusDelay < 0 {
		return fmt.Errorf("stable snapshots and scroll delays must be >= 0")
	}

	t := c.Trending
	if err := urlutil.ValidateURL(t.URL); err != nil {
		return fmt.Errorf("trending url: %w", err)
	}
	if t.Attempts < 1 {
		return fmt.Errorf("trending attempts must be >= 1")
	}
	if t.Backoff < 0 || t.Timeout <= 0 {
		return fmt.Errorf("trending backoff must be >= 0 and timeout > 0")
	}

	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return err
	}
	if c.Output.ImageConcurrency < 1 {
		return fmt.Errorf("image concurrency must be >= 1")
	}
	return nil
}
