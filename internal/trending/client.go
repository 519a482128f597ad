// Package trending fetches the trending-coins snapshot from a JSON API.
package trending

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/metrics"
	"github.com/law-makers/marketscrape/internal/ratelimit"
	"github.com/law-makers/marketscrape/internal/retry"
)

// DefaultURL is the public trending endpoint
const DefaultURL = "https://api.coingecko.com/api/v3/search/trending"

// Options configures a Client
type Options struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// Attempts is the total number of tries; the wait after attempt n is Backoff*n
	Attempts int
	Backoff  time.Duration
	Limiter  *ratelimit.HostLimiter
	Metrics  *metrics.Metrics
	// Sleep replaces the wait between attempts
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client fetches trending snapshots
type Client struct {
	http *resty.Client
	opts Options
}

// New creates a client
func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{http: client, opts: opts}
}

// WithTransport replaces the HTTP transport
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.http.SetTransport(rt)
	return c
}

// Fetch retrieves the snapshot, retrying with linear backoff. The error after
// the last attempt wraps retry.ErrExhausted.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	cfg := retry.LinearConfig(c.opts.Attempts, c.opts.Backoff)
	cfg.RetryableStatusCodes = nil
	cfg.Sleep = c.opts.Sleep
	cfg.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Trending fetch failed")
	}

	var snap *Snapshot
	err := retry.Do(ctx, cfg, func(attempt int) error {
		log.Debug().Str("url", c.opts.URL).Int("attempt", attempt).Int("attempts", c.opts.Attempts).Msg("Fetching trending")

		s, err := c.fetchOnce(ctx)
		if err != nil {
			return err
		}
		snap = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("trending fetch failed: %w", err)
	}

	log.Info().
		Strs("sections", snap.Keys()).
		Int("coins", snap.Coins()).
		Int("categories", snap.Categories()).
		Msg("Fetched trending data")
	return snap, nil
}

func (c *Client) fetchOnce(ctx context.Context) (*Snapshot, error) {
	if err := c.opts.Limiter.Wait(ctx, c.opts.URL); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.opts.URL)
	if err != nil {
		c.opts.Metrics.IncAPI("error")
		return nil, err
	}
	c.opts.Metrics.IncAPI(strconv.Itoa(resp.StatusCode()))

	if resp.IsError() {
		return nil, retry.NewHTTPError(resp.StatusCode(), http.StatusText(resp.StatusCode()), "")
	}
	return ParseSnapshot(resp.Body())
}
