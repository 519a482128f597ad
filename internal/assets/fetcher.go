// Package assets downloads the images referenced by extracted records.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/metrics"
	"github.com/law-makers/marketscrape/internal/ratelimit"
	"github.com/law-makers/marketscrape/internal/retry"
	urlutil "github.com/law-makers/marketscrape/internal/utils/url"
	"github.com/law-makers/marketscrape/pkg/models"
)

// Job is one image to fetch, saved under the record key
type Job struct {
	Key string
	URL string
}

// Result is the outcome of one download
type Result struct {
	Job
	FilePath string
	Size     int64
	Err      error
	Duration time.Duration
}

// Options configures a Fetcher
type Options struct {
	Dir         string
	UserAgent   string
	Headers     map[string]string
	Timeout     time.Duration
	Concurrency int
	// Attempts per image; 429 and 5xx responses and network errors are retried
	// with exponential backoff starting at Backoff
	Attempts int
	Backoff  time.Duration
	Limiter  *ratelimit.HostLimiter
	Metrics  *metrics.Metrics
	// Sleep waits between attempts; tests replace it
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fetcher downloads images with a bounded worker pool
type Fetcher struct {
	http *resty.Client
	opts Options
}

// New creates a fetcher
func New(opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.Concurrency > 50 {
		opts.Concurrency = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeaders(opts.Headers)

	return &Fetcher{http: client, opts: opts}
}

// Jobs collects one job per record with an image URL. Relative URLs are
// resolved against baseURL, inline data URIs are skipped and each URL is
// fetched once.
func Jobs(records []*models.Record, keyField, imageField, baseURL string) []Job {
	seen := make(map[string]bool)
	var jobs []Job
	for _, rec := range records {
		src, ok := rec.String(imageField)
		if !ok || strings.HasPrefix(src, "data:") {
			continue
		}
		if baseURL != "" {
			src = urlutil.ResolveURL(baseURL, src)
		}
		if seen[src] {
			continue
		}
		seen[src] = true

		key := rec.Key(keyField)
		if key == "" {
			key = path.Base(src)
		}
		jobs = append(jobs, Job{Key: key, URL: src})
	}
	return jobs
}

// FetchAll downloads jobs concurrently. Results come back in completion
// order; jobs not started before ctx is cancelled are left out.
func (f *Fetcher) FetchAll(ctx context.Context, jobs []Job) []*Result {
	if len(jobs) == 0 {
		return []*Result{}
	}
	if err := os.MkdirAll(f.opts.Dir, 0755); err != nil {
		res := make([]*Result, len(jobs))
		for i, j := range jobs {
			res[i] = &Result{Job: j, Err: fmt.Errorf("failed to create image directory: %w", err)}
		}
		return res
	}

	queue := make(chan Job, len(jobs))
	results := make(chan *Result, len(jobs))

	workers := min(f.opts.Concurrency, len(jobs))
	var wg sync.WaitGroup
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go f.worker(ctx, w, queue, results, &wg)
	}

	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	go func() {
		wg.Wait()
		close(results)
	}()

	all := make([]*Result, 0, len(jobs))
	for r := range results {
		all = append(all, r)
	}
	return all
}

func (f *Fetcher) worker(ctx context.Context, id int, queue <-chan Job, results chan<- *Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range queue {
		if ctx.Err() != nil {
			log.Debug().Int("worker_id", id).Msg("Image worker cancelled")
			return
		}
		results <- f.Download(ctx, job)
	}
}

// Download fetches one image, streaming it to <dir>/<key><ext>
func (f *Fetcher) Download(ctx context.Context, job Job) *Result {
	start := time.Now()
	res := &Result{Job: job}
	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			f.opts.Metrics.IncAsset("failed")
			log.Debug().Err(res.Err).Str("url", job.URL).Msg("Image download failed")
			return
		}
		f.opts.Metrics.IncAsset("ok")
	}()

	if err := urlutil.ValidateURL(job.URL); err != nil {
		res.Err = err
		return res
	}
	resp, err := f.get(ctx, job.URL)
	if err != nil {
		res.Err = err
		return res
	}
	body := resp.RawBody()
	defer body.Close()

	res.FilePath = filepath.Join(f.opts.Dir, FileName(job.Key, job.URL, resp.Header().Get("Content-Type")))
	out, err := os.Create(res.FilePath)
	if err != nil {
		res.Err = fmt.Errorf("failed to create file: %w", err)
		return res
	}
	defer out.Close()

	n, err := io.Copy(out, body)
	if err != nil {
		os.Remove(res.FilePath)
		res.Err = fmt.Errorf("failed to write file: %w", err)
		return res
	}
	res.Size = n

	log.Debug().
		Str("url", job.URL).
		Str("file", res.FilePath).
		Int64("bytes", n).
		Msg("Image saved")
	return res
}

// get requests rawURL, retrying throttled and failing responses. The returned
// response has a successful status and an open body.
func (f *Fetcher) get(ctx context.Context, rawURL string) (*resty.Response, error) {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = f.opts.Attempts
	cfg.InitialBackoff = f.opts.Backoff
	cfg.Sleep = f.opts.Sleep

	var resp *resty.Response
	err := retry.Do(ctx, cfg, func(int) error {
		if err := f.opts.Limiter.Wait(ctx, rawURL); err != nil {
			return retry.Permanent(err)
		}
		r, err := f.http.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(rawURL)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if r.IsError() {
			r.RawBody().Close()
			return retry.NewHTTPError(r.StatusCode(), r.Status(), "")
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, retry.Unwrap(err)
	}
	return resp, nil
}

var contentTypeExt = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/x-icon":  ".ico",
}

// FileName builds a safe file name from the record key. The extension comes
// from the URL path, else the content type.
func FileName(key, rawURL, contentType string) string {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if len(ext) < 2 || len(ext) > 5 {
		mediaType, _, _ := strings.Cut(contentType, ";")
		ext = contentTypeExt[strings.TrimSpace(mediaType)]
	}
	return sanitize(key) + ext
}

// sanitize prevents path traversal through keys
func sanitize(input string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", "..", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	input = replacer.Replace(strings.TrimSpace(input))
	input = strings.Trim(input, ".")

	if input == "" {
		input = fmt.Sprintf("image_%d", time.Now().UnixNano())
	}
	if len(input) > 200 {
		input = input[:200]
	}
	return input
}
