// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/law-makers/marketscrape/internal/assets"
	"github.com/law-makers/marketscrape/internal/browser"
	"github.com/law-makers/marketscrape/internal/config"
	"github.com/law-makers/marketscrape/internal/metrics"
	"github.com/law-makers/marketscrape/internal/output"
	"github.com/law-makers/marketscrape/internal/proxy"
	"github.com/law-makers/marketscrape/internal/ratelimit"
	"github.com/law-makers/marketscrape/internal/trending"
	"github.com/law-makers/marketscrape/internal/utils/headers"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once per command run. Use Close() to release the log file
// and stop the metrics server.
type Application struct {
	Config  *config.Config
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
	Limiter *ratelimit.HostLimiter
	Proxies *proxy.Pool
	Headers map[string]string
	Browser *browser.Manager
	// MetricsAddr is the address the metrics server listens on, if any
	MetricsAddr string

	logFile       io.Closer
	metricsServer *http.Server
	startTime     time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// It configures logging, parses the proxy list and extra headers, creates the
// per-host rate limiter and the browser session manager, and starts the
// metrics server when an address is configured. No browser is started here.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger, logFile, err := SetupLogging(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &Application{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(),
		logFile:   logFile,
		startTime: time.Now(),
	}

	proxies, err := proxy.ParseList(cfg.Network.Proxies)
	if err != nil {
		a.closeLog()
		return nil, fmt.Errorf("invalid proxy list: %w", err)
	}
	a.Proxies = proxy.NewPool(proxies)

	a.Headers, err = headers.Parse(cfg.Network.Headers)
	if err != nil {
		a.closeLog()
		return nil, err
	}

	a.Limiter = ratelimit.NewHostLimiter(cfg.Network.RateLimit, cfg.Network.RateBurst)

	b := cfg.Browser
	a.Browser = browser.NewManager(browser.Options{
		Headless:   b.Headless,
		ChromePath: b.ChromePath,
		UserAgent:  b.UserAgent,
		Width:      b.Width,
		Height:     b.Height,
		Headers:    a.Headers,
		NavTimeout: b.NavTimeout,
		OpTimeout:  b.OpTimeout,
		Proxies:    a.Proxies,
		Limiter:    a.Limiter,
	})

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(ctx, cfg.MetricsAddr); err != nil {
			a.closeLog()
			return nil, err
		}
	}

	logger.Debug().
		Int("proxies", a.Proxies.Len()).
		Int("headers", len(a.Headers)).
		Float64("rate_limit", cfg.Network.RateLimit).
		Bool("headless", b.Headless).
		Msg("Application initialized")
	return a, nil
}

// SetupLogging configures the global zerolog logger: console or JSON on w,
// plus an optional rotating JSON log file. The returned closer is nil when no
// file is used.
func SetupLogging(cfg config.LogConfig, w io.Writer) (*zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = w
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	var closer io.Closer
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	logger.Debug().
		Str("level", level.String()).
		Bool("json", cfg.JSON).
		Str("file", cfg.File).
		Msg("Logger initialized")
	return &logger, closer, nil
}

func (a *Application) serveMetrics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	a.MetricsAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	a.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()

	a.Logger.Info().Str("addr", a.MetricsAddr).Msg("Serving metrics")
	return nil
}

// Sink returns the configured output sink
func (a *Application) Sink() (*output.Sink, error) {
	format, err := output.ParseFormat(a.Config.Output.Format)
	if err != nil {
		return nil, err
	}
	return output.NewSink(a.Config.Output.Dir, format)
}

// Trending returns a client for the trending API
func (a *Application) Trending() *trending.Client {
	t := a.Config.Trending
	return trending.New(trending.Options{
		URL:       t.URL,
		UserAgent: a.Config.Browser.UserAgent,
		Timeout:   t.Timeout,
		Attempts:  t.Attempts,
		Backoff:   t.Backoff,
		Limiter:   a.Limiter,
		Metrics:   a.Metrics,
	})
}

// Assets returns an image fetcher writing into <output>/images
func (a *Application) Assets() *assets.Fetcher {
	return assets.New(assets.Options{
		Dir:         filepath.Join(a.Config.Output.Dir, "images"),
		UserAgent:   a.Config.Browser.UserAgent,
		Headers:     a.Headers,
		Timeout:     a.Config.Browser.OpTimeout,
		Concurrency: a.Config.Output.ImageConcurrency,
		Limiter:     a.Limiter,
		Metrics:     a.Metrics,
	})
}

// Close gracefully shuts down the metrics server and the log file.
// A context with a timeout should be provided to bound the server shutdown.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	if err := a.closeLog(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Application) closeLog() error {
	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	return err
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
