// Package browser drives headless Chrome sessions through chromedp.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/engine"
	"github.com/law-makers/marketscrape/internal/proxy"
	"github.com/law-makers/marketscrape/internal/ratelimit"
)

var (
	_ engine.Opener  = (*Manager)(nil)
	_ engine.Session = (*Session)(nil)
	_ engine.View    = (*View)(nil)
)

// Options configures every session a Manager opens
type Options struct {
	Headless   bool
	ChromePath string
	UserAgent  string
	Width      int
	Height     int
	// Headers are sent with every request of every view
	Headers    map[string]string
	NavTimeout time.Duration
	OpTimeout  time.Duration
	Proxies    *proxy.Pool
	Limiter    *ratelimit.HostLimiter
	ExtraArgs  []chromedp.ExecAllocatorOption
}

// Manager opens browser sessions. It is safe for concurrent use; every
// session is an independent Chrome process.
type Manager struct {
	opts       Options
	chromePath string
	once       sync.Once
}

// NewManager creates a session manager
func NewManager(opts Options) *Manager {
	if opts.Width <= 0 {
		opts.Width = 1400
	}
	if opts.Height <= 0 {
		opts.Height = 900
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 60 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 30 * time.Second
	}
	return &Manager{opts: opts}
}

func (m *Manager) allocatorOptions(proxyURL string) []chromedp.ExecAllocatorOption {
	m.once.Do(func() {
		m.chromePath = FindChrome(m.opts.ChromePath)
	})

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("log-level", "3"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("window-size", fmt.Sprintf("%d,%d", m.opts.Width, m.opts.Height)),
	}
	if m.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(m.opts.UserAgent))
	}

	if m.chromePath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(m.chromePath)}, allocOpts...)
	}

	if m.opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	if proxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(proxyURL))
	}

	return append(allocOpts, m.opts.ExtraArgs...)
}

// Open launches a browser and warms it up. The next proxy of the pool, if
// any, is used for the whole session.
func (m *Manager) Open(ctx context.Context) (engine.Session, error) {
	start := time.Now()
	proxyURL := m.opts.Proxies.Next()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), m.allocatorOptions(proxyURL)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		opts:          m.opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		proxy:         proxyURL,
	}

	// The first Run allocates the browser and must use the long-lived context
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err == nil {
		// Warm up by loading a blank page
		warmCtx, cancel := context.WithTimeout(browserCtx, m.opts.NavTimeout)
		err = chromedp.Run(warmCtx, chromedp.Navigate("about:blank"))
		cancel()
	}
	if err != nil {
		s.Close()
		m.opts.Proxies.MarkFailed(proxyURL)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	m.opts.Proxies.MarkHealthy(proxyURL)

	log.Debug().
		Str("proxy", proxyURL).
		Dur("elapsed", time.Since(start)).
		Msg("Browser session ready")

	return s, nil
}

// Session is one Chrome process and its tabs
type Session struct {
	opts          Options
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	proxy         string

	mu     sync.Mutex
	closed bool
	tabs   []context.CancelFunc
}

// NewView opens a configured tab
func (s *Session) NewView(ctx context.Context) (engine.View, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, engine.ErrSessionClosed
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	s.tabs = append(s.tabs, cancel)
	s.mu.Unlock()

	// Creating the target also needs the long-lived tab context
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	v := &View{
		tabCtx:  tabCtx,
		cancel:  cancel,
		opts:    s.opts,
		limiter: s.opts.Limiter,
	}
	if err := v.run(ctx, s.opts.OpTimeout, v.setup()...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to configure tab: %w", err)
	}
	return v, nil
}

// Close shuts down every tab and the browser. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, cancel := range s.tabs {
		cancel()
	}
	s.browserCancel()
	s.allocCancel()

	log.Debug().Str("proxy", s.proxy).Msg("Browser session closed")
	return nil
}
