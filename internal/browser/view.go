package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/law-makers/marketscrape/internal/engine"
	"github.com/law-makers/marketscrape/internal/ratelimit"
)

// hides the automation flag from page scripts
const stealthScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// View is one tab. Every action is bounded by the navigation or operation
// timeout and by the caller's context.
type View struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	opts    Options
	limiter *ratelimit.HostLimiter
}

func (v *View) setup() []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(v.opts.Width), int64(v.opts.Height), 1, false),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if v.opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(v.opts.UserAgent))
	}
	if len(v.opts.Headers) > 0 {
		headers := make(network.Headers, len(v.opts.Headers))
		for k, val := range v.opts.Headers {
			headers[k] = val
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	return actions
}

// run executes actions on the tab. The caller's ctx cancels the actions
// without tearing down the tab.
func (v *View) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(v.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case v.tabCtx.Err() != nil:
		return engine.NewEngineError(engine.ErrCodeBrowserCrash, "browser is gone", errors.Join(engine.ErrSessionClosed, err))
	case errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return engine.NewEngineError(engine.ErrCodeTimeout, fmt.Sprintf("no result within %s", timeout), err)
	default:
		return err
	}
}

// Navigate loads url, waiting on the host rate limit first
func (v *View) Navigate(ctx context.Context, url string) error {
	if err := v.limiter.Wait(ctx, url); err != nil {
		return err
	}
	return v.run(ctx, v.opts.NavTimeout, chromedp.Navigate(url))
}

// Exists reports whether selector currently matches
func (v *View) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	expr := fmt.Sprintf("document.querySelector(%s) !== null", strconv.Quote(selector))
	if err := v.run(ctx, v.opts.OpTimeout, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

// WaitVisible blocks until selector is visible
func (v *View) WaitVisible(ctx context.Context, selector string) error {
	return v.run(ctx, v.opts.OpTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// OuterHTML returns the markup of the first element matching selector
func (v *View) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := v.run(ctx, v.opts.OpTimeout, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Click clicks the first element matching selector
func (v *View) Click(ctx context.Context, selector string) error {
	return v.run(ctx, v.opts.OpTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

// Advance presses the down arrow on the focused element
func (v *View) Advance(ctx context.Context) error {
	return v.run(ctx, v.opts.OpTimeout, chromedp.KeyEvent(kb.ArrowDown))
}

// Close closes the tab
func (v *View) Close() error {
	v.cancel()
	return nil
}
