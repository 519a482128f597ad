package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/extract"
	"github.com/law-makers/marketscrape/internal/metrics"
	"github.com/law-makers/marketscrape/internal/retry"
	"github.com/law-makers/marketscrape/internal/runctx"
	"github.com/law-makers/marketscrape/pkg/models"
)

// PageOptions configures a Paginator
type PageOptions struct {
	StartPage int
	MaxPage   int
	// RecycleInterval is the number of pages served by one session before it
	// is replaced. Zero disables recycling.
	RecycleInterval  int
	PageRetries      int
	FailureThreshold int
	RetryCooldown    time.Duration
	FailureCooldown  time.Duration
	SettleDelay      time.Duration
	DelayMin         time.Duration
	DelayMax         time.Duration
}

// DefaultPageOptions returns the options used by the listing command
func DefaultPageOptions() PageOptions {
	return PageOptions{
		StartPage:        1,
		MaxPage:          100,
		RecycleInterval:  10,
		PageRetries:      2,
		FailureThreshold: 3,
		RetryCooldown:    5 * time.Second,
		FailureCooldown:  10 * time.Second,
		SettleDelay:      3 * time.Second,
		DelayMin:         2 * time.Second,
		DelayMax:         4 * time.Second,
	}
}

// PageEvent is reported after every page outcome
type PageEvent struct {
	Page    int
	Rows    int
	Total   int
	State   State
	Attempt int
	Err     error
}

// Paginator walks a paginated listing page by page on one session at a time
type Paginator struct {
	opener  Opener
	asm     *extract.Assembler
	opts    PageOptions
	metrics *metrics.Metrics
	sleep   Sleeper
	onPage  func(PageEvent)
}

// NewPaginator creates a paginator
func NewPaginator(opener Opener, asm *extract.Assembler, opts PageOptions) *Paginator {
	return &Paginator{
		opener: opener,
		asm:    asm,
		opts:   opts,
		sleep:  Sleep,
	}
}

// WithMetrics attaches Prometheus collectors
func (p *Paginator) WithMetrics(m *metrics.Metrics) *Paginator {
	p.metrics = m
	return p
}

// WithSleeper replaces the wait function
func (p *Paginator) WithSleeper(s Sleeper) *Paginator {
	p.sleep = s
	return p
}

// OnPage registers a progress callback
func (p *Paginator) OnPage(fn func(PageEvent)) *Paginator {
	p.onPage = fn
	return p
}

// Options returns the paginator's options
func (p *Paginator) Options() PageOptions {
	return p.opts
}

// pageRun is the mutable state of one Run
type pageRun struct {
	*Paginator
	logger       zerolog.Logger
	timestamp    string
	session      Session
	view         View
	sessionPages int
	res          *Result
}

// Run extracts pages from StartPage until a zero-row page, MaxPage, or the
// consecutive failure threshold. The returned Result is never nil and holds
// every row extracted so far. The error is set only for fatal conditions such
// as a session that cannot be opened.
func (p *Paginator) Run(ctx context.Context) (*Result, error) {
	run := runctx.From(ctx)
	r := &pageRun{
		Paginator: p,
		logger: log.With().
			Str("run_id", run.ID).
			Str("schema", p.asm.Schema().Name).
			Logger(),
		timestamp: run.Timestamp(),
		res: &Result{
			State:    StateReady,
			LastPage: p.opts.StartPage,
		},
	}
	start := time.Now()
	defer r.closeSession()

	err := r.loop(ctx)
	r.res.Elapsed = time.Since(start)

	r.logger.Info().
		Str("state", r.res.State.String()).
		Int("pages", r.res.Pages).
		Int("rows", len(r.res.Records)).
		Int("sessions", r.res.Sessions).
		Dur("elapsed", r.res.Elapsed).
		Msg("Pagination finished")

	return r.res, err
}

func (r *pageRun) loop(ctx context.Context) error {
	cursor := r.opts.StartPage
	failures := 0

	for cursor <= r.opts.MaxPage {
		if err := ctx.Err(); err != nil {
			r.abort(err)
			return nil
		}

		if r.session == nil || (r.opts.RecycleInterval > 0 && r.sessionPages >= r.opts.RecycleInterval) {
			if err := r.openSession(ctx); err != nil {
				r.abort(err)
				return err
			}
		}

		r.res.LastPage = cursor
		rows, attempt, err := r.fetchWithRetry(ctx, cursor)
		if errors.Is(err, ErrEndOfData) {
			r.logger.Info().Int("page", cursor).Msg("No rows found, stopping")
			r.res.State = StateDone
			r.notify(PageEvent{Page: cursor, State: StateDone, Attempt: attempt})
			return nil
		}
		if err == nil {
			r.res.Records = append(r.res.Records, rows...)
			r.res.Pages++
			r.sessionPages++
			failures = 0
			r.res.Failures = 0
			r.res.State = StateSuccess
			r.metrics.AddRecords(len(rows))

			r.logger.Info().
				Int("page", cursor).
				Int("rows", len(rows)).
				Int("total", len(r.res.Records)).
				Msg("Page extracted")
			r.notify(PageEvent{Page: cursor, Rows: len(rows), Total: len(r.res.Records), State: StateSuccess, Attempt: attempt})

			cursor++
			if cursor <= r.opts.MaxPage {
				if err := r.sleep(ctx, jitter(r.opts.DelayMin, r.opts.DelayMax)); err != nil {
					r.abort(err)
					return nil
				}
			}
			continue
		}

		if ctx.Err() != nil {
			r.abort(ctx.Err())
			return nil
		}

		failures++
		r.res.Failures = failures
		code := Classify(err)
		r.metrics.IncError(string(code))
		r.logger.Warn().
			Err(err).
			Int("page", cursor).
			Str("code", string(code)).
			Int("failures", failures).
			Int("threshold", r.opts.FailureThreshold).
			Msg("Page failed")
		r.notify(PageEvent{Page: cursor, Total: len(r.res.Records), State: StateRetrying, Attempt: attempt, Err: err})

		// a propagated failure replaces the session before the next attempt
		r.closeSession()

		if failures >= r.opts.FailureThreshold {
			r.logger.Warn().Int("page", cursor).Msg("Too many consecutive failures, stopping")
			r.abort(fmt.Errorf("%w: %d consecutive failures at page %d: %w", ErrBudgetExceeded, failures, cursor, err))
			return nil
		}

		if err := r.sleep(ctx, r.opts.FailureCooldown); err != nil {
			r.abort(err)
			return nil
		}
	}

	r.res.State = StateDone
	return nil
}

// fetchWithRetry runs one page with the local retry budget. It returns the
// number of attempts made. Failures that another attempt on the same session
// cannot fix are returned at once.
func (r *pageRun) fetchWithRetry(ctx context.Context, page int) ([]*models.Record, int, error) {
	cfg := retry.Config{
		MaxAttempts:    r.opts.PageRetries + 1,
		Backoff:        retry.Constant,
		InitialBackoff: r.opts.RetryCooldown,
		Sleep:          r.sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			r.res.State = StateRetrying
			r.metrics.IncRetries()
			r.logger.Debug().
				Err(err).
				Int("page", page).
				Int("attempt", attempt).
				Dur("cooldown", wait).
				Msg("Retrying page")
		},
	}

	var (
		rows     []*models.Record
		attempts int
	)
	err := retry.Do(ctx, cfg, func(attempt int) error {
		attempts = attempt
		r.res.State = StateFetching

		var err error
		rows, err = r.fetch(ctx, page)
		if err != nil && !Retryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		return nil, attempts, retry.Unwrap(err)
	}
	return rows, attempts, nil
}

func (r *pageRun) fetch(ctx context.Context, page int) (rows []*models.Record, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, ErrEndOfData):
			outcome = "empty"
		case err != nil:
			outcome = "error"
		}
		r.metrics.ObservePage(outcome, time.Since(start))
	}()

	schema := r.asm.Schema()
	url := schema.PageURL(page)
	r.logger.Debug().Int("page", page).Str("url", url).Msg("Fetching page")

	if err := r.view.Navigate(ctx, url); err != nil {
		return nil, err
	}
	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return nil, err
	}

	exists, err := r.view.Exists(ctx, schema.Container)
	if err != nil {
		return nil, err
	}
	if !exists {
		r.logger.Warn().Int("page", page).Str("selector", schema.Container).Msg("Container not found")
		return nil, NewEngineError(ErrCodeEndOfData, "container missing", ErrEndOfData).AtPage(page)
	}

	if err := r.view.WaitVisible(ctx, schema.RowSelector()); err != nil {
		return nil, NewEngineError(ErrCodeNotFound, "rows did not appear", err).AtPage(page)
	}

	html, err := r.view.OuterHTML(ctx, schema.Container)
	if err != nil {
		return nil, err
	}
	rows, err = r.asm.Rows(html, r.timestamp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewEngineError(ErrCodeEndOfData, "no rows", ErrEndOfData).AtPage(page)
	}
	return rows, nil
}

func (r *pageRun) openSession(ctx context.Context) error {
	if r.session != nil {
		r.logger.Debug().Int("pages", r.sessionPages).Msg("Recycling session")
		r.closeSession()
	}

	s, err := r.opener.Open(ctx)
	if err != nil {
		return Fatal("failed to open session", err)
	}
	v, err := s.NewView(ctx)
	if err != nil {
		s.Close()
		return Fatal("failed to open view", err)
	}

	r.session, r.view = s, v
	r.sessionPages = 0
	r.res.Sessions++
	r.metrics.IncSessions()
	return nil
}

func (r *pageRun) closeSession() {
	if r.session == nil {
		return
	}
	if err := r.session.Close(); err != nil {
		r.logger.Debug().Err(err).Msg("Session close failed")
	}
	r.session, r.view = nil, nil
}

func (r *pageRun) abort(err error) {
	r.res.State = StateAborted
	r.res.Err = err
}

func (r *pageRun) notify(ev PageEvent) {
	if r.onPage != nil {
		r.onPage(ev)
	}
}
