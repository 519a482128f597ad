package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/marketscrape/internal/extract"
	"github.com/law-makers/marketscrape/internal/metrics"
	"github.com/law-makers/marketscrape/internal/retry"
	"github.com/law-makers/marketscrape/internal/runctx"
)

// SampleOptions configures a Sampler
type SampleOptions struct {
	ScrollSteps    int
	SnapshotStride int
	// StableSnapshots stops the loop early after this many consecutive
	// snapshots that add no new keys. Zero runs the full step budget.
	StableSnapshots int
	StepDelay       time.Duration
	FocusDelay      time.Duration
	SettleDelay     time.Duration
	Retries         int
	RetryCooldown   time.Duration
}

// DefaultSampleOptions returns the options used by the scroll command
func DefaultSampleOptions() SampleOptions {
	return SampleOptions{
		ScrollSteps:    150,
		SnapshotStride: 5,
		StepDelay:      100 * time.Millisecond,
		FocusDelay:     500 * time.Millisecond,
		SettleDelay:    3 * time.Second,
		Retries:        2,
		RetryCooldown:  5 * time.Second,
	}
}

// StepEvent is reported after every snapshot
type StepEvent struct {
	Attempt int
	Step    int
	Visible int
	Added   int
	Total   int
}

// Sampler reconstructs a virtualized list by scrolling it and merging
// periodic snapshots of the rendered rows
type Sampler struct {
	opener  Opener
	asm     *extract.Assembler
	opts    SampleOptions
	metrics *metrics.Metrics
	sleep   Sleeper
	onStep  func(StepEvent)
}

// NewSampler creates a sampler. Magnitude fields are parsed once, after
// sampling.
func NewSampler(opener Opener, asm *extract.Assembler, opts SampleOptions) *Sampler {
	if opts.SnapshotStride < 1 {
		opts.SnapshotStride = 1
	}
	return &Sampler{
		opener: opener,
		asm:    asm.Deferred(),
		opts:   opts,
		sleep:  Sleep,
	}
}

// WithMetrics attaches Prometheus collectors
func (s *Sampler) WithMetrics(m *metrics.Metrics) *Sampler {
	s.metrics = m
	return s
}

// WithSleeper replaces the wait function
func (s *Sampler) WithSleeper(fn Sleeper) *Sampler {
	s.sleep = fn
	return s
}

// OnStep registers a progress callback
func (s *Sampler) OnStep(fn func(StepEvent)) *Sampler {
	s.onStep = fn
	return s
}

// Options returns the sampler's options
func (s *Sampler) Options() SampleOptions {
	return s.opts
}

// Run samples the list, retrying the whole scroll session on failure. The
// accumulator survives retries. Records come back sorted by rank with
// magnitude fields converted; the error is set only for fatal conditions.
func (s *Sampler) Run(ctx context.Context) (*Result, error) {
	run := runctx.From(ctx)
	schema := s.asm.Schema()
	logger := log.With().
		Str("run_id", run.ID).
		Str("schema", schema.Name).
		Logger()

	start := time.Now()
	res := &Result{State: StateReady}
	acc := NewAccumulator(schema.Key)

	cfg := retry.Config{
		MaxAttempts:    s.opts.Retries + 1,
		Backoff:        retry.Constant,
		InitialBackoff: s.opts.RetryCooldown,
		Sleep:          s.sleep,
		OnRetry: func(int, time.Duration, error) {
			res.State = StateRetrying
			s.metrics.IncRetries()
		},
	}

	err := retry.Do(ctx, cfg, func(attempt int) error {
		res.State = StateFetching
		res.LastPage = attempt
		err := s.attempt(ctx, logger, run.Timestamp(), attempt, acc, res)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case IsFatal(err):
			return retry.Permanent(err)
		}

		// every other failure is retried on a fresh session
		res.Failures++
		code := Classify(err)
		s.metrics.IncError(string(code))
		logger.Warn().
			Err(err).
			Str("code", string(code)).
			Int("attempt", attempt).
			Int("accumulated", acc.Len()).
			Msg("Sampling attempt failed")
		return err
	})

	var fatal error
	switch {
	case err == nil:
		res.State = StateDone
		res.Pages++
		res.Failures = 0
	case ctx.Err() != nil:
		res.State = StateAborted
		res.Err = ctx.Err()
	case IsFatal(err):
		fatal = retry.Unwrap(err)
		res.State = StateAborted
		res.Err = fatal
	default:
		res.State = StateAborted
		res.Err = fmt.Errorf("%w: %w", ErrBudgetExceeded, err)
	}

	res.Records = acc.Records()
	extract.SortByRank(res.Records, schema.RankField)
	for _, rec := range res.Records {
		s.asm.Finalize(rec)
	}
	s.metrics.AddRecords(len(res.Records))
	res.Elapsed = time.Since(start)

	logger.Info().
		Str("state", res.State.String()).
		Int("rows", len(res.Records)).
		Dur("elapsed", res.Elapsed).
		Msg("Sampling finished")

	return res, fatal
}

func (s *Sampler) attempt(ctx context.Context, logger zerolog.Logger, timestamp string, attempt int, acc *Accumulator, res *Result) error {
	session, err := s.opener.Open(ctx)
	if err != nil {
		return Fatal("failed to open session", err)
	}
	defer session.Close()
	res.Sessions++
	s.metrics.IncSessions()

	view, err := session.NewView(ctx)
	if err != nil {
		return Fatal("failed to open view", err)
	}

	schema := s.asm.Schema()
	logger.Debug().Str("url", schema.URL).Int("attempt", attempt).Msg("Opening list")

	if err := view.Navigate(ctx, schema.URL); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return err
	}
	if err := view.WaitVisible(ctx, schema.Container); err != nil {
		return NewEngineError(ErrCodeNotFound, "container did not appear", err)
	}
	if err := view.Click(ctx, schema.Container); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.opts.FocusDelay); err != nil {
		return err
	}

	stable := 0
	for step := 0; step < s.opts.ScrollSteps; step++ {
		if err := view.Advance(ctx); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.opts.StepDelay); err != nil {
			return err
		}
		if step%s.opts.SnapshotStride != 0 {
			continue
		}

		html, err := view.OuterHTML(ctx, schema.Container)
		if err != nil {
			return err
		}
		rows, err := s.asm.Rows(html, timestamp)
		if err != nil {
			return err
		}
		added := acc.Merge(rows)
		s.metrics.Snapshot(acc.Len())

		logger.Debug().
			Int("step", step).
			Int("visible", len(rows)).
			Int("added", added).
			Int("total", acc.Len()).
			Msg("Snapshot")
		if s.onStep != nil {
			s.onStep(StepEvent{Attempt: attempt, Step: step, Visible: len(rows), Added: added, Total: acc.Len()})
		}

		if s.opts.StableSnapshots > 0 {
			if added == 0 {
				stable++
			} else {
				stable = 0
			}
			if stable >= s.opts.StableSnapshots {
				logger.Info().Int("step", step).Int("total", acc.Len()).Msg("List stable, stopping early")
				return nil
			}
		}
	}
	return nil
}
