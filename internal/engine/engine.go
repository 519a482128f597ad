package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/law-makers/marketscrape/pkg/models"
)

// Opener creates rendering sessions. Each call returns a fresh, independent
// session.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one live rendering context. Close must be idempotent.
type Session interface {
	NewView(ctx context.Context) (View, error)
	Close() error
}

// View is a single page inside a session
type View interface {
	// Navigate loads url and returns once the DOM is ready
	Navigate(ctx context.Context, url string) error
	// Exists reports whether selector matches now, without waiting
	Exists(ctx context.Context, selector string) (bool, error)
	// WaitVisible blocks until selector is visible or the operation times out
	WaitVisible(ctx context.Context, selector string) error
	// OuterHTML returns the markup of the first match of selector
	OuterHTML(ctx context.Context, selector string) (string, error)
	// Click focuses and clicks the first match of selector
	Click(ctx context.Context, selector string) error
	// Advance sends one scroll step (a down-arrow key press)
	Advance(ctx context.Context) error
}

// State of a run's controller
type State int

const (
	StateReady State = iota
	StateFetching
	StateRetrying
	StateSuccess
	StateAborted
	StateDone
)

var stateNames = map[State]string{
	StateReady:    "ready",
	StateFetching: "fetching",
	StateRetrying: "retrying",
	StateSuccess:  "success",
	StateAborted:  "aborted",
	StateDone:     "done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether the run has finished
func (s State) Terminal() bool {
	return s == StateAborted || s == StateDone
}

// Result of a run. Records hold everything extracted before the run ended,
// whatever the terminal state.
type Result struct {
	Records []*models.Record
	State   State
	// Pages is the number of pages (or sampler attempts) that produced rows
	Pages int
	// LastPage is the last cursor the controller worked on
	LastPage int
	// Failures is the consecutive failure count at the end of the run
	Failures int
	Sessions int
	// Err is the failure that aborted the run, if any
	Err     error
	Elapsed time.Duration
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jitter returns a random duration in [min, max]
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min+1)))
}
