// Package runctx carries the identity of one extraction run through a context.
package runctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type key int

const runKey key = 0

// TimestampLayout is the stamp written on every record of a run
const TimestampLayout = time.RFC3339

// Run identifies one extraction run
type Run struct {
	ID        string
	StartTime time.Time
}

// New creates a run starting now
func New() *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartTime: time.Now().UTC(),
	}
}

// Timestamp is the run-wide record timestamp
func (r *Run) Timestamp() string {
	return r.StartTime.Format(TimestampLayout)
}

// Elapsed is the time since the run started
func (r *Run) Elapsed() time.Duration {
	return time.Since(r.StartTime)
}

// With attaches a new run to ctx
func With(ctx context.Context) context.Context {
	return WithRun(ctx, New())
}

// WithRun attaches r to ctx
func WithRun(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, runKey, r)
}

// From returns the run attached to ctx, or a fresh one
func From(ctx context.Context) *Run {
	if r, ok := ctx.Value(runKey).(*Run); ok {
		return r
	}
	return New()
}

// RunError wraps an error with the run id
type RunError struct {
	RunID string
	Err   error
}

// Error implements the error interface
func (e *RunError) Error() string {
	return fmt.Sprintf("[%s] %v", e.RunID, e.Err)
}

// Unwrap returns the underlying error
func (e *RunError) Unwrap() error {
	return e.Err
}

// Wrap tags err with the run attached to ctx. A nil err stays nil.
func Wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return &RunError{
		RunID: From(ctx).ID,
		Err:   err,
	}
}
