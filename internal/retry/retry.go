// Package retry runs operations again after a backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Backoff selects how the wait grows between attempts
type Backoff string

const (
	Constant    Backoff = "constant"    // InitialBackoff every time
	Linear      Backoff = "linear"      // InitialBackoff * attempt
	Exponential Backoff = "exponential" // InitialBackoff * Multiplier^(attempt-1)
)

// Config defines retry behavior
type Config struct {
	MaxAttempts          int           // Maximum number of attempts, including the first
	Backoff              Backoff       // Backoff strategy, exponential when empty
	InitialBackoff       time.Duration // Initial backoff duration
	MaxBackoff           time.Duration // Maximum backoff duration, unbounded when zero
	Multiplier           float64       // Backoff multiplier for exponential backoff
	RetryableStatusCodes []int         // HTTP status codes that should trigger retry; empty retries all

	// Sleep waits between attempts; tests replace it
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultConfig returns a sensible default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		Backoff:        Exponential,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
	}
}

// LinearConfig waits base*attempt after each failed attempt
func LinearConfig(attempts int, base time.Duration) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.Backoff = Linear
	cfg.InitialBackoff = base
	cfg.MaxBackoff = 0
	return cfg
}

// ErrExhausted is wrapped by the error returned after the last attempt
var ErrExhausted = errors.New("retry attempts exhausted")

// Do executes fn with retry logic. fn receives the 1-based attempt number.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = wait
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)

		// Success
		if err == nil {
			if attempt > 1 {
				log.Debug().
					Int("attempts", attempt).
					Msg("Retry succeeded")
			}
			return nil
		}

		lastErr = err

		if !shouldRetry(err, cfg) {
			log.Debug().
				Err(err).
				Msg("Error is not retryable")
			return err
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxAttempts {
			backoff := calculateBackoff(attempt, cfg)

			log.Debug().
				Int("attempt", attempt).
				Int("max_attempts", cfg.MaxAttempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("Retrying after backoff")

			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, backoff, err)
			}
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
		}
	}

	log.Warn().
		Int("attempts", cfg.MaxAttempts).
		Err(lastErr).
		Msg("Max retry attempts exceeded")

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calculateBackoff calculates the wait after the given 1-based attempt
func calculateBackoff(attempt int, cfg Config) time.Duration {
	var backoff float64
	switch cfg.Backoff {
	case Constant:
		backoff = float64(cfg.InitialBackoff)
	case Linear:
		backoff = float64(cfg.InitialBackoff) * float64(attempt)
	default:
		mult := cfg.Multiplier
		if mult <= 0 {
			mult = 2
		}
		backoff = float64(cfg.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	}

	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}

// shouldRetry determines if an error is retryable
func shouldRetry(err error, cfg Config) bool {
	if err == nil {
		return false
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Errors carrying an HTTP status are retried only for listed codes
	var sc StatusCoder
	if errors.As(err, &sc) && len(cfg.RetryableStatusCodes) > 0 {
		statusCode := sc.GetStatusCode()
		for _, code := range cfg.RetryableStatusCodes {
			if statusCode == code {
				return true
			}
		}
		return false
	}

	// Default: retry (timeouts, connection resets, decode failures)
	return true
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

// StatusCoder is an interface for errors that provide an HTTP status code
type StatusCoder interface {
	GetStatusCode() int
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

func (e HTTPError) GetStatusCode() int {
	return e.StatusCode
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, status string, message string) HTTPError {
	return HTTPError{
		StatusCode: statusCode,
		Status:     status,
		Message:    message,
	}
}

// PermanentError stops retrying immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Unwrap strips the Permanent marker from err
func Unwrap(err error) error {
	if perm, ok := err.(*PermanentError); ok {
		return perm.Err
	}
	return err
}
