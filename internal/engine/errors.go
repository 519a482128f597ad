package engine

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrEndOfData      = errors.New("no more rows")
	ErrNoRows         = errors.New("rows not found")
	ErrBudgetExceeded = errors.New("retry budget exhausted")
)

// ErrorCode classifies why a page or attempt failed
type ErrorCode string

const (
	ErrCodeTransient    ErrorCode = "TRANSIENT"
	ErrCodeEndOfData    ErrorCode = "END_OF_DATA"
	ErrCodeFatal        ErrorCode = "FATAL"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeBrowserCrash ErrorCode = "BROWSER_CRASH"
)

// EngineError is a classified failure. Retry is true when another attempt
// on the same session may succeed; Page is zero when not tied to a page.
type EngineError struct {
	Code  ErrorCode
	Msg   string
	Err   error
	Page  int
	Retry bool
}

// NewEngineError classifies err. Transient, timeout and not-found failures
// are retried locally; the rest are not.
func NewEngineError(code ErrorCode, msg string, err error) *EngineError {
	return &EngineError{
		Code:  code,
		Msg:   msg,
		Err:   err,
		Retry: code == ErrCodeTransient || code == ErrCodeTimeout || code == ErrCodeNotFound,
	}
}

// Fatal wraps err as a run-ending error
func Fatal(msg string, err error) *EngineError {
	return NewEngineError(ErrCodeFatal, msg, err)
}

// AtPage records the page the failure happened on
func (e *EngineError) AtPage(page int) *EngineError {
	e.Page = page
	return e
}

func (e *EngineError) Error() string {
	msg := string(e.Code) + ": " + e.Msg
	if e.Page > 0 {
		msg += fmt.Sprintf(" (page %d)", e.Page)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is matches another *EngineError by code
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// Classify maps an arbitrary page error onto an engine error code
func Classify(err error) ErrorCode {
	var ee *EngineError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ee):
		return ee.Code
	case errors.Is(err, ErrEndOfData):
		return ErrCodeEndOfData
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, ErrSessionClosed), errors.Is(err, context.Canceled):
		return ErrCodeBrowserCrash
	case errors.Is(err, ErrNoRows):
		return ErrCodeNotFound
	default:
		return ErrCodeTransient
	}
}

// Retryable reports whether err is worth another attempt on the same
// session. Unclassified errors are.
func Retryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retry
	}
	switch Classify(err) {
	case ErrCodeEndOfData, ErrCodeBrowserCrash:
		return false
	}
	return true
}

// IsFatal reports whether err ends the run
func IsFatal(err error) bool {
	return Classify(err) == ErrCodeFatal
}
