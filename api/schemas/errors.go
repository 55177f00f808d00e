package schemas

import (
	"errors"
	"fmt"
)

// ErrElementNotFound is the sentinel a page implementation returns when a
// selector matches nothing within one attempt. The resilient extractor
// treats it as retryable; it must never escape to a recipe.
var ErrElementNotFound = errors.New("element not found")

// PersistenceError reports an I/O failure while saving or loading the
// session artifact. A failed save leaves any prior artifact untouched.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session persistence failed for %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptSessionError reports an artifact file that exists but cannot be
// parsed. The loader never returns a partially valid artifact.
type CorruptSessionError struct {
	Path string
	Err  error
}

func (e *CorruptSessionError) Error() string {
	return fmt.Sprintf("session artifact %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptSessionError) Unwrap() error { return e.Err }

// AuthenticationError means no authenticated session could be established:
// the stored artifact was rejected and manual login did not complete
// within the poll budget.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// RateLimitError means the remote side signaled throttling. The core
// never retries it; backoff policy belongs to the caller.
type RateLimitError struct {
	URL string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited at %s", e.URL)
}

// NavigationError reports a page load that failed or timed out.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// InteractionError reports a required interaction (a click, not an
// optional field read) that failed after its retry budget.
type InteractionError struct {
	Locator  string
	Attempts int
	Err      error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("interaction with %s failed after %d attempts: %v", e.Locator, e.Attempts, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }

// ScrapingError wraps a recipe-level failure with the target it occurred
// on, preserving the original cause for diagnostics.
type ScrapingError struct {
	Target string
	Err    error
}

func (e *ScrapingError) Error() string {
	return fmt.Sprintf("scraping %s failed: %v", e.Target, e.Err)
}

func (e *ScrapingError) Unwrap() error { return e.Err }

// ErrorKind maps an error to its taxonomy name for event tagging. Wrapped
// errors are unwrapped; anything outside the taxonomy reports "unknown".
func ErrorKind(err error) string {
	var (
		persistence *PersistenceError
		corrupt     *CorruptSessionError
		auth        *AuthenticationError
		rateLimit   *RateLimitError
		navigation  *NavigationError
		interaction *InteractionError
		scraping    *ScrapingError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rateLimit):
		return "rate_limited"
	case errors.As(err, &auth):
		return "authentication"
	case errors.As(err, &navigation):
		return "navigation"
	case errors.As(err, &interaction):
		return "interaction"
	case errors.As(err, &corrupt):
		return "corrupt_session"
	case errors.As(err, &persistence):
		return "persistence"
	case errors.As(err, &scraping):
		return "scraping"
	default:
		return "unknown"
	}
}
