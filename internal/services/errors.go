package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Run-level taxonomy.
var (
	ErrComputeFailed          = errors.New("compute failed")
	ErrStoreUnavailable       = errors.New("artifact store unavailable")
	ErrFingerprintCollision   = errors.New("fingerprint collision detected")
	ErrPartialLanguageFailure = errors.New("partial language failure")
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// Classification markers. The first three are transient and worth retrying.
var (
	ErrTransient      = errors.New("transient failure")
	ErrTimeout        = errors.New("timeout")
	ErrRateLimited    = errors.New("rate limited")
	ErrValidation     = errors.New("validation error")
	ErrRejected       = errors.New("rejected by provider")
	ErrConfiguration  = errors.New("configuration error")
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err is worth another attempt. Per-call deadlines
// count as transient; run cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if isPermanent(err) {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrFingerprintCollision)
}

// IsFatal reports whether err invalidates the cache guarantees for the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrFingerprintCollision)
}

// Kind returns a stable label for err suitable for manifests and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFingerprintCollision):
		return "fingerprint_collision"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// RetryAfterError carries a provider supplied retry hint.
type RetryAfterError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retry after %s", e.Delay)
	}
	return e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter extracts a provider retry hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var hinted *RetryAfterError
	if errors.As(err, &hinted) && hinted.Delay > 0 {
		return hinted.Delay, true
	}
	return 0, false
}

// ComputeError reports a failed stage computation. It matches both
// ErrComputeFailed and its cause under errors.Is.
type ComputeError struct {
	Stage       string
	Language    string
	Fingerprint string
	Err         error
}

func (e *ComputeError) Error() string {
	detail := buildDetail(e.Stage, e.Language, shortFingerprint(e.Fingerprint))
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrComputeFailed, detail)
	}
	return fmt.Sprintf("%s: %s: %v", ErrComputeFailed, detail, e.Err)
}

func (e *ComputeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrComputeFailed}
	}
	return []error{ErrComputeFailed, e.Err}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
