package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Kind categorizes every failure the pipeline can produce.
type Kind string

const (
	KindParse           Kind = "PARSE"
	KindBudgetExceeded  Kind = "BUDGET_EXCEEDED"
	KindNoUsablePatch   Kind = "NO_USABLE_PATCH"
	KindPatchApply      Kind = "PATCH_APPLY"
	KindUnknownStrategy Kind = "UNKNOWN_STRATEGY"
	KindRateLimit       Kind = "RATE_LIMIT"
	KindGit             Kind = "GIT"
	KindState           Kind = "STATE"
)

// Error is the single tagged error type used across the pipeline. Details
// carries structured context (paths, estimates, strategy names) so callers
// can act on a failure without re-deriving state.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any

	// RetryAfter is a server-suggested delay, set only for KindRateLimit.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is allows errors.Is matching against a bare &Error{Kind: k}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Detail returns a structured detail value by key, or nil.
func Detail(err error, key string) any {
	var e *Error
	if stderrors.As(err, &e) && e.Details != nil {
		return e.Details[key]
	}
	return nil
}

func Parse(message string, cause error) *Error {
	return &Error{Kind: KindParse, Message: message, cause: cause}
}

func BudgetExceeded(estimated, ceiling int) *Error {
	return &Error{
		Kind:    KindBudgetExceeded,
		Message: fmt.Sprintf("estimated %d tokens exceeds hard ceiling %d", estimated, ceiling),
		Details: map[string]any{"estimated": estimated, "ceiling": ceiling},
	}
}

func NoUsablePatch(message string) *Error {
	return &Error{Kind: KindNoUsablePatch, Message: message}
}

func PatchApply(message string, archivePath string, cause error) *Error {
	return &Error{
		Kind:    KindPatchApply,
		Message: message,
		Details: map[string]any{"archive": archivePath},
		cause:   cause,
	}
}

func UnknownStrategy(name string) *Error {
	return &Error{
		Kind:    KindUnknownStrategy,
		Message: fmt.Sprintf("unknown conflict strategy %q", name),
		Details: map[string]any{"strategy": name},
	}
}

func RateLimit(message string, retryAfter time.Duration, cause error) *Error {
	return &Error{Kind: KindRateLimit, Message: message, RetryAfter: retryAfter, cause: cause}
}

func Git(message string, details map[string]any, cause error) *Error {
	return &Error{Kind: KindGit, Message: message, Details: details, cause: cause}
}

func State(message string, cause error) *Error {
	return &Error{Kind: KindState, Message: message, cause: cause}
}
