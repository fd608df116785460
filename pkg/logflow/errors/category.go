// Package errors provides the error taxonomy shared by channels, selectors,
// interceptors and the channel processor.
//
// Errors fall into three handling categories:
//   - Transient: the operation may succeed if retried (channel full).
//   - Permanent: the operation failed; the caller decides whether to retry.
//   - Fatal: a programming or configuration error. Never retried, never
//     swallowed, even on best-effort delivery paths.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: channel capacity or byte budget exhausted.
	CategoryTransient Category = iota

	// CategoryPermanent indicates the operation failed and a plain retry
	// is not expected to help without outside change.
	CategoryPermanent

	// CategoryFatal indicates misuse of an API or broken configuration.
	// Examples: wrong-worker access, illegal transaction state, unknown
	// component type.
	CategoryFatal
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Fatal creates a fatal error.
func Fatal(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryFatal, context)
}

// Categorize determines how an error should be handled.
// Usage and configuration errors are checked first so that a fatal cause
// wrapped inside a channel error still escalates.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return CategoryFatal
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return CategoryFatal
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var fullErr *ChannelFullError
	if errors.As(err, &fullErr) {
		return CategoryTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsFatal reports whether the error must always propagate.
func IsFatal(err error) bool {
	return Categorize(err) == CategoryFatal
}
