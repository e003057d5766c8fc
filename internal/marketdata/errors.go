package marketdata

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a failed provider fetch. The classification decides
// how long the negative cache blocks retries for the ticker.
type FailureKind string

const (
	// FailureNotFound - the provider has no coverage for the ticker.
	FailureNotFound FailureKind = "not_found"
	// FailureRateLimited - the provider refused the call due to quota.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureAPIError - transport errors, timeouts, 5xx and anything else.
	FailureAPIError FailureKind = "api_error"
)

// ProviderError is a classified error from an external price provider.
type ProviderError struct {
	Kind    FailureKind
	Source  string // provider name
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Source, e.Message, e.Kind)
}

// NewNotFound creates a not_found provider error.
func NewNotFound(source, ticker string) *ProviderError {
	return &ProviderError{
		Kind:    FailureNotFound,
		Source:  source,
		Message: fmt.Sprintf("no data for ticker %s", ticker),
	}
}

// NewRateLimited creates a rate_limited provider error.
func NewRateLimited(source, message string) *ProviderError {
	return &ProviderError{Kind: FailureRateLimited, Source: source, Message: message}
}

// NewAPIError creates an api_error provider error.
func NewAPIError(source, message string) *ProviderError {
	return &ProviderError{Kind: FailureAPIError, Source: source, Message: message}
}

// AsProviderError extracts a ProviderError from an error chain.
// Unclassified errors (including context deadline errors from a timed-out
// call) are wrapped as api_error so the negative cache always has a kind
// to derive a retry window from.
func AsProviderError(err error, source string) *ProviderError {
	if err == nil {
		return nil
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewAPIError(source, "provider call timed out")
	}

	return NewAPIError(source, err.Error())
}
