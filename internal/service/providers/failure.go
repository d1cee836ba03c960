package providers

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a provider call failed. The orchestrator keys
// its retry/fallback decision off the kind, never off error text.
type FailureKind string

const (
	// KindRateLimited means the provider throttled the call. Falls through
	// to the next provider without retrying this one.
	KindRateLimited FailureKind = "rate_limited"
	// KindUnavailable means the provider could not serve the call at all
	// (auth failure, outage, timeout). Falls through to the next provider.
	KindUnavailable FailureKind = "provider_unavailable"
	// KindParse means the provider answered but the payload could not be
	// decoded. Retried on the same provider.
	KindParse FailureKind = "parse_error"
	// KindEmpty means the provider answered cleanly with zero contracts.
	KindEmpty FailureKind = "empty_result"
)

// Failure is a classified provider error.
type Failure struct {
	Kind     FailureKind
	Provider string
	// Transient marks network-level errors worth retrying on the same
	// provider even when Kind is KindUnavailable.
	Transient bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Provider, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Provider, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the same provider should be retried.
func (f *Failure) Retryable() bool {
	return f.Kind == KindParse || f.Transient
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the failure kind for err, defaulting unknown errors to
// KindUnavailable.
func KindOf(err error) FailureKind {
	if f, ok := AsFailure(err); ok {
		return f.Kind
	}
	return KindUnavailable
}
