// Package resilience provides the closed failure taxonomy, retry policy and
// circuit breaker used around external source calls.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// FailureKind classifies every failure an adapter or parser can surface.
// The retry decision is a function of the kind alone, never of the
// underlying error type.
type FailureKind string

const (
	KindTimeout           FailureKind = "timeout"
	KindRateLimited       FailureKind = "rate_limited"
	KindTransientNetwork  FailureKind = "transient_network"
	KindAuthExpired       FailureKind = "auth_expired"
	KindRecordNotFound    FailureKind = "record_not_found"
	KindMalformedResponse FailureKind = "malformed_response"
	KindInvalidIdentity   FailureKind = "invalid_identity"
)

// Retryable reports whether the kind is safe to retry by default.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindTransientNetwork:
		return true
	default:
		return false
	}
}

// Failure is a classified error from a source pipeline.
type Failure struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure creates a classified failure without an underlying cause.
func NewFailure(kind FailureKind, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail}
}

// WrapFailure classifies an underlying error.
func WrapFailure(kind FailureKind, err error, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the failure kind from an error chain. Unclassified errors
// fall back to network-level heuristics: timeouts and connection-level
// failures are treated as transient, anything else as a malformed response.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}

	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return KindTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return KindTransientNetwork
		}
	}

	return KindMalformedResponse
}

// IsRetryable reports whether the error classifies to a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// KindForHTTPStatus maps an HTTP status code onto the failure taxonomy.
// An empty kind means the status is not a failure signal.
func KindForHTTPStatus(statusCode int) FailureKind {
	switch {
	case statusCode == 404 || statusCode == 410:
		return KindRecordNotFound
	case statusCode == 401 || statusCode == 403:
		return KindAuthExpired
	case statusCode == 429:
		return KindRateLimited
	case statusCode == 408 || statusCode == 504:
		return KindTimeout
	case statusCode >= 500:
		return KindTransientNetwork
	default:
		return ""
	}
}
