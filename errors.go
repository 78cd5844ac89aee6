package agentcore

import (
	"context"
	"errors"
)

// Error is the typed failure surfaced by providers. Transport, HTTP, and
// decode failures all arrive as *Error so callers never see raw transport
// errors.
type Error struct {
	Provider  string
	Code      string
	Status    int
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Provider != "" && e.Message != "" {
		return e.Provider + ": " + e.Message
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Provider != "" {
		return e.Provider + ": error"
	}
	return "error"
}

func (e *Error) Unwrap() error { return e.Cause }

// Error codes shared across providers.
const (
	CodeNetwork   = "network_error"
	CodeHTTP      = "http_error"
	CodeDecode    = "decode_error"
	CodeConfig    = "config_error"
	CodeTimeout   = "timeout"
	CodeCanceled  = "canceled"
	CodeRateLimit = "rate_limited"
)

// IsNetwork reports whether err is a transport or HTTP failure.
func IsNetwork(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Code == CodeNetwork || e.Code == CodeHTTP || e.Code == CodeTimeout || e.Status >= 400)
}

// IsSerialization reports whether err is a response that failed to decode
// into the expected shape.
func IsSerialization(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeDecode
}

// IsConfig reports whether err is a missing/invalid credential or an unknown
// model identifier.
func IsConfig(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeConfig
}

func IsRateLimited(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Status == 429 || e.Code == CodeRateLimit)
}

func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeTimeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func IsCanceled(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeCanceled {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// IsRetryable reports whether a provider failure is worth one more attempt.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
