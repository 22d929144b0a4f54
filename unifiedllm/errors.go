package unifiedllm

import (
	"errors"
	"fmt"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Provider failures, by cause.
type (
	AuthenticationError struct{ ProviderError }
	AccessDeniedError   struct{ ProviderError }
	NotFoundError       struct{ ProviderError }
	InvalidRequestError struct{ ProviderError }
	RateLimitError      struct{ ProviderError }
	ServerError         struct{ ProviderError }
	ContentFilterError  struct{ ProviderError }
	ContextLengthError  struct{ ProviderError }
	QuotaExceededError  struct{ ProviderError }
)

// Failures that never reached a provider or never got an answer.
type (
	RequestTimeoutError struct{ SDKError }
	AbortError          struct{ SDKError }
	NetworkError        struct{ SDKError }
	ConfigurationError  struct{ SDKError }
)

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		// Unknown errors default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// classified is implemented by every typed error in this package.
type classified interface {
	retryable() bool
}

func (e *ProviderError) retryable() bool { return e.Retryable }

func (*AuthenticationError) retryable() bool { return false }
func (*AccessDeniedError) retryable() bool   { return false }
func (*NotFoundError) retryable() bool       { return false }
func (*InvalidRequestError) retryable() bool { return false }
func (*ContextLengthError) retryable() bool  { return false }
func (*QuotaExceededError) retryable() bool  { return false }
func (*ContentFilterError) retryable() bool  { return false }
func (*ConfigurationError) retryable() bool  { return false }
func (*AbortError) retryable() bool          { return false }
func (*RateLimitError) retryable() bool      { return true }
func (*ServerError) retryable() bool         { return true }
func (*NetworkError) retryable() bool        { return true }
func (*RequestTimeoutError) retryable() bool { return true }

// IsRetryable reports whether err is safe to retry. Wrapped errors are
// classified by the first typed error in their chain; anything untyped is
// assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c classified
	if errors.As(err, &c) {
		return c.retryable()
	}
	return true
}
