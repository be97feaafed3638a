package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType classifies provider failures.
type ErrorType string

const (
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeBadRequest ErrorType = "bad_request"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error is a classified provider error.
type Error struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s %s error: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another provider may succeed where this one failed.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServer, ErrorTypeTimeout, ErrorTypeNetwork:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// ClassifyStatus maps an HTTP status code to an error type.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == 429:
		return ErrorTypeRateLimit
	case status == 401 || status == 403:
		return ErrorTypeAuth
	case status == 408:
		return ErrorTypeTimeout
	case status >= 500:
		return ErrorTypeServer
	case status >= 400:
		return ErrorTypeBadRequest
	default:
		return ErrorTypeUnknown
	}
}

// Classify wraps err as an *Error. Status is the HTTP status when the SDK
// exposed one, or zero.
func Classify(provider string, status int, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	typ := ClassifyStatus(status)
	if status == 0 {
		var netErr net.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			typ = ErrorTypeTimeout
		case errors.As(err, &netErr) && netErr.Timeout():
			typ = ErrorTypeTimeout
		case errors.As(err, &netErr):
			typ = ErrorTypeNetwork
		}
	}
	return &Error{Type: typ, Provider: provider, Message: err.Error(), Err: err}
}
