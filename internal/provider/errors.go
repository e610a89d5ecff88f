// Package provider defines the failure contract shared by every vendor adapter
// (speech recognition, language models, speech synthesis).
//
// Adapters translate vendor status codes and error bodies into a Category so
// that orchestrators and the pipeline never inspect vendor-specific payloads.
// Adapters never retry; retry policy belongs to the caller.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Category classifies a provider failure.
type Category string

const (
	RateLimited          Category = "rate_limited"
	QuotaExceeded        Category = "quota_exceeded"
	InvalidCredentials   Category = "invalid_credentials"
	InvalidInput         Category = "invalid_input"
	TransientNetwork     Category = "transient_network"
	Unknown              Category = "unknown"
	ConfigurationMissing Category = "configuration_missing"
)

// Error is returned by all provider adapters.
type Error struct {
	Provider   string
	Operation  string
	Category   Category
	StatusCode int    // HTTP status, 0 when not applicable
	Code       string // vendor error code, if any
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, e.Category)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether a later attempt could succeed without user action.
func (e *Error) Temporary() bool {
	return e.Category == RateLimited || e.Category == TransientNetwork
}

// CategoryOf returns the category of the first *Error in err's chain,
// or Unknown when there is none.
func CategoryOf(err error) Category {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return Unknown
}

// RequireCredential fails with ConfigurationMissing when value is empty.
func RequireCredential(providerName, operation, value string) error {
	if value != "" {
		return nil
	}
	return &Error{
		Provider:  providerName,
		Operation: operation,
		Category:  ConfigurationMissing,
		Message:   "credential not configured",
	}
}

// ClassifyStatus maps an HTTP status code to a category.
func ClassifyStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return InvalidCredentials
	case status == http.StatusPaymentRequired:
		return QuotaExceeded
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status == http.StatusBadRequest,
		status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnsupportedMediaType,
		status == http.StatusUnprocessableEntity:
		return InvalidInput
	case status == http.StatusRequestTimeout, status >= 500:
		return TransientNetwork
	default:
		return Unknown
	}
}

// FromStatus builds an Error for a non-2xx HTTP response.
func FromStatus(providerName, operation string, status int, body []byte) *Error {
	return &Error{
		Provider:   providerName,
		Operation:  operation,
		Category:   ClassifyStatus(status),
		StatusCode: status,
		Message:    truncateBody(body),
	}
}

// FromTransport wraps a transport-level failure (DNS, dial, reset, timeout)
// as TransientNetwork. Context cancellation passes through unchanged so the
// caller can tell an abort from a provider failure.
func FromTransport(providerName, operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{
		Provider:  providerName,
		Operation: operation,
		Category:  TransientNetwork,
		Err:       err,
	}
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
