package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/provider"
	"github.com/snarg/audiocast/internal/summarize"
	"github.com/snarg/audiocast/internal/transcribe"
	"github.com/snarg/audiocast/internal/voice"
)

// Failure is the user-facing description of a failed run.
type Failure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	// Turn is the 1-based turn whose synthesis failed, 0 otherwise.
	Turn int `json:"turn,omitempty"`
}

const (
	CodeCancelled            = "cancelled"
	CodeConfigurationMissing = "configuration_missing"
	CodeInvalidInput         = "invalid_input"
	CodeUnsupportedLocale    = "unsupported_locale"
	CodeInputTooLong         = "input_too_long"
	CodeInsufficientBalance  = "insufficient_balance"
	CodeRateLimited          = "rate_limited"
	CodeQuotaExceeded        = "quota_exceeded"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeTransient            = "transient_network"
	CodeParseFailure         = "parse_failure"
	CodePartialSynthesis     = "partial_synthesis"
	CodeInternal             = "internal"
	CodeUnknown              = "unknown"
)

var messages = map[string]string{
	CodeCancelled:            "The run was cancelled.",
	CodeConfigurationMissing: "This service is not configured for the selected provider. Please contact the administrator.",
	CodeInvalidInput:         "The input could not be processed. Check the file or text and try again.",
	CodeUnsupportedLocale:    "The selected language is not supported.",
	CodeInputTooLong:         "The input is too long to process.",
	CodeInsufficientBalance:  "Your credit balance is too low for this request.",
	CodeRateLimited:          "The provider is busy right now. Please try again in a moment.",
	CodeQuotaExceeded:        "The provider quota has been used up. Please try again later.",
	CodeInvalidCredentials:   "The provider rejected our credentials. Please contact the administrator.",
	CodeTransient:            "A network problem interrupted processing. Please try again.",
	CodeParseFailure:         "The generated script was not usable. Please try again.",
	CodeInternal:             "An internal error occurred.",
	CodeUnknown:              "Something went wrong. Please try again.",
}

var retryable = map[string]bool{
	CodeRateLimited:  true,
	CodeTransient:    true,
	CodeParseFailure: true,
	CodeUnknown:      true,
}

func failure(code string) Failure {
	return Failure{Code: code, Message: messages[code], Retryable: retryable[code]}
}

// Describe maps an error from any stage into the user-facing Failure.
func Describe(err error) Failure {
	if err == nil {
		return failure(CodeUnknown)
	}

	var se *voice.SynthesisError
	if errors.As(err, &se) {
		inner := Describe(se.Err)
		if inner.Code == CodeCancelled {
			return inner
		}
		return Failure{
			Code:      CodePartialSynthesis,
			Message:   fmt.Sprintf("Voice synthesis failed at turn %d of %d. %s", se.Index+1, se.Total, inner.Message),
			Retryable: inner.Retryable,
			Turn:      se.Index + 1,
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return failure(CodeCancelled)
	case errors.Is(err, transcribe.ErrInsufficientBalance), errors.Is(err, database.ErrInsufficientBalance):
		return failure(CodeInsufficientBalance)
	case errors.Is(err, summarize.ErrInputTooLong), errors.Is(err, dialogue.ErrSourceTooLong):
		return failure(CodeInputTooLong)
	case errors.Is(err, transcribe.ErrUnsupportedLocale), errors.Is(err, summarize.ErrUnsupportedLocale):
		return failure(CodeUnsupportedLocale)
	case errors.Is(err, transcribe.ErrNoAudio), errors.Is(err, summarize.ErrEmptyInput), errors.Is(err, dialogue.ErrEmptySource):
		return failure(CodeInvalidInput)
	case errors.Is(err, dialogue.ErrParseFailure):
		return failure(CodeParseFailure)
	case errors.Is(err, context.DeadlineExceeded):
		return failure(CodeTransient)
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		switch pe.Category {
		case provider.ConfigurationMissing:
			return failure(CodeConfigurationMissing)
		case provider.InvalidInput:
			return failure(CodeInvalidInput)
		case provider.RateLimited:
			return failure(CodeRateLimited)
		case provider.QuotaExceeded:
			return failure(CodeQuotaExceeded)
		case provider.InvalidCredentials:
			return failure(CodeInvalidCredentials)
		case provider.TransientNetwork:
			return failure(CodeTransient)
		}
	}
	return failure(CodeUnknown)
}
