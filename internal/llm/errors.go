package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for model invocations. Check with errors.Is.
var (
	// ErrFatalAPI marks provider errors that retrying cannot fix:
	// authentication, billing, and quota problems.
	ErrFatalAPI = errors.New("fatal API error")

	// ErrEmptyResponse indicates the provider returned no choices.
	ErrEmptyResponse = errors.New("model returned no response choices")

	// ErrMalformedToolCall indicates the model failed to produce a parseable
	// tool call where one was required, even after a retry.
	ErrMalformedToolCall = errors.New("model did not produce a valid tool call")
)

// fatalPatterns are substrings of provider error messages that indicate a
// non-retryable condition.
var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"api key not valid",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal provider errors with ErrFatalAPI so callers can
// stop retrying early. Non-fatal errors pass through unchanged.
func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %v", ErrFatalAPI, err)
	}
	return err
}
