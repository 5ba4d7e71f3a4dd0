package llm

import (
	"errors"
	"fmt"
	"strings"
)

// RetryableAPIError covers transient gateway failures: connection resets,
// rate limits, overloaded backends, streaming errors. The retry loop handles
// these with bounded backoff.
type RetryableAPIError struct {
	StatusCode int
	Message    string
}

func (e *RetryableAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("retryable API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("retryable API error: %s", e.Message)
}

// NonRetryableAPIError surfaces immediately so callers can react: token-limit
// errors feed the truncation retry loop, credential errors carry guidance.
type NonRetryableAPIError struct {
	StatusCode int
	Message    string
	Guidance   string
}

func (e *NonRetryableAPIError) Error() string {
	msg := e.Message
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	if e.Guidance != "" {
		return msg + ". " + e.Guidance
	}
	return msg
}

// CitationVerificationError is raised in strict mode when generated content
// still carries citations that could not be confirmed.
type CitationVerificationError struct {
	FormatIssues []string
	NotFound     []string
	Other        []string
}

func (e *CitationVerificationError) Error() string {
	var parts []string
	if n := len(e.NotFound); n > 0 {
		parts = append(parts, fmt.Sprintf("%d citation(s) not found: %s", n, strings.Join(e.NotFound, "; ")))
	}
	if n := len(e.Other); n > 0 {
		parts = append(parts, fmt.Sprintf("%d citation(s) with verification problems: %s", n, strings.Join(e.Other, "; ")))
	}
	if n := len(e.FormatIssues); n > 0 {
		parts = append(parts, fmt.Sprintf("%d format issue(s)", n))
	}
	if len(parts) == 0 {
		return "citation verification failed"
	}
	return "citation verification failed: " + strings.Join(parts, "; ")
}

// Unverified returns every failed citation, not-found and otherwise.
func (e *CitationVerificationError) Unverified() []string {
	out := make([]string, 0, len(e.NotFound)+len(e.Other))
	out = append(out, e.NotFound...)
	out = append(out, e.Other...)
	return out
}

// tokenLimitMarkers identify context-window overflows in provider error
// bodies. These are non-retryable at the gateway; the truncation manager
// reacts to them instead.
var tokenLimitMarkers = []string{
	"payload too large",
	"prompt is too long",
	"request entity too large",
	"maximum context length",
}

var authMarkers = []string{
	"invalid api key",
	"no auth credentials",
	"unauthorized",
	"authentication",
}

var billingMarkers = []string{
	"insufficient credits",
	"quota",
	"billing",
	"payment required",
}

var permissionMarkers = []string{
	"disabled",
	"permission",
	"forbidden",
	"not allowed",
}

var retryableMarkers = []string{
	"overloaded",
	"rate limit",
	"rate_limit",
	"timeout",
	"busy",
	"error processing stream",
}

// classifyAPIError types a provider error from its HTTP status and message.
// Token-limit signals are checked first so truncation always sees them,
// then credential classes with actionable guidance, then transient signals.
func classifyAPIError(status int, message string) error {
	lower := strings.ToLower(message)
	switch {
	case status == 413 || containsAny(lower, tokenLimitMarkers):
		return &NonRetryableAPIError{StatusCode: status, Message: message}
	case status == 401 || containsAny(lower, authMarkers):
		return &NonRetryableAPIError{
			StatusCode: status,
			Message:    message,
			Guidance:   "Check your OpenRouter API key at https://openrouter.ai/settings/keys",
		}
	case status == 402 || containsAny(lower, billingMarkers):
		return &NonRetryableAPIError{
			StatusCode: status,
			Message:    message,
			Guidance:   "Add credits at https://openrouter.ai/settings/credits",
		}
	case status == 403 || containsAny(lower, permissionMarkers):
		return &NonRetryableAPIError{
			StatusCode: status,
			Message:    message,
			Guidance:   "Check model access and provider settings at https://openrouter.ai/settings/preferences",
		}
	case status == 429 || status >= 500 || containsAny(lower, retryableMarkers):
		return &RetryableAPIError{StatusCode: status, Message: message}
	default:
		return &NonRetryableAPIError{StatusCode: status, Message: message}
	}
}

// isRetryable examines the error type first and falls back to message
// substrings only for untyped errors.
func isRetryable(err error) bool {
	var re *RetryableAPIError
	if errors.As(err, &re) {
		return true
	}
	var nre *NonRetryableAPIError
	if errors.As(err, &nre) {
		return false
	}
	var cve *CitationVerificationError
	if errors.As(err, &cve) {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), retryableMarkers)
}

func asCitationVerificationError(err error) (*CitationVerificationError, bool) {
	var cve *CitationVerificationError
	if errors.As(err, &cve) {
		return cve, true
	}
	return nil, false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
