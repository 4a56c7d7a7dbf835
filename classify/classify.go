// Package classify maps provider failures to the handful of kinds the retry
// loop reacts to. The provider does not return structured error types for
// most failures, so classification is substring matching on the lowered
// message, plus the HTTP status code when one is available.
package classify

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type Kind int

const (
	Unknown Kind = iota
	// Temporary throttling (HTTP 429 without quota semantics).
	Transient
	// Daily or periodic allowance is spent.
	Quota
	// Model deprecated, renamed or not offered to this key.
	NotFound
	// Transport failure between us and the provider.
	Network
	// Provider answered without any text.
	Empty
	// Retrying cannot help, e.g., invalid key or missing permission.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Quota:
		return "quota"
	case NotFound:
		return "not_found"
	case Network:
		return "network"
	case Empty:
		return "empty"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// RateLimited reports whether the kind is a 429-style failure that the rate
// limiter must observe.
func (k Kind) RateLimited() bool {
	return k == Transient || k == Quota
}

var (
	emptyWords = []string{"empty response", "no candidates", "no text in response"}

	notFoundWords = []string{"404", "not found", "not available", "is not supported for generatecontent"}

	// "deadline exceeded" must be tested before the quota words.
	networkWords = []string{
		"network", "connection", "timeout", "timed out", "deadline exceeded",
		"no such host", "eof", "broken pipe", "tls handshake",
	}

	quotaWords = []string{"quota", "exceeded", "resource_exhausted", "resource exhausted", "daily limit"}

	transientWords = []string{
		"429", "rate limit", "ratelimit", "too many requests", "503", "overloaded",
		"unavailable", "try again later",
	}

	fatalWords = []string{
		"permission", "api key not valid", "invalid api key", "api_key_invalid",
		"unauthenticated", "unauthorized", "forbidden", "invalid argument", "invalid_argument",
	}
)

// Classify maps a status code (0 when unknown) and an error message to a Kind.
func Classify(statusCode int, message string) Kind {
	lowered := strings.ToLower(message)

	switch {
	case containsAny(lowered, emptyWords):
		return Empty
	case statusCode == http.StatusNotFound || containsAny(lowered, notFoundWords):
		return NotFound
	case containsAny(lowered, networkWords):
		return Network
	case IsQuota(lowered):
		return Quota
	case statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		containsAny(lowered, transientWords):
		return Transient
	case statusCode == http.StatusUnauthorized ||
		statusCode == http.StatusForbidden ||
		containsAny(lowered, fatalWords):
		return Fatal
	}
	return Unknown
}

// IsQuota reports whether a rate-limit message means the quota is spent
// rather than a temporary throttle.
func IsQuota(message string) bool {
	return containsAny(strings.ToLower(message), quotaWords)
}

// FromError classifies an error returned by a provider invoker. Gemini API
// errors contribute their HTTP code and status to the message.
func FromError(err error) Kind {
	if err == nil {
		return Unknown
	}
	statusCode, message := Describe(err)
	return Classify(statusCode, message)
}

// Describe extracts the status code and a classification message from an error.
func Describe(err error) (int, string) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status + " " + err.Error()
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status + " " + err.Error()
	}
	return 0, err.Error()
}

func containsAny(lowered string, words []string) bool {
	for _, word := range words {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}
