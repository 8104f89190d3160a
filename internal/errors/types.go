package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// TransientError marks an error as retryable.
type TransientError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Message    string // operator-friendly message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an error as non-retryable (auth, validation, missing model).
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable with an operator-friendly message.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanentError wraps err as non-retryable with an operator-friendly message.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient reports whether an error is worth retrying. Explicit markers win;
// otherwise network errors and 429/5xx-class HTTP statuses count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	if isNetworkError(err) {
		return true
	}

	if code := extractHTTPStatusCode(err); code > 0 {
		return isTransientHTTPStatus(code)
	}

	return false
}

// IsPermanent reports whether an error should never be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return true
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return false
	}

	if code := extractHTTPStatusCode(err); code > 0 {
		return !isTransientHTTPStatus(code)
	}

	lowerErr := strings.ToLower(err.Error())
	for _, pattern := range []string{"unauthorized", "forbidden", "bad request", "invalid api key"} {
		if strings.Contains(lowerErr, pattern) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	lowerErr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"deadline exceeded",
		"no such host",
	} {
		if strings.Contains(lowerErr, pattern) {
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

var knownStatusCodes = []int{429, 500, 502, 503, 504, 400, 401, 403, 404, 422}

// extractHTTPStatusCode pulls a status code out of error text like
// "API error 429: ..." or "HTTP 503: ...".
func extractHTTPStatusCode(err error) int {
	lowerErr := strings.ToLower(err.Error())
	for _, code := range knownStatusCodes {
		if strings.Contains(lowerErr, fmt.Sprintf("%d", code)) {
			return code
		}
	}
	return 0
}

// LoadError reports that the persona corpus was unreachable or malformed.
// It is fatal to the whole run and surfaces before any model spend.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load corpus %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NotFoundError lists persona IDs that were requested but absent from the
// corpus. Fatal to selection, surfaced before the run starts.
type NotFoundError struct {
	Missing []string
}

func (e *NotFoundError) Error() string {
	missing := append([]string(nil), e.Missing...)
	sort.Strings(missing)
	return fmt.Sprintf("personas not found: %s", strings.Join(missing, ", "))
}

// ModelUnavailableError reports that retries were exhausted for a single
// (persona, question) pair. Recorded as a failed record, never aborts a batch.
type ModelUnavailableError struct {
	Attempts int
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// ContextOverflowError reports that an interactive transcript grew past the
// model input limit. Fatal to that persona's continuation only.
type ContextOverflowError struct {
	PersonaID string
	Tokens    int
	Limit     int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("persona %s: transcript of %d tokens exceeds input limit %d",
		e.PersonaID, e.Tokens, e.Limit)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsModelUnavailable reports whether err wraps a ModelUnavailableError.
func IsModelUnavailable(err error) bool {
	var target *ModelUnavailableError
	return errors.As(err, &target)
}

// IsContextOverflow reports whether err wraps a ContextOverflowError.
func IsContextOverflow(err error) bool {
	var target *ContextOverflowError
	return errors.As(err, &target)
}
