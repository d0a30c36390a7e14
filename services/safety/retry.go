package safety

import (
	"errors"
	"strings"
	"time"
)

// Retry policy. Pure functions, no I/O and no sleeping: callers own the
// backoff delay.

const (
	// MaxRetries bounds retries, not attempts: an operation runs at most
	// MaxRetries+1 times.
	MaxRetries = 2

	backoffBase = 2
	backoffCap  = 30 * time.Second
)

// FailureKind is the tagged classification transports attach to their
// errors. It replaces free-text matching on error prose.
type FailureKind int

const (
	FailUnknown FailureKind = iota
	FailUnauthorized
	FailForbidden
	FailNotFound
	FailAlreadyProcessed
	// FailBackend marks errors the backend reports as permanent.
	FailBackend
	FailTimeout
	FailNetwork
	FailRateLimited
)

// Classified is implemented by transport errors that carry a FailureKind.
type Classified interface {
	FailureKind() FailureKind
}

// terminal kinds never retry no matter the attempt count.
func (k FailureKind) terminal() bool {
	switch k {
	case FailUnauthorized, FailForbidden, FailNotFound, FailAlreadyProcessed, FailBackend:
		return true
	}
	return false
}

// substring fallback for errors that never got tagged, kept compatible with
// the markers the persisted logs historically carried.
var terminalMarkers = []string{
	"401", "unauthorized",
	"403", "forbidden",
	"404", "not found",
	"already remixed",
	"supabase",
}

// Classify resolves an error to a FailureKind, preferring the tag the
// transport attached over text matching.
func Classify(err error) FailureKind {
	if err == nil {
		return FailUnknown
	}
	var classified Classified
	if errors.As(err, &classified) {
		return classified.FailureKind()
	}
	text := strings.ToLower(err.Error())
	for _, marker := range terminalMarkers {
		if strings.Contains(text, marker) {
			return FailBackend
		}
	}
	return FailUnknown
}

// ShouldRetry reports whether a failed attempt (0-based) should run again.
func ShouldRetry(attempt int, err error) bool {
	if attempt >= MaxRetries {
		return false
	}
	if Classify(err).terminal() {
		return false
	}
	return true
}

// BackoffDelay returns the sleep before retrying after the given attempt:
// min(base^attempt, cap) seconds.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Second
	for i := 0; i < attempt; i++ {
		delay *= backoffBase
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}
