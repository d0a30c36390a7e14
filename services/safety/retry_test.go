package safety

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type taggedErr struct {
	kind FailureKind
}

func (e taggedErr) Error() string {
	return fmt.Sprintf("tagged failure %d", e.kind)
}

func (e taggedErr) FailureKind() FailureKind {
	return e.kind
}

func TestShouldRetryAttemptBound(t *testing.T) {
	timeout := taggedErr{kind: FailTimeout}
	require.True(t, ShouldRetry(0, timeout))
	require.True(t, ShouldRetry(1, timeout))
	require.False(t, ShouldRetry(2, timeout))
	require.False(t, ShouldRetry(5, timeout))
}

func TestShouldRetryTerminalKinds(t *testing.T) {
	for _, kind := range []FailureKind{
		FailUnauthorized, FailForbidden, FailNotFound, FailAlreadyProcessed, FailBackend,
	} {
		require.False(t, ShouldRetry(0, taggedErr{kind: kind}), "kind %d", kind)
	}
	for _, kind := range []FailureKind{FailTimeout, FailNetwork, FailRateLimited, FailUnknown} {
		require.True(t, ShouldRetry(0, taggedErr{kind: kind}), "kind %d", kind)
	}
}

func TestShouldRetryTextFallback(t *testing.T) {
	require.False(t, ShouldRetry(0, errors.New("401 unauthorized")))
	require.False(t, ShouldRetry(0, errors.New("remix failed: 403 Forbidden")))
	require.False(t, ShouldRetry(0, errors.New("already remixed: abc")))
	require.False(t, ShouldRetry(0, errors.New("supabase insert rejected")))
	require.True(t, ShouldRetry(0, errors.New("connection reset by peer")))
	require.True(t, ShouldRetry(1, errors.New("request timeout after 30s")))
}

func TestBackoffDelay(t *testing.T) {
	require.Equal(t, time.Second, BackoffDelay(0))
	require.Equal(t, 2*time.Second, BackoffDelay(1))
	require.Equal(t, 4*time.Second, BackoffDelay(2))
	require.Equal(t, 8*time.Second, BackoffDelay(3))
	require.Equal(t, 16*time.Second, BackoffDelay(4))
	require.Equal(t, 30*time.Second, BackoffDelay(5))
	require.Equal(t, 30*time.Second, BackoffDelay(12))
}

func TestClassifyPrefersTag(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", taggedErr{kind: FailNotFound})
	require.Equal(t, FailNotFound, Classify(err))
	// prose mentioning a marker does not override an explicit tag
	wrapped := fmt.Errorf("404 while probing: %w", taggedErr{kind: FailTimeout})
	require.Equal(t, FailTimeout, Classify(wrapped))
}
