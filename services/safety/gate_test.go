package safety

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"remixctl/lib/chrono"
	"remixctl/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type scriptedConfirmer struct {
	answer bool
	asked  []string
}

func (c *scriptedConfirmer) Confirm(ctx context.Context, summary string) (bool, error) {
	c.asked = append(c.asked, summary)
	return c.answer, nil
}

func testClock() *chrono.ManualTime {
	return chrono.NewManualTime(time.Date(2026, 8, 29, 12, 0, 0, 0, time.Local))
}

func newTestGate(t *testing.T, clock chrono.TimeAPI, confirm Confirmer) (*Gate, FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "safety_state.json"))
	gate, err := NewGate(context.Background(), GateOptions{
		Store:     store,
		Clock:     clock,
		Confirmer: confirm,
	})
	require.NoError(t, err)
	return gate, store
}

func TestCircuitBreakerTripAndCooldown(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/safety")
	defer cleanup()

	ctx := context.Background()
	clock := testClock()
	gate, _ := newTestGate(t, clock, nil)

	for i := 0; i < MaxConsecutiveFailures; i++ {
		clock.Advance(MinRequestInterval)
		require.NoError(t, gate.Record(ctx, OpProbe, "/me", false, "500 server error", 500))
	}

	decision, err := gate.PreOperationCheck(ctx, OpProbe, "", true)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "Circuit breaker active")

	// still tripped just before the cooldown elapses
	clock.Advance(BreakerCooldown - time.Minute)
	decision, err = gate.PreOperationCheck(ctx, OpProbe, "", true)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// first check past the cooldown fully reopens the breaker
	clock.Advance(2 * time.Minute)
	decision, err = gate.PreOperationCheck(ctx, OpProbe, "", true)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, 0, gate.Status().ConsecutiveFailures)
	require.True(t, gate.Status().CircuitBreakerUntil.IsZero())
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	gate, _ := newTestGate(t, clock, nil)

	clock.Advance(MinRequestInterval)
	require.NoError(t, gate.Record(ctx, OpProbe, "/me", false, "timeout", 0))
	clock.Advance(MinRequestInterval)
	require.NoError(t, gate.Record(ctx, OpProbe, "/me", false, "timeout", 0))
	clock.Advance(MinRequestInterval)
	require.NoError(t, gate.Record(ctx, OpProbe, "/me", true, "", 200))

	require.Equal(t, 0, gate.Status().ConsecutiveFailures)
	active, _ := gate.BreakerActive()
	require.False(t, active)
}

func TestWaitForRateLimit(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	gate, _ := newTestGate(t, clock, nil)

	// first-ever call never waits
	require.NoError(t, gate.WaitForRateLimit(ctx))
	require.Empty(t, clock.Slept())

	require.NoError(t, gate.Record(ctx, OpProbe, "/me", true, "", 200))
	clock.Advance(500 * time.Millisecond)

	require.NoError(t, gate.WaitForRateLimit(ctx))
	slept := clock.Slept()
	require.Len(t, slept, 1)
	require.Equal(t, 1500*time.Millisecond, slept[0])

	// once the interval has passed there is nothing left to wait for
	require.NoError(t, gate.WaitForRateLimit(ctx))
	require.Len(t, clock.Slept(), 1)
}

func TestCheckRateLimit(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	gate, _ := newTestGate(t, clock, nil)

	require.True(t, gate.CheckRateLimit().Allowed)

	require.NoError(t, gate.Record(ctx, OpProbe, "/me", true, "", 200))
	decision := gate.CheckRateLimit()
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "Rate limit")

	clock.Advance(MinRequestInterval)
	require.True(t, gate.CheckRateLimit().Allowed)
}

func TestHourlyCeiling(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	store := NewFileStore(filepath.Join(t.TempDir(), "safety_state.json"))

	state := DefaultState()
	state.LastResetDate = localDate(clock.Now())
	state.RequestsToday = MaxRequestsPerHour
	require.NoError(t, store.Save(ctx, state))

	gate, err := NewGate(ctx, GateOptions{Store: store, Clock: clock})
	require.NoError(t, err)

	decision := gate.CheckRateLimit()
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "Hourly limit reached")
}

func TestIdempotencyRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	gate, store := newTestGate(t, clock, nil)

	isNew, existing := gate.CheckIdempotency(OpRemix, "P1")
	require.True(t, isNew)
	require.Empty(t, existing)

	require.NoError(t, gate.RecordRemixSuccess(ctx, "P1", "N1"))

	isNew, existing = gate.CheckIdempotency(OpRemix, "P1")
	require.False(t, isNew)
	require.Equal(t, "N1", existing)

	// holds across a reload of the same persisted artifact
	reloaded, err := NewGate(ctx, GateOptions{Store: store, Clock: clock})
	require.NoError(t, err)
	isNew, existing = reloaded.CheckIdempotency(OpRemix, "P1")
	require.False(t, isNew)
	require.Equal(t, "N1", existing)

	// and across a daily rollover
	clock.Advance(24 * time.Hour)
	rolled, err := NewGate(ctx, GateOptions{Store: store, Clock: clock})
	require.NoError(t, err)
	require.Equal(t, 0, rolled.Status().RemixesToday)
	isNew, existing = rolled.CheckIdempotency(OpRemix, "P1")
	require.False(t, isNew)
	require.Equal(t, "N1", existing)

	// the ui transport shares the same ledger
	isNew, existing = rolled.CheckIdempotency(OpUIRemix, "P1")
	require.False(t, isNew)
	require.Equal(t, "N1", existing)

	// non-remix operations are never deduplicated
	isNew, _ = rolled.CheckIdempotency(OpProbe, "P1")
	require.True(t, isNew)
}

func TestDailyRollover(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	store := NewFileStore(filepath.Join(t.TempDir(), "safety_state.json"))

	state := DefaultState()
	state.LastResetDate = localDate(clock.Now().AddDate(0, 0, -1))
	state.RequestsToday = 7
	state.RemixesToday = 4
	state.RemixHistory["P1"] = "N1"
	state.RequestLog = append(state.RequestLog, RequestLogEntry{
		Timestamp: clock.Now().AddDate(0, 0, -1),
		Operation: OpRemix,
		Endpoint:  "/projects/P1/remix",
		Success:   true,
	})
	require.NoError(t, store.Save(ctx, state))

	gate, err := NewGate(ctx, GateOptions{Store: store, Clock: clock})
	require.NoError(t, err)

	status := gate.Status()
	require.Equal(t, 0, status.RequestsToday)
	require.Equal(t, 0, status.RemixesToday)
	require.Empty(t, status.RequestLog)
	require.Equal(t, map[string]string{"P1": "N1"}, status.RemixHistory)
	require.Equal(t, localDate(clock.Now()), status.LastResetDate)

	// the reset is persisted immediately
	persisted := store.Load(ctx)
	require.Equal(t, 0, persisted.RequestsToday)
	require.Equal(t, map[string]string{"P1": "N1"}, persisted.RemixHistory)
}

func TestQuotaBoundary(t *testing.T) {
	ctx := context.Background()
	clock := testClock()

	build := func(remixesToday int) *Gate {
		store := NewFileStore(filepath.Join(t.TempDir(), "safety_state.json"))
		state := DefaultState()
		state.LastResetDate = localDate(clock.Now())
		state.RemixesToday = remixesToday
		require.NoError(t, store.Save(ctx, state))
		gate, err := NewGate(ctx, GateOptions{Store: store, Clock: clock})
		require.NoError(t, err)
		return gate
	}

	decision, err := build(MaxRemixesPerDay).PreOperationCheck(ctx, OpRemix, "P1", true)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "Daily remix limit reached")

	decision, err = build(MaxRemixesPerDay - 1).PreOperationCheck(ctx, OpRemix, "P1", true)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestAuditLogBounded(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	gate, _ := newTestGate(t, clock, nil)

	for i := 0; i < 105; i++ {
		clock.Advance(MinRequestInterval)
		require.NoError(t, gate.Record(ctx, OpProbe, fmt.Sprintf("/e%d", i), true, "", 200))
	}

	log := gate.Status().RequestLog
	require.Len(t, log, 100)
	// the 100 most recent survive, oldest-first order preserved
	require.Equal(t, "/e5", log[0].Endpoint)
	require.Equal(t, "/e104", log[99].Endpoint)
}

func TestConfirmation(t *testing.T) {
	ctx := context.Background()

	// declined
	declined := &scriptedConfirmer{answer: false}
	gate, _ := newTestGate(t, testClock(), declined)
	decision, err := gate.PreOperationCheck(ctx, OpRemix, "P1", false)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, "User declined", decision.Reason)
	require.Len(t, declined.asked, 1)
	require.Contains(t, declined.asked[0], "P1")

	// accepted
	accepted := &scriptedConfirmer{answer: true}
	gate, _ = newTestGate(t, testClock(), accepted)
	decision, err = gate.PreOperationCheck(ctx, OpRemix, "P1", false)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// skip flag bypasses the prompt entirely
	skipped := &scriptedConfirmer{answer: false}
	gate, _ = newTestGate(t, testClock(), skipped)
	decision, err = gate.PreOperationCheck(ctx, OpRemix, "P1", true)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Empty(t, skipped.asked)

	// no channel wired and not skipped: conservative deny
	gate, _ = newTestGate(t, testClock(), nil)
	decision, err = gate.PreOperationCheck(ctx, OpRemix, "P1", false)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "User declined")

	// non-remix operations never prompt
	probing := &scriptedConfirmer{answer: false}
	gate, _ = newTestGate(t, testClock(), probing)
	decision, err = gate.PreOperationCheck(ctx, OpProbe, "", false)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Empty(t, probing.asked)
}

func TestRecordUpdatesLastRequestTime(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	gate, _ := newTestGate(t, clock, nil)

	require.NoError(t, gate.Record(ctx, OpProbe, "/me", true, "", 200))
	first := gate.Status().LastRequestTime
	require.Equal(t, clock.Now(), first)

	clock.Advance(MinRequestInterval)
	require.NoError(t, gate.Record(ctx, OpProbe, "/me", true, "", 200))
	require.True(t, !gate.Status().LastRequestTime.Before(first))
	require.Equal(t, 2, gate.Status().RequestsToday)
}
