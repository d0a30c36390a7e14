package safety

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remixctl/lib/chrono"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/safety")

// Limits tuned for safety. The remote product is rate sensitive and
// undocumented, so every knob here errs on the conservative side.
const (
	MinRequestInterval     = 2 * time.Second
	MaxRequestsPerHour     = 60
	MaxConsecutiveFailures = 3
	BreakerCooldown        = 15 * time.Minute
	MaxRemixesPerDay       = 20
	SoftWatermark          = 10
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	// Reason is human-readable and suitable for direct display on denial.
	Reason string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Confirmer is the synchronous yes/no prompt channel. It blocks the calling
// flow until answered.
type Confirmer interface {
	Confirm(ctx context.Context, summary string) (bool, error)
}

// Gate composes every safety mechanism into a single pre-check / post-record
// contract. It assumes at most one governed operation in flight per process;
// its methods run to completion and there is no concurrent mutation of the
// state. Multiple processes sharing one state artifact are not supported.
type Gate struct {
	store   Store
	clock   chrono.TimeAPI
	confirm Confirmer
	state   State
}

type GateOptions struct {
	Store Store
	// Clock defaults to the system clock.
	Clock chrono.TimeAPI
	// Confirmer may be nil for non-interactive use, in which case any
	// required confirmation denies unless explicitly skipped.
	Confirmer Confirmer
}

// NewGate loads the persisted record and applies the daily rollover once.
func NewGate(ctx context.Context, opts GateOptions) (*Gate, error) {
	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	g := &Gate{
		store:   opts.Store,
		clock:   clock,
		confirm: opts.Confirmer,
		state:   opts.Store.Load(ctx),
	}
	if err := g.checkDailyRollover(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func localDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// checkDailyRollover zeroes the daily counters and clears the audit log
// exactly once per calendar day. RemixHistory survives the rollover.
func (g *Gate) checkDailyRollover(ctx context.Context) error {
	today := localDate(g.clock.Now())
	if g.state.LastResetDate == today {
		return nil
	}
	slog.DebugContext(ctx, "new day detected, resetting daily counters",
		"previous", g.state.LastResetDate, "today", today)
	g.state.RequestsToday = 0
	g.state.RemixesToday = 0
	g.state.RequestLog = []RequestLogEntry{}
	g.state.LastResetDate = today
	return g.store.Save(ctx, g.state)
}

// CheckRateLimit denies when the minimum inter-call spacing has not elapsed
// or the hourly ceiling is reached. It never mutates state.
func (g *Gate) CheckRateLimit() Decision {
	if !g.state.LastRequestTime.IsZero() {
		elapsed := g.clock.Now().Sub(g.state.LastRequestTime)
		if elapsed < MinRequestInterval {
			wait := MinRequestInterval - elapsed
			return deny("Rate limit: wait %.1fs before next request", wait.Seconds())
		}
	}
	if g.state.RequestsToday >= MaxRequestsPerHour {
		return deny("Hourly limit reached (%d requests)", MaxRequestsPerHour)
	}
	return allow()
}

// WaitForRateLimit suspends the caller for exactly the remaining spacing
// instead of denying. The first-ever call never waits.
func (g *Gate) WaitForRateLimit(ctx context.Context) error {
	if g.state.LastRequestTime.IsZero() {
		return nil
	}
	elapsed := g.clock.Now().Sub(g.state.LastRequestTime)
	if elapsed >= MinRequestInterval {
		return nil
	}
	wait := MinRequestInterval - elapsed
	slog.DebugContext(ctx, "rate limiting", "wait_seconds", wait.Seconds())
	return g.clock.Sleep(ctx, wait)
}

// CheckCircuitBreaker denies while the breaker is tripped. The first check
// after the cooldown elapses fully reopens the breaker: no half-open state,
// no probing.
func (g *Gate) CheckCircuitBreaker(ctx context.Context) (Decision, error) {
	if g.state.CircuitBreakerUntil.IsZero() {
		return allow(), nil
	}
	now := g.clock.Now()
	if now.Before(g.state.CircuitBreakerUntil) {
		remaining := g.state.CircuitBreakerUntil.Sub(now)
		return deny("Circuit breaker active: %.1f minutes until reset", remaining.Minutes()), nil
	}

	g.state.CircuitBreakerUntil = time.Time{}
	g.state.ConsecutiveFailures = 0
	if err := g.store.Save(ctx, g.state); err != nil {
		return Decision{}, err
	}
	slog.InfoContext(ctx, "circuit breaker cooldown elapsed, reopening")
	return allow(), nil
}

// CheckDailyLimit denies remix-class operations once the daily cap is hit.
func (g *Gate) CheckDailyLimit(op Operation) Decision {
	if op.IsRemix() && g.state.RemixesToday >= MaxRemixesPerDay {
		return deny("Daily remix limit reached (%d)", MaxRemixesPerDay)
	}
	return allow()
}

// CheckIdempotency reports whether a remix-class operation on key is new.
// If it is not, the previously recorded result id is returned.
func (g *Gate) CheckIdempotency(op Operation, key string) (bool, string) {
	if !op.IsRemix() {
		return true, ""
	}
	existing, ok := g.state.RemixHistory[key]
	if ok {
		return false, existing
	}
	return true, ""
}

// PreOperationCheck is the main gate every governed operation must pass.
// Checks run in a fixed order and short-circuit on the first denial; the
// rate limit is waited out rather than denied.
func (g *Gate) PreOperationCheck(ctx context.Context, op Operation, key string, skipConfirmation bool) (Decision, error) {
	ctx, span := tracer.Start(ctx, "gate:PreOperationCheck")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", string(op)),
		attribute.String("key", key),
	)

	if err := g.checkDailyRollover(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist daily rollover")
		return Decision{}, err
	}

	decision, err := g.CheckCircuitBreaker(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist breaker reopen")
		return Decision{}, err
	}
	if !decision.Allowed {
		span.SetAttributes(attribute.String("denied", decision.Reason))
		return decision, nil
	}

	if err := g.WaitForRateLimit(ctx); err != nil {
		span.RecordError(err)
		return Decision{}, err
	}

	if decision := g.CheckDailyLimit(op); !decision.Allowed {
		span.SetAttributes(attribute.String("denied", decision.Reason))
		return decision, nil
	}

	if key != "" {
		if isNew, existing := g.CheckIdempotency(op, key); !isNew {
			decision := deny("Already remixed: %s", existing)
			span.SetAttributes(attribute.String("denied", decision.Reason))
			return decision, nil
		}
	}

	if g.state.RequestsToday >= SoftWatermark {
		slog.WarnContext(ctx, "approaching request limits",
			"requests_today", g.state.RequestsToday,
			"hourly_cap", MaxRequestsPerHour)
	}

	if op.IsRemix() && !skipConfirmation {
		summary := fmt.Sprintf(
			"Remix project %s?\nRemixes today: %d/%d\nRequests today: %d",
			key, g.state.RemixesToday, MaxRemixesPerDay, g.state.RequestsToday,
		)
		if g.confirm == nil {
			return deny("User declined (no confirmation channel)"), nil
		}
		ok, err := g.confirm.Confirm(ctx, summary)
		if err != nil {
			span.RecordError(err)
			return Decision{}, fmt.Errorf("confirmation prompt: %w", err)
		}
		if !ok {
			return deny("User declined"), nil
		}
	}

	return allow(), nil
}

// Record registers one physical attempt, success or failure. It must be
// called exactly once per attempt, timeouts included.
func (g *Gate) Record(ctx context.Context, op Operation, endpoint string, success bool, errText string, responseCode int) error {
	ctx, span := tracer.Start(ctx, "gate:Record")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", string(op)),
		attribute.Bool("success", success),
	)

	now := g.clock.Now()
	g.state.RequestsToday++
	if now.After(g.state.LastRequestTime) {
		g.state.LastRequestTime = now
	}

	if success {
		g.state.ConsecutiveFailures = 0
	} else {
		g.state.ConsecutiveFailures++
		if g.state.ConsecutiveFailures >= MaxConsecutiveFailures {
			g.state.CircuitBreakerUntil = now.Add(BreakerCooldown)
			slog.WarnContext(ctx, "circuit breaker tripped",
				"consecutive_failures", g.state.ConsecutiveFailures,
				"paused_until", g.state.CircuitBreakerUntil)
		}
	}

	g.state.appendLog(RequestLogEntry{
		Timestamp:    now,
		Operation:    op,
		Endpoint:     endpoint,
		Success:      success,
		Error:        errText,
		ResponseCode: responseCode,
	})

	if err := g.store.Save(ctx, g.state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist attempt record")
		return err
	}
	return nil
}

// RecordRemixSuccess writes the idempotency mapping after a fully successful
// remix-class completion.
func (g *Gate) RecordRemixSuccess(ctx context.Context, sourceID, newID string) error {
	g.state.RemixesToday++
	g.state.RemixHistory[sourceID] = newID
	return g.store.Save(ctx, g.state)
}

// Status returns a copy of the current state for display and tests.
func (g *Gate) Status() State {
	return g.state.clone()
}

// BreakerActive reports whether the breaker currently denies, along with the
// remaining cooldown.
func (g *Gate) BreakerActive() (bool, time.Duration) {
	if g.state.CircuitBreakerUntil.IsZero() {
		return false, 0
	}
	remaining := g.state.CircuitBreakerUntil.Sub(g.clock.Now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}
