// Package remix orchestrates governed operations against Lovable: every
// network or browser action passes the safety gate first and is recorded
// after, attempt by attempt.
package remix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"remixctl/lib/chrono"
	"remixctl/lib/lovable"
	"remixctl/lib/lovable/browser"
	"remixctl/services/safety"
)

var tracer = otel.Tracer("services/remix")

var projectIDRx = regexp.MustCompile(`^[a-f0-9-]+$`)

// NormalizeProjectID accepts either a bare project id or a full project URL
// and returns the id, or an error for anything else.
func NormalizeProjectID(raw string) (string, error) {
	if id := lovable.ExtractProjectID(raw); id != "" {
		return id, nil
	}
	if projectIDRx.MatchString(raw) {
		return raw, nil
	}
	return "", fmt.Errorf("invalid project id or URL: %q", raw)
}

// Transport performs one remix attempt. The API client and the browser
// driver both satisfy it.
type Transport interface {
	Operation() safety.Operation
	Remix(ctx context.Context, projectID string, includeHistory bool) (lovable.RemixOutcome, error)
}

// APITransport remixes through the undocumented HTTP API.
type APITransport struct {
	Client *lovable.Client
}

func (t APITransport) Operation() safety.Operation { return safety.OpRemix }

func (t APITransport) Remix(ctx context.Context, projectID string, includeHistory bool) (lovable.RemixOutcome, error) {
	return t.Client.RemixProject(ctx, projectID, includeHistory)
}

// UITransport remixes by driving the web frontend in a real browser.
type UITransport struct {
	Driver browser.Driver
}

func (t UITransport) Operation() safety.Operation { return safety.OpUIRemix }

func (t UITransport) Remix(ctx context.Context, projectID string, includeHistory bool) (lovable.RemixOutcome, error) {
	return t.Driver.Remix(ctx, projectID, includeHistory)
}

// Result is the final outcome of one governed remix request, denials and
// exhausted retries included.
type Result struct {
	Success         bool      `json:"success"`
	SourceProjectID string    `json:"source_project_id"`
	NewProjectID    string    `json:"new_project_id,omitempty"`
	NewProjectURL   string    `json:"new_project_url,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type Workflow struct {
	gate  *safety.Gate
	clock chrono.TimeAPI
}

type WorkflowOptions struct {
	Gate *safety.Gate
	// Clock defaults to the system clock.
	Clock chrono.TimeAPI
}

func NewWorkflow(opts WorkflowOptions) *Workflow {
	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	return &Workflow{gate: opts.Gate, clock: clock}
}

// CreateRemix runs the full governed remix flow over the given transport:
// gate check, bounded retries with backoff, per-attempt recording, and
// the idempotency write on success.
func (w *Workflow) CreateRemix(ctx context.Context, transport Transport, rawProjectID string, includeHistory, skipConfirmation bool) (Result, error) {
	ctx, span := tracer.Start(ctx, "CreateRemix")
	defer span.End()

	op := transport.Operation()
	span.SetAttributes(attribute.String("operation", string(op)))

	fail := func(reason string) Result {
		return Result{
			Success:         false,
			SourceProjectID: rawProjectID,
			Error:           reason,
			Timestamp:       w.clock.Now(),
		}
	}

	projectID, err := NormalizeProjectID(rawProjectID)
	if err != nil {
		return fail(err.Error()), nil
	}
	rawProjectID = projectID
	span.SetAttributes(attribute.String("project_id", projectID))

	decision, err := w.gate.PreOperationCheck(ctx, op, projectID, skipConfirmation)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gate check failed")
		return Result{}, err
	}
	if !decision.Allowed {
		slog.InfoContext(ctx, "remix denied", "reason", decision.Reason)
		return fail(decision.Reason), nil
	}

	endpoint := fmt.Sprintf("/projects/%s/remix", projectID)

	var lastErr error
	for attempt := 0; attempt <= safety.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := safety.BackoffDelay(attempt)
			slog.InfoContext(ctx, "retrying remix",
				"attempt", attempt+1, "delay", delay)
			if err := w.clock.Sleep(ctx, delay); err != nil {
				return Result{}, err
			}
			if err := w.gate.WaitForRateLimit(ctx); err != nil {
				return Result{}, err
			}
		}

		outcome, attemptErr := transport.Remix(ctx, projectID, includeHistory)
		if attemptErr == nil {
			if err := w.gate.Record(ctx, op, endpoint, true, "", outcome.StatusCode); err != nil {
				return Result{}, err
			}
			if err := w.gate.RecordRemixSuccess(ctx, projectID, outcome.NewProjectID); err != nil {
				return Result{}, err
			}
			slog.InfoContext(ctx, "remix succeeded",
				"source", projectID, "new_project", outcome.NewProjectID)
			return Result{
				Success:         true,
				SourceProjectID: projectID,
				NewProjectID:    outcome.NewProjectID,
				NewProjectURL:   outcome.NewProjectURL,
				Timestamp:       w.clock.Now(),
			}, nil
		}

		lastErr = attemptErr
		if err := w.gate.Record(ctx, op, endpoint, false, attemptErr.Error(), statusCodeOf(attemptErr)); err != nil {
			return Result{}, err
		}
		if !safety.ShouldRetry(attempt, attemptErr) {
			break
		}
	}

	span.SetAttributes(attribute.String("error", lastErr.Error()))
	return fail(lastErr.Error()), nil
}

func statusCodeOf(err error) int {
	var reqErr *lovable.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// ListProjects is the governed wrapper for the project listing endpoint.
func (w *Workflow) ListProjects(ctx context.Context, client *lovable.Client) ([]lovable.Project, error) {
	ctx, span := tracer.Start(ctx, "ListProjects")
	defer span.End()

	decision, err := w.gate.PreOperationCheck(ctx, safety.OpListProjects, "", true)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, errors.New(decision.Reason)
	}

	projects, err := client.ListProjects(ctx)
	if recErr := w.gate.Record(ctx, safety.OpListProjects, "/projects", err == nil, errText(err), statusCodeOf(err)); recErr != nil {
		return nil, recErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list projects failed")
		return nil, err
	}
	return projects, nil
}

// GetProject is the governed wrapper for fetching a single project.
func (w *Workflow) GetProject(ctx context.Context, client *lovable.Client, rawProjectID string) (lovable.Project, error) {
	ctx, span := tracer.Start(ctx, "GetProject")
	defer span.End()

	projectID, err := NormalizeProjectID(rawProjectID)
	if err != nil {
		return lovable.Project{}, err
	}

	decision, err := w.gate.PreOperationCheck(ctx, safety.OpGetProject, "", true)
	if err != nil {
		return lovable.Project{}, err
	}
	if !decision.Allowed {
		return lovable.Project{}, errors.New(decision.Reason)
	}

	project, err := client.GetProject(ctx, projectID)
	endpoint := "/projects/" + projectID
	if recErr := w.gate.Record(ctx, safety.OpGetProject, endpoint, err == nil, errText(err), statusCodeOf(err)); recErr != nil {
		return lovable.Project{}, recErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get project failed")
		return lovable.Project{}, err
	}
	return project, nil
}

// Probe walks the candidate endpoints one by one, rate limited between
// calls, and reports how each responded. Limit <= 0 probes all targets.
func (w *Workflow) Probe(ctx context.Context, client *lovable.Client, limit int) ([]lovable.ProbeResult, error) {
	ctx, span := tracer.Start(ctx, "Probe")
	defer span.End()

	targets := lovable.ProbeTargets()
	if limit > 0 && limit < len(targets) {
		targets = targets[:limit]
	}

	results := make([]lovable.ProbeResult, 0, len(targets))
	for _, target := range targets {
		decision, err := w.gate.PreOperationCheck(ctx, safety.OpProbe, "", true)
		if err != nil {
			return results, err
		}
		if !decision.Allowed {
			return results, errors.New(decision.Reason)
		}

		result := client.Probe(ctx, target)
		if err := w.gate.Record(ctx, safety.OpProbe, target.Endpoint, result.OK, result.Error, result.StatusCode); err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
