package lovable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"remixctl/lib/restyutil"
	"remixctl/lib/telemetry"
	"remixctl/services/safety"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lovable")

const DefaultBaseURL = "https://api.lovable.dev"

const requestTimeout = time.Second * 30

// Client drives the undocumented Lovable HTTP API. It performs one network
// call per method invocation and reports tagged failures; all throttling and
// recording is the caller's responsibility.
type Client struct {
	http *resty.Client
}

type ClientOptions struct {
	// BaseUrl defaults to DefaultBaseURL.
	BaseUrl     string
	BearerToken string
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("authorization", fmt.Sprintf("Bearer %s", opts.BearerToken))
	client.SetHeader("content-type", "application/json")
	client.SetHeader("accept", "application/json")
	// be transparent about automation
	client.SetHeader("user-agent", "remixctl/1.0")
	client.SetTimeout(requestTimeout)

	telemetry.InstrumentResty(client, "lovable/http")
	restyutil.InstrumentClient(client, restyInstrumentOutput)

	return &Client{http: client}, nil
}

// transportError tags a failed round trip (no response at all).
func transportError(err error) *RequestError {
	kind := safety.FailNetwork
	if os.IsTimeout(err) || strings.Contains(err.Error(), "Client.Timeout") ||
		errors.Is(err, context.DeadlineExceeded) {
		kind = safety.FailTimeout
	}
	return &RequestError{Kind: kind, Message: err.Error()}
}

// RemixProject creates a remix of an existing project.
func (c *Client) RemixProject(ctx context.Context, projectID string, includeHistory bool) (RemixOutcome, error) {
	ctx, span := tracer.Start(ctx, "client:RemixProject")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"include_history": includeHistory}).
		Post(fmt.Sprintf("/projects/%s/remix", projectID))
	if err != nil {
		span.SetStatus(codes.Error, "remix request failed")
		return RemixOutcome{}, transportError(err)
	}

	if res.StatusCode() != 200 && res.StatusCode() != 201 {
		reqErr := statusError(res.StatusCode(), res.Body())
		span.SetStatus(codes.Error, reqErr.Message)
		return RemixOutcome{}, reqErr
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		span.SetStatus(codes.Error, "failed to parse remix response")
		return RemixOutcome{}, &RequestError{
			Kind:       safety.FailUnknown,
			StatusCode: res.StatusCode(),
			Message:    fmt.Sprintf("unparseable remix response: %s", err),
		}
	}

	// the response shape varies, the id has been seen under several keys
	newID := stringField(body, "id", "project_id", "projectId")
	if newID == "" {
		span.SetStatus(codes.Error, "remix response carried no project id")
		return RemixOutcome{}, &RequestError{
			Kind:       safety.FailUnknown,
			StatusCode: res.StatusCode(),
			Message:    "remix response carried no project id",
		}
	}

	return RemixOutcome{
		NewProjectID:  newID,
		NewProjectURL: ProjectURL(newID),
		StatusCode:    res.StatusCode(),
	}, nil
}

// ListProjects lists the authenticated user's projects. The endpoint is
// undocumented and may not exist at all.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	ctx, span := tracer.Start(ctx, "client:ListProjects")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get("/projects")
	if err != nil {
		span.SetStatus(codes.Error, "list request failed")
		return nil, transportError(err)
	}
	if res.StatusCode() != 200 {
		reqErr := statusError(res.StatusCode(), res.Body())
		span.SetStatus(codes.Error, reqErr.Message)
		return nil, reqErr
	}

	var body any
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, &RequestError{
			Kind:       safety.FailUnknown,
			StatusCode: res.StatusCode(),
			Message:    fmt.Sprintf("unparseable project list: %s", err),
		}
	}

	var items []any
	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, key := range []string{"projects", "items"} {
			if nested, ok := v[key].([]any); ok {
				items = nested
				break
			}
		}
	}

	projects := make([]Project, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := stringField(fields, "id")
		projects = append(projects, Project{
			ID:        id,
			Name:      stringField(fields, "name"),
			URL:       ProjectURL(id),
			CreatedAt: stringField(fields, "created_at", "createdAt"),
			UpdatedAt: stringField(fields, "updated_at", "updatedAt"),
		})
	}
	return projects, nil
}

// GetProject fetches details for one project.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	ctx, span := tracer.Start(ctx, "client:GetProject")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/projects/%s", projectID))
	if err != nil {
		span.SetStatus(codes.Error, "get request failed")
		return Project{}, transportError(err)
	}
	if res.StatusCode() != 200 {
		reqErr := statusError(res.StatusCode(), res.Body())
		span.SetStatus(codes.Error, reqErr.Message)
		return Project{}, reqErr
	}

	var fields map[string]any
	if err := json.Unmarshal(res.Body(), &fields); err != nil {
		return Project{}, &RequestError{
			Kind:       safety.FailUnknown,
			StatusCode: res.StatusCode(),
			Message:    fmt.Sprintf("unparseable project: %s", err),
		}
	}

	id := stringField(fields, "id")
	if id == "" {
		id = projectID
	}
	return Project{
		ID:        id,
		Name:      stringField(fields, "name"),
		URL:       ProjectURL(id),
		CreatedAt: stringField(fields, "created_at", "createdAt"),
		UpdatedAt: stringField(fields, "updated_at", "updatedAt"),
	}, nil
}

// ProbeTargets returns the fixed candidate endpoints of the discovery probe,
// ordered by how likely they are to exist.
func ProbeTargets() []ProbeTarget {
	return []ProbeTarget{
		{Method: "GET", Endpoint: "/me"},
		{Method: "GET", Endpoint: "/user"},
		{Method: "GET", Endpoint: "/profile"},
		{Method: "GET", Endpoint: "/projects"},
		{Method: "GET", Endpoint: "/workspaces"},
		{Method: "GET", Endpoint: "/account"},
	}
}

// Probe issues a single discovery request against a candidate endpoint.
func (c *Client) Probe(ctx context.Context, target ProbeTarget) ProbeResult {
	ctx, span := tracer.Start(ctx, "client:Probe")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Execute(target.Method, target.Endpoint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ProbeResult{
			Endpoint: target.Endpoint,
			Error:    err.Error(),
		}
	}
	return ProbeResult{
		Endpoint:   target.Endpoint,
		StatusCode: res.StatusCode(),
		OK:         res.StatusCode() == 200,
	}
}

func stringField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := fields[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
