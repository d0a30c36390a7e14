package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"remixctl/lib/lovable"
	"remixctl/services/safety"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("lovable/browser")

const (
	navigationTimeout = 30 * time.Second
	actionTimeout     = 10 * time.Second
	// remix builds can take a while before the frontend redirects
	remixCreationTimeout = 2 * time.Minute
)

// Driver performs Lovable workflows through the real browser UI. It is
// interchangeable with the HTTP client from the safety gate's perspective:
// one method call is one attempt reporting success or a tagged failure.
type Driver struct {
	opts DriverOptions
}

type DriverOptions struct {
	Headless bool
	// SlowMo is inserted after each UI step to keep the automation from
	// outpacing the frontend.
	SlowMo time.Duration
	// Cookies restore a previously authenticated session.
	Cookies []SessionCookie
}

// SessionCookie is the subset of a browser cookie we persist between runs.
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

func NewDriver(opts DriverOptions) Driver {
	if opts.SlowMo == 0 {
		opts.SlowMo = 100 * time.Millisecond
	}
	return Driver{opts: opts}
}

func (d Driver) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

func (d Driver) restoreSession(ctx context.Context) error {
	if len(d.opts.Cookies) == 0 {
		return fmt.Errorf("no session cookies, authenticate first")
	}
	return chromedp.Run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range d.opts.Cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// clickMenuItemJS finds a rendered menu item whose text mentions "remix" and
// clicks it. Selector-based lookup is too brittle here, menu item ordering
// changes between frontend deploys.
const clickMenuItemJS = `(() => {
	const items = Array.from(document.querySelectorAll("[role='menuitem']"));
	const target = items.find(el => el.innerText.toLowerCase().includes("remix"));
	if (!target) return false;
	target.click();
	return true;
})()`

const toggleHistoryJS = `((want) => {
	const toggle = document.querySelector("[role='dialog'] [role='switch']");
	if (!toggle) return false;
	const on = toggle.getAttribute("aria-checked") === "true";
	if (on !== want) toggle.click();
	return true;
})(%t)`

const clickDialogRemixJS = `(() => {
	const dialog = document.querySelector("[role='dialog']");
	if (!dialog) return false;
	const button = Array.from(dialog.querySelectorAll("button"))
		.find(el => el.innerText.trim().toLowerCase() === "remix");
	if (!button) return false;
	button.click();
	return true;
})()`

// Remix drives the "Remix this project" menu flow: open the project, open
// the header menu, click the remix item, configure the history toggle in the
// confirmation dialog, confirm, then wait for the redirect to the freshly
// created project.
func (d Driver) Remix(ctx context.Context, projectID string, includeHistory bool) (lovable.RemixOutcome, error) {
	ctx, span := tracer.Start(ctx, "driver:Remix")
	defer span.End()

	browserCtx, cancel := d.newBrowserContext(ctx)
	defer cancel()

	if err := d.restoreSession(browserCtx); err != nil {
		span.SetStatus(codes.Error, "failed to restore session")
		return lovable.RemixOutcome{}, &lovable.RequestError{
			Kind:    safety.FailUnauthorized,
			Message: err.Error(),
		}
	}

	navCtx, cancelNav := context.WithTimeout(browserCtx, navigationTimeout)
	defer cancelNav()

	slog.InfoContext(ctx, "navigating to project", "project_id", projectID)
	err := chromedp.Run(navCtx,
		chromedp.Navigate(lovable.ProjectURL(projectID)),
		// the editor keeps websockets open forever, waiting for network
		// idle would never return; settle on a fixed pause instead
		chromedp.Sleep(3*time.Second),
	)
	if err != nil {
		return lovable.RemixOutcome{}, uiFailure(span, "failed to open project page", err)
	}

	actCtx, cancelAct := context.WithTimeout(browserCtx, actionTimeout)
	defer cancelAct()

	slog.DebugContext(ctx, "opening project menu")
	err = chromedp.Run(actCtx,
		chromedp.Click(`button[aria-haspopup="menu"]`, chromedp.ByQuery),
		chromedp.Sleep(d.opts.SlowMo),
	)
	if err != nil {
		return lovable.RemixOutcome{}, uiFailure(span, "failed to open project menu", err)
	}

	var clicked bool
	err = chromedp.Run(actCtx,
		chromedp.Evaluate(clickMenuItemJS, &clicked),
		chromedp.Sleep(d.opts.SlowMo),
	)
	if err != nil || !clicked {
		if err == nil {
			err = fmt.Errorf("could not find remix menu item")
		}
		return lovable.RemixOutcome{}, uiFailure(span, "failed to click remix menu item", err)
	}

	// the dialog is optional, some projects remix directly
	var toggled, confirmed bool
	err = chromedp.Run(actCtx,
		chromedp.Evaluate(fmt.Sprintf(toggleHistoryJS, includeHistory), &toggled),
		chromedp.Sleep(d.opts.SlowMo),
		chromedp.Evaluate(clickDialogRemixJS, &confirmed),
	)
	if err != nil {
		return lovable.RemixOutcome{}, uiFailure(span, "failed to confirm remix dialog", err)
	}
	if !confirmed {
		slog.DebugContext(ctx, "no confirmation dialog, remix may have started directly")
	}

	newID, err := d.waitForNewProject(browserCtx, projectID)
	if err != nil {
		return lovable.RemixOutcome{}, uiFailure(span, "timeout waiting for remix to complete", err)
	}

	slog.InfoContext(ctx, "remix created", "new_project_id", newID)
	return lovable.RemixOutcome{
		NewProjectID:  newID,
		NewProjectURL: lovable.ProjectURL(newID),
	}, nil
}

// waitForNewProject polls the page location until it references a project id
// different from the source.
func (d Driver) waitForNewProject(ctx context.Context, sourceID string) (string, error) {
	deadline := time.Now().Add(remixCreationTimeout)
	for time.Now().Before(deadline) {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return "", err
		}
		if id := lovable.ExtractProjectID(location); id != "" && id != sourceID {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return "", fmt.Errorf("no redirect to a new project within %s", remixCreationTimeout)
}

func uiFailure(span trace.Span, message string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, message)

	kind := safety.FailUnknown
	if errors.Is(err, context.DeadlineExceeded) {
		kind = safety.FailTimeout
	}
	return &lovable.RequestError{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %s", message, err),
	}
}
