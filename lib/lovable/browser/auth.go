package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/codes"
)

const (
	loginURL    = "https://lovable.dev/login"
	projectsURL = "https://lovable.dev/projects"
)

// Session is what a successful login yields: the bearer token the frontend
// uses against the API, plus the cookies needed to restore the browser
// session later.
type Session struct {
	BearerToken string
	Cookies     []SessionCookie
}

// captureBearerTokens watches outgoing requests for Authorization headers,
// which is how the frontend's own bearer token gets extracted.
func captureBearerTokens(browserCtx context.Context) <-chan string {
	tokens := make(chan string, 16)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		header, ok := req.Request.Headers["Authorization"].(string)
		if !ok || !strings.HasPrefix(header, "Bearer ") {
			return
		}
		select {
		case tokens <- strings.TrimPrefix(header, "Bearer "):
		default:
		}
	})
	return tokens
}

const clickButtonByTextJS = `((label) => {
	const buttons = Array.from(document.querySelectorAll("button"));
	const target = buttons.find(el => el.innerText.trim().toLowerCase().includes(label));
	if (!target) return false;
	target.click();
	return true;
})(%q)`

// Login performs the two-step email/password flow and captures the bearer
// token by watching outgoing requests for an Authorization header.
func (d Driver) Login(ctx context.Context, email, password string) (Session, error) {
	ctx, span := tracer.Start(ctx, "driver:Login")
	defer span.End()

	browserCtx, cancel := d.newBrowserContext(ctx)
	defer cancel()

	tokens := captureBearerTokens(browserCtx)

	navCtx, cancelNav := context.WithTimeout(browserCtx, navigationTimeout)
	defer cancelNav()

	slog.InfoContext(ctx, "navigating to login")
	err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(loginURL),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open login page")
		return Session{}, fmt.Errorf("open login page: %w", err)
	}

	slog.DebugContext(ctx, "submitting email")
	var clicked bool
	err = chromedp.Run(navCtx,
		chromedp.WaitVisible(`input[type="email"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="email"]`, email, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(clickButtonByTextJS, "continue"), &clicked),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit email")
		return Session{}, fmt.Errorf("submit email: %w", err)
	}

	slog.DebugContext(ctx, "submitting password")
	err = chromedp.Run(navCtx,
		chromedp.WaitVisible(`input[type="password"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="password"]`, password, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(clickButtonByTextJS, "log in"), &clicked),
	)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit password")
		return Session{}, fmt.Errorf("submit password: %w", err)
	}

	if err := waitForURLCondition(navCtx, 15*time.Second, func(url string) bool {
		return !strings.Contains(url, "/login")
	}); err != nil {
		span.SetStatus(codes.Error, "login did not complete")
		return Session{}, fmt.Errorf("login did not complete: %w", err)
	}

	// visiting the projects page forces at least one authenticated API call
	err = chromedp.Run(navCtx,
		chromedp.Navigate(projectsURL),
		chromedp.Sleep(3*time.Second),
	)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open projects page")
		return Session{}, fmt.Errorf("open projects page: %w", err)
	}

	var token string
	select {
	case token = <-tokens:
	default:
		span.SetStatus(codes.Error, "no bearer token captured")
		return Session{}, fmt.Errorf("login succeeded but no bearer token was captured")
	}

	cookies, err := exportCookies(browserCtx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to export cookies")
		return Session{}, fmt.Errorf("export cookies: %w", err)
	}

	slog.InfoContext(ctx, "login successful", "cookies", len(cookies))
	return Session{BearerToken: token, Cookies: cookies}, nil
}

// Validate checks a restored session by opening the projects page and
// confirming we are not bounced back to the login, refreshing the captured
// bearer token along the way.
func (d Driver) Validate(ctx context.Context) (Session, bool, error) {
	ctx, span := tracer.Start(ctx, "driver:Validate")
	defer span.End()

	browserCtx, cancel := d.newBrowserContext(ctx)
	defer cancel()

	tokens := captureBearerTokens(browserCtx)

	if err := d.restoreSession(browserCtx); err != nil {
		return Session{}, false, err
	}

	navCtx, cancelNav := context.WithTimeout(browserCtx, navigationTimeout)
	defer cancelNav()

	var location string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(projectsURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&location),
	)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open projects page")
		return Session{}, false, err
	}
	if strings.Contains(location, "/login") {
		return Session{}, false, nil
	}

	var token string
	select {
	case token = <-tokens:
	default:
		// logged in but no API call fired yet, session is still usable
	}

	cookies, err := exportCookies(browserCtx)
	if err != nil {
		return Session{}, false, err
	}
	return Session{BearerToken: token, Cookies: cookies}, true, nil
}

func waitForURLCondition(ctx context.Context, timeout time.Duration, cond func(string) bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return err
		}
		if cond(location) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("condition not met within %s", timeout)
}

func exportCookies(ctx context.Context) ([]SessionCookie, error) {
	var out []SessionCookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, SessionCookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}
