package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"remixctl/lib/configutil"
	"remixctl/lib/lovable"
	"remixctl/lib/lovable/browser"
	"remixctl/lib/prompt"
	"remixctl/services/keyring"
	"remixctl/services/remix"
	"remixctl/services/safety"
)

type Config struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// BearerToken overrides the stored session token when set.
	BearerToken string `json:"bearer_token"`
	// ProjectID or ProjectURL is the default remix target when no argument
	// is given.
	ProjectID  string `json:"project_id"`
	ProjectURL string `json:"project_url"`
	Headless   bool   `json:"headless"`
	SlowMoMs   int    `json:"slow_mo_ms"`
	// StateDir overrides where the safety state and keyring live,
	// default ~/.remixctl.
	StateDir string `json:"state_dir"`
}

// loadConfig reads config.json5 from the working directory. A missing file
// is fine, everything has a default or comes from the keyring.
func loadConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config.json5: %w", err)
	}
	return cfg, nil
}

func stateDir(cfg Config) (string, error) {
	if cfg.StateDir != "" {
		return cfg.StateDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".remixctl"), nil
}

func safetyStore(cfg Config) (safety.FileStore, error) {
	dir, err := stateDir(cfg)
	if err != nil {
		return safety.FileStore{}, err
	}
	return safety.NewFileStore(filepath.Join(dir, "safety_state.json")), nil
}

func openKeyring(cfg Config) (*keyring.Store, error) {
	dir, err := stateDir(cfg)
	if err != nil {
		return nil, err
	}
	return keyring.Open(filepath.Join(dir, "keyring.db"))
}

// openGate builds the safety gate over the persisted state, with an
// interactive confirmation prompt attached.
func openGate(ctx context.Context, cfg Config) (*safety.Gate, error) {
	store, err := safetyStore(cfg)
	if err != nil {
		return nil, err
	}
	return safety.NewGate(ctx, safety.GateOptions{
		Store:     store,
		Confirmer: prompt.TerminalConfirmer{},
	})
}

func openWorkflow(ctx context.Context, cfg Config) (*remix.Workflow, error) {
	gate, err := openGate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return remix.NewWorkflow(remix.WorkflowOptions{Gate: gate}), nil
}

// resolveSession loads the stored browser session. The configured bearer
// token, when present, takes precedence over the stored one.
func resolveSession(ctx context.Context, cfg Config) (browser.Session, error) {
	session := browser.Session{BearerToken: cfg.BearerToken}

	ring, err := openKeyring(cfg)
	if err != nil {
		return session, err
	}
	defer ring.Close()

	stored, err := ring.LoadSession(ctx, keyring.DefaultNamespace)
	if err == keyring.ErrNoSession {
		if session.BearerToken == "" {
			return session, fmt.Errorf("no credentials: run `remixctl auth` or set bearer_token in config.json5")
		}
		return session, nil
	}
	if err != nil {
		return session, err
	}

	stored.BearerToken = firstNonEmpty(cfg.BearerToken, stored.BearerToken)
	return stored, nil
}

func newAPIClient(ctx context.Context, cfg Config) (*lovable.Client, error) {
	session, err := resolveSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if session.BearerToken == "" {
		return nil, fmt.Errorf("stored session has no bearer token: run `remixctl auth --force`")
	}
	return lovable.NewClient(ctx, lovable.ClientOptions{
		BearerToken: session.BearerToken,
	})
}

func newDriver(cfg Config, cookies []browser.SessionCookie) browser.Driver {
	return browser.NewDriver(browser.DriverOptions{
		Headless: cfg.Headless,
		SlowMo:   time.Duration(cfg.SlowMoMs) * time.Millisecond,
		Cookies:  cookies,
	})
}

// targetProject resolves the remix target from the argument list, falling
// back to the configured default project.
func targetProject(cfg Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.ProjectID != "" {
		return cfg.ProjectID, nil
	}
	if cfg.ProjectURL != "" {
		return cfg.ProjectURL, nil
	}
	return "", fmt.Errorf("no project given: pass a project id or URL, or set project_id in config.json5")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
