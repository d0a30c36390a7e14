package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"remixctl/lib/serviceutil"
	"remixctl/lib/telemetry"
	"remixctl/services/remix"
)

var errNoBrowserSession = errors.New("no stored cookies, run `remixctl auth` first")

var uiRemixNoHistory *bool
var uiRemixYes *bool
var uiRemixJson *bool
var uiRemixDebug *bool

func init() {
	uiRemixNoHistory = uiRemixCmd.Flags().Bool("no-history", false, "Remix without the edit history.")
	uiRemixYes = uiRemixCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt.")
	uiRemixJson = uiRemixCmd.Flags().Bool("json", false, "Print the result as JSON.")
	uiRemixDebug = uiRemixCmd.Flags().Bool("debug", false, "Show the browser and enable debug logging.")
	rootCmd.AddCommand(uiRemixCmd)
}

var uiRemixCmd = &cobra.Command{
	Use:   "ui-remix [project id or URL]",
	Short: "Remixes a project by driving the web UI in a browser.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *uiRemixDebug {
			telemetry.InitSlog(true)
			cfg.Headless = false
		}

		project, err := targetProject(cfg, args)
		if err != nil {
			serviceutil.Fatal("failed to resolve project", err)
		}
		session, err := resolveSession(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to load session", err)
		}
		if len(session.Cookies) == 0 {
			serviceutil.Fatal("ui-remix needs a browser session", errNoBrowserSession)
		}
		wf, err := openWorkflow(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to open safety gate", err)
		}

		driver := newDriver(cfg, session.Cookies)
		result, err := wf.CreateRemix(ctx, remix.UITransport{Driver: driver},
			project, !*uiRemixNoHistory, *uiRemixYes)
		if err != nil {
			serviceutil.Fatal("remix failed", err)
		}
		reportResult(result, *uiRemixJson)
	},
}
