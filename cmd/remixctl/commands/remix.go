package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"remixctl/lib/serviceutil"
	"remixctl/services/remix"
)

var remixIncludeHistory *bool
var remixYes *bool
var remixJson *bool

func init() {
	remixIncludeHistory = remixCmd.Flags().Bool("include-history", true, "Carry the edit history into the remix.")
	remixYes = remixCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt.")
	remixJson = remixCmd.Flags().Bool("json", false, "Print the result as JSON.")
	rootCmd.AddCommand(remixCmd)
}

var remixCmd = &cobra.Command{
	Use:   "remix [project id or URL]",
	Short: "Remixes a project through the HTTP API.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		project, err := targetProject(cfg, args)
		if err != nil {
			serviceutil.Fatal("failed to resolve project", err)
		}
		client, err := newAPIClient(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to build API client", err)
		}
		wf, err := openWorkflow(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to open safety gate", err)
		}

		result, err := wf.CreateRemix(ctx, remix.APITransport{Client: client},
			project, *remixIncludeHistory, *remixYes)
		if err != nil {
			serviceutil.Fatal("remix failed", err)
		}
		reportResult(result, *remixJson)
	},
}

func reportResult(result remix.Result, asJson bool) {
	if asJson {
		if err := printJSON(result); err != nil {
			serviceutil.Fatal("failed to encode result", err)
		}
	} else if result.Success {
		fmt.Printf("Remixed %s\n", result.SourceProjectID)
		fmt.Printf("  new project: %s\n", result.NewProjectID)
		if result.NewProjectURL != "" {
			fmt.Printf("  url:         %s\n", result.NewProjectURL)
		}
	} else {
		fmt.Printf("Remix failed: %s\n", result.Error)
	}
	if !result.Success {
		os.Exit(1)
	}
}
