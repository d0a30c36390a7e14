package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"remixctl/lib/serviceutil"
)

var probeLimit *int
var probeJson *bool

func init() {
	probeLimit = probeCmd.Flags().Int("limit", 0, "Probe at most this many endpoints (0 = all).")
	probeJson = probeCmd.Flags().Bool("json", false, "Print the results as JSON.")
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe [--limit <n>]",
	Short: "Probes candidate API endpoints to see which respond.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		client, err := newAPIClient(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to build API client", err)
		}
		wf, err := openWorkflow(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to open safety gate", err)
		}

		results, err := wf.Probe(ctx, client, *probeLimit)
		if err != nil {
			serviceutil.Fatal("probe aborted", err)
		}

		if *probeJson {
			if err := printJSON(results); err != nil {
				serviceutil.Fatal("failed to encode results", err)
			}
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Endpoint", "Status", "OK", "Error"})
		for _, r := range results {
			t.AppendRow(table.Row{r.Endpoint, r.StatusCode, r.OK, r.Error})
		}
		t.Render()
	},
}
