package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"remixctl/lib/serviceutil"
	"remixctl/services/safety"
)

var statusVerbose *bool
var statusJson *bool

func init() {
	statusVerbose = statusCmd.Flags().BoolP("verbose", "v", false, "Also show the request log and remix history.")
	statusJson = statusCmd.Flags().Bool("json", false, "Print the raw state as JSON.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows safety counters, breaker state and today's activity.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		gate, err := openGate(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to open safety gate", err)
		}
		state := gate.Status()

		if *statusJson {
			if err := printJSON(state); err != nil {
				serviceutil.Fatal("failed to encode state", err)
			}
			return
		}

		breaker := "ok"
		if active, remaining := gate.BreakerActive(); active {
			breaker = fmt.Sprintf("TRIPPED, %.1f minutes until reset", remaining.Minutes())
		}
		lastRequest := "never"
		if !state.LastRequestTime.IsZero() {
			lastRequest = state.LastRequestTime.Format("15:04:05")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRow(table.Row{"Date", state.LastResetDate})
		t.AppendRow(table.Row{"Requests today", fmt.Sprintf("%d / %d", state.RequestsToday, safety.MaxRequestsPerHour)})
		t.AppendRow(table.Row{"Remixes today", fmt.Sprintf("%d / %d", state.RemixesToday, safety.MaxRemixesPerDay)})
		t.AppendRow(table.Row{"Consecutive failures", fmt.Sprintf("%d / %d", state.ConsecutiveFailures, safety.MaxConsecutiveFailures)})
		t.AppendRow(table.Row{"Circuit breaker", breaker})
		t.AppendRow(table.Row{"Last request", lastRequest})
		t.AppendRow(table.Row{"Remixed projects", len(state.RemixHistory)})
		t.Render()

		if !*statusVerbose {
			return
		}

		if len(state.RequestLog) > 0 {
			fmt.Println()
			lt := table.NewWriter()
			lt.SetOutputMirror(os.Stdout)
			lt.AppendHeader(table.Row{"Time", "Operation", "Endpoint", "OK", "Status", "Error"})
			for _, entry := range state.RequestLog {
				lt.AppendRow(table.Row{
					entry.Timestamp.Format("15:04:05"),
					entry.Operation,
					entry.Endpoint,
					entry.Success,
					entry.ResponseCode,
					entry.Error,
				})
			}
			lt.Render()
		}

		if len(state.RemixHistory) > 0 {
			fmt.Println()
			ht := table.NewWriter()
			ht.SetOutputMirror(os.Stdout)
			ht.AppendHeader(table.Row{"Source", "Remix"})
			for source, remixed := range state.RemixHistory {
				ht.AppendRow(table.Row{source, remixed})
			}
			ht.Render()
		}
	},
}
