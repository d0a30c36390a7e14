package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"remixctl/lib/serviceutil"
)

var projectsJson *bool

func init() {
	projectsJson = projectsCmd.Flags().Bool("json", false, "Print the projects as JSON.")
	rootCmd.AddCommand(projectsCmd)
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Lists the projects visible to the authenticated account.",
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

		projects, err := wf.ListProjects(ctx, client)
		if err != nil {
			serviceutil.Fatal("failed to list projects", err)
		}

		if *projectsJson {
			if err := printJSON(projects); err != nil {
				serviceutil.Fatal("failed to encode projects", err)
			}
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Updated"})
		for _, p := range projects {
			t.AppendRow(table.Row{p.ID, p.Name, p.UpdatedAt})
		}
		t.Render()
	},
}
