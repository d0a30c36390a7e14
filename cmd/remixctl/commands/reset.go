package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"remixctl/lib/serviceutil"
)

var resetConfirm *bool

func init() {
	resetConfirm = resetCmd.Flags().Bool("confirm", false, "Actually delete the state.")
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset --confirm",
	Short: "Deletes the safety state: counters, breaker, request log and remix history.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if !*resetConfirm {
			fmt.Println("This deletes all safety counters AND the remix idempotency history.")
			fmt.Println("Re-run with --confirm to proceed.")
			return
		}

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		store, err := safetyStore(cfg)
		if err != nil {
			serviceutil.Fatal("failed to locate state", err)
		}
		if err := store.Delete(ctx); err != nil {
			serviceutil.Fatal("failed to delete state", err)
		}
		fmt.Println("Safety state deleted.")
	},
}
