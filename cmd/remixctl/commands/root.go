package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"remixctl/lib/lovable"
	"remixctl/lib/restyutil"
)

var dumpHttp *string

func init() {
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Dump every HTTP exchange to this directory.")
}

var rootCmd = &cobra.Command{
	Use:   "remixctl",
	Short: "remixctl drives rate-limited remix operations against lovable.dev.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if *dumpHttp != "" {
			lovable.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(*dumpHttp))
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
