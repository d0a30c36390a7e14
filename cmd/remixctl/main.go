package main

import (
	"context"
	"remixctl/cmd/remixctl/commands"
	"remixctl/lib/telemetry"
)

func main() {
	ctx := context.Background()
	telemetry.InitSlog(false)
	// a missing telemetry.json5 just leaves exporters unconfigured
	tel, err := telemetry.SetupFromEnv(ctx, "remixctl")
	if err == nil {
		defer tel.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)
	}
	commands.ExecuteContext(ctx)
}
