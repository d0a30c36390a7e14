package serviceutil

import (
	"log/slog"
	"os"
)

// Fatal logs the error and exits. For CLI entrypoints only.
func Fatal(message string, err error) {
	slog.Error(message, "err", err)
	os.Exit(1)
}
