package serviceutil

import (
	"log/slog"
	"os"
)

// Fatal logs the error and exits with a non-zero status, it is only called from cmd/.
func Fatal(message string, err error) {
	if err != nil {
		slog.Error(message, "err", err.Error())
	} else {
		slog.Error(message)
	}
	os.Exit(1)
}
