package main

import (
	"context"
	"log/slog"
	"time"

	"runharvest/cmd/runharvest/commands"
	"runharvest/lib/osutil"
	"runharvest/lib/telemetry"
)

func main() {
	ctx, cancel := osutil.SignalContext()
	defer cancel()

	telemetry.InitSlog("info")
	tel, err := telemetry.SetupFromEnv(ctx, "runharvest")
	if err != nil {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to flush telemetry", "err", err.Error())
		}
	}()

	commands.ExecuteContext(ctx)
}
