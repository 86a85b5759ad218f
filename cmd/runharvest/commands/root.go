package commands

import (
	"context"
	"fmt"
	"os"

	"runharvest/internal/config"
	"runharvest/lib/serviceutil"
	"runharvest/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "runharvest [--start-month N] [--end-month N] [--incremental] [--only NAME]...",
	Short: "Harvests every runner's activities from runkeeper into one dataset.",
	Args:  cobra.NoArgs,
	Run:   runHarvest,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "The config file, a sibling .local.json5 file overrides it.")
}

// ExecuteContext runs the command line, exiting non-zero when a command fails.
func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	err = cfg.Validate()
	if err != nil {
		serviceutil.Fatal("invalid config", err)
	}
	telemetry.InitSlog(cfg.LogLevel)
	return cfg
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
