package main

import (
	"os"

	"billbuddy/internal/cli"
	applog "billbuddy/internal/log"
)

func main() {
	logger := cli.SetupLogger("info")

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		os.Exit(1)
	}
	logger = cli.SetupLogger(cfg.LogLevel)

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.InfoContext(ctx, "Starting billbuddy",
		applog.FieldOperation, applog.OpStartup,
		"db_path", cfg.DBPath,
		"default_currency", cfg.DefaultCurrency)

	if err := cli.Run(ctx, cfg, logger); err != nil {
		stop()
		os.Exit(1)
	}
}
