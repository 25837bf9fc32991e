package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/app"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/config"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/tools/gatewaycheck"
)

func main() {
	// A missing .env is fine; production deployments set real env vars.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "sessiond",
		Short: "Session gateway for the clients-plus dashboard and portal",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(gatewaycheck.NewCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
			if err != nil {
				return err
			}

			rt, err := observability.InitRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			rt.LoggerProvider = loggerProvider

			a, err := app.Build(ctx, cfg, logger, rt)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}
