package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenscope/internal/config"
	"tokenscope/internal/logging"
	"tokenscope/internal/price"
)

func main() {
	root := &cobra.Command{
		Use:          "tokenscope",
		Short:        "Live Solana token feed and SOL transfers",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(newFeedCmd())
	root.AddCommand(newTransferCmd())
	root.AddCommand(newBalanceCmd())
	root.AddCommand(newPriceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the dependencies shared by a single command invocation.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	// prices is shared so its circuit breaker spans every quote in the process.
	prices *price.Client
}

func newApp(cfg config.Config, logger *zap.Logger) *app {
	return &app{
		cfg:    cfg,
		logger: logger,
		prices: price.NewClient(price.WithURL(cfg.PriceURL), price.WithLogger(logger)),
	}
}

// setup loads the merged config for cmd and builds the logger.
func setup(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger), nil
}
