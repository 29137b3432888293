package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"StockIt/internal/di"
	"StockIt/pkg/config"
	"StockIt/pkg/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "stockit",
		Short:         "Stock opportunity scanner with live price tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(newServeCmd(load), newScanCmd(load), newBlueChipsCmd(load))
	return root
}

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and scheduled scans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			defer cleanup()

			return app.Run(ctx)
		},
	}
}

func newScanCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		symbols string
		minGain float64
		record  bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one bulk scan and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cli, cleanup, err := di.InitializeCLI(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			list := util.SplitSymbols(symbols)
			if len(list) == 0 {
				list = cfg.Scanner.Symbols
			}
			if len(list) == 0 {
				list = cli.BlueChips.Symbols(ctx)
			}
			if minGain <= 0 {
				minGain = cfg.Scanner.MinGain
			}

			res, err := cli.Bulk.Run(ctx, list, minGain, nil)
			if err != nil && len(res.Opportunities) == 0 {
				return err
			}
			if record {
				if err := cli.Processor.RecordScan(ctx, &res); err != nil {
					return fmt.Errorf("record scan: %w", err)
				}
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&symbols, "symbols", "", "comma separated tickers (defaults to the blue chip list)")
	cmd.Flags().Float64Var(&minGain, "min-gain", 0, "minimum potential gain in percent")
	cmd.Flags().BoolVar(&record, "record", false, "hand the result to the configured backend")
	return cmd
}

func newBlueChipsCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "bluechips",
		Short: "Print the current blue chip list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cli, cleanup, err := di.InitializeCLI(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return printJSON(cmd, cli.BlueChips.GetBlueChipStocks(cmd.Context()))
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

