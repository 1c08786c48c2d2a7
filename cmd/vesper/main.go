package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vesper/internal/chain"
	"vesper/internal/client"
	"vesper/internal/config"
	"vesper/internal/meta"
	"vesper/internal/pool"
	"vesper/internal/units"
)

func main() {
	root := &cobra.Command{
		Use:          "vesper",
		Short:        "Vesper pool client",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "Ethereum RPC URL")
	root.PersistentFlags().String("account", "", "account address operations act for")
	root.PersistentFlags().StringSlice("stages", []string{"prod"}, "pool stages to resolve (comma-separated)")
	root.PersistentFlags().Float64("gas-overestimation", 1.5, "gas estimate multiplier")
	root.PersistentFlags().Int64("dust-tolerance-bps", 10, "withdraw dust tolerance in basis points")
	root.PersistentFlags().Duration("receipt-poll-interval", 0, "delay between receipt polls")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		poolsCmd(),
		portfolioCmd(),
		tvlCmd(),
		depositCmd(),
		withdrawCmd(),
		claimCmd(),
		rebalanceCmd(),
		migrateCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func poolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List pools resolved for the active network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				for _, p := range c.Pools() {
					cfg := p.Pool().Config
					fmt.Printf("%-12s %s asset=%s stage=%s v%d\n",
						cfg.Name, cfg.Address, cfg.Asset.Symbol, cfg.Stage, cfg.Version)
				}
				return nil
			})
		},
	}
}

func portfolioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show the account's aggregated positions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				for name, pos := range c.Portfolio().Positions(ctx) {
					fmt.Printf("%-12s assets=%s tokens=%s rewards=%s timelock=%ss\n",
						name, pos.Assets, pos.Tokens, pos.ClaimableRewards, pos.Timelock)
				}
				for symbol, balance := range c.Portfolio().Balances(ctx) {
					fmt.Printf("wallet %-6s %s\n", symbol, balance)
				}
				return nil
			})
		},
	}
}

func tvlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tvl [pool]",
		Short: "Show value locked, per pool or for one pool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				pools := c.Pools()
				if len(args) == 1 {
					p, ok := c.Pool(args[0])
					if !ok {
						return fmt.Errorf("unknown pool %q", args[0])
					}
					pools = []*pool.Client{p}
				}
				for _, p := range pools {
					locked, err := p.ValueLocked(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("%-12s %s\n", p.Name(), locked)
				}
				return nil
			})
		},
	}
}

func depositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <pool> <amount>",
		Short: "Deposit into a pool (amount in asset units, e.g. 1.5)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				p, ok := c.Pool(args[0])
				if !ok {
					return fmt.Errorf("unknown pool %q", args[0])
				}
				amount, err := units.ToBaseUnits(args[1], p.Pool().Config.Asset.Decimals)
				if err != nil {
					return err
				}
				result, err := p.Deposit(ctx, amount)
				if err != nil {
					return err
				}
				printResult(result.Sent, result.Received, result.Fees, result.Status, len(result.Raw))
				return nil
			})
		},
	}
}

func withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <pool> <amount>",
		Short: "Withdraw from a pool (amount in asset units)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				p, ok := c.Pool(args[0])
				if !ok {
					return fmt.Errorf("unknown pool %q", args[0])
				}
				amount, err := units.ToBaseUnits(args[1], p.Pool().Config.Asset.Decimals)
				if err != nil {
					return err
				}
				result, err := p.Withdraw(ctx, amount)
				if err != nil {
					return err
				}
				printResult(result.Sent, result.Received, result.Fees, result.Status, len(result.Raw))
				return nil
			})
		},
	}
}

func claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <pool>",
		Short: "Claim accrued rewards from a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				p, ok := c.Pool(args[0])
				if !ok {
					return fmt.Errorf("unknown pool %q", args[0])
				}
				result, err := p.ClaimRewards(ctx)
				if err != nil {
					return err
				}
				printResult(result.Sent, result.Received, result.Fees, result.Status, len(result.Raw))
				return nil
			})
		},
	}
}

func rebalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance <pool>",
		Short: "Reinvest a pool's idle balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				p, ok := c.Pool(args[0])
				if !ok {
					return fmt.Errorf("unknown pool %q", args[0])
				}
				if !p.CanRebalance(ctx) {
					return fmt.Errorf("pool %s has nothing to rebalance", p.Name())
				}
				result, err := p.Rebalance(ctx)
				if err != nil {
					return err
				}
				printResult(result.Sent, result.Received, result.Fees, result.Status, len(result.Raw))
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <pool>",
		Short: "Migrate the full position into the pool's successor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				p, ok := c.Pool(args[0])
				if !ok {
					return fmt.Errorf("unknown pool %q", args[0])
				}
				result, err := p.Migrate(ctx, "")
				if err != nil {
					return err
				}
				printResult(result.Sent, result.Received, result.Fees, result.Status, len(result.Raw))
				return nil
			})
		},
	}
}

func printResult(sent, received, fees string, status bool, steps int) {
	fmt.Printf("status=%t steps=%d sent=%s received=%s fees=%s\n", status, steps, sent, received, fees)
}

func withClient(cmd *cobra.Command, fn func(context.Context, *client.Client) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer transport.Close()

	stages := make([]meta.Stage, 0, len(cfg.Stages))
	for _, s := range cfg.Stages {
		stages = append(stages, meta.Stage(s))
	}

	c, err := client.New(ctx, transport, client.Config{
		Account:             common.HexToAddress(cfg.Account),
		Stages:              stages,
		GasOverestimation:   cfg.GasOverestimation,
		DustToleranceBps:    cfg.DustToleranceBps,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
		Logger:              logger,
	})
	if err != nil {
		return err
	}

	return fn(ctx, c)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
