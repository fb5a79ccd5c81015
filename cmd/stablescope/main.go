package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "stablescope",
		Short:        "StableSwap pool quoting and simulation",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch a stable pool snapshot from chain",
		RunE:  runSnapshot,
	}

	snapshotCmd.Flags().String("rpc", "", "RPC URL")
	snapshotCmd.Flags().String("pool", "", "stable pool address")
	snapshotCmd.Flags().Int("n-coins", 2, "number of coins in the pool")
	snapshotCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	snapshotCmd.Flags().String("out", "./data/snapshot.json", "output snapshot JSON path")
	snapshotCmd.Flags().String("pg-dsn", "", "Postgres DSN (optional)")
	snapshotCmd.Flags().Int("concurrency", 4, "maximum concurrent RPC calls")
	snapshotCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	snapshotCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	snapshotCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(snapshotCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Evaluate one operation against a snapshot",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("snapshot", "./data/snapshot.json", "input snapshot JSON path")
	quoteCmd.Flags().String("op", "swap", "operation (swap, reverse, provide, withdraw-imbalanced, withdraw-one, withdraw-proportional, invariant)")
	quoteCmd.Flags().Int("from", 0, "input coin index")
	quoteCmd.Flags().Int("to", 1, "output coin index")
	quoteCmd.Flags().String("amount", "", "raw amount (offered, wanted or shares depending on op)")
	quoteCmd.Flags().StringSlice("amounts", nil, "raw per-coin amounts (comma-separated)")
	quoteCmd.Flags().String("out", "", "append quote record to this JSONL path")
	quoteCmd.Flags().String("pg-dsn", "", "Postgres DSN (optional)")
	quoteCmd.Flags().Bool("verify", false, "compare a swap against get_dy or the invariant against get_virtual_price")
	quoteCmd.Flags().String("rpc", "", "RPC URL for --verify")
	quoteCmd.Flags().String("pool", "", "pool address for --verify, defaults to the snapshot's")
	quoteCmd.Flags().Bool("strict", false, "fail when a solver hits its iteration cap")
	quoteCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	quoteCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay an operations JSONL against a snapshot",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("snapshot", "./data/snapshot.json", "input snapshot JSON path")
	simulateCmd.Flags().String("in", "", "input operations JSONL")
	simulateCmd.Flags().String("out", "./data/results.jsonl", "output results JSONL")
	simulateCmd.Flags().String("final-snapshot", "", "write the final pool state as a snapshot (optional)")
	simulateCmd.Flags().String("state-file", "", "optional local state file for resumable runs")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN for resumable runs")
	simulateCmd.Flags().String("name", "default", "simulation name used as the state key")
	simulateCmd.Flags().Int("batch-size", 500, "operations per results flush and checkpoint")
	simulateCmd.Flags().Bool("strict", false, "fail operations whose solver hits its iteration cap")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
