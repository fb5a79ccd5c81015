package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stableScope/internal/config"
	"stableScope/internal/simulate"
	"stableScope/internal/storage"
	"stableScope/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	snap, err := storage.ReadSnapshotFile(cfg.Snapshot)
	if err != nil {
		return err
	}
	pool, err := snap.Pool()
	if err != nil {
		return fmt.Errorf("snapshot is not a valid pool: %w", err)
	}
	pool.StrictConvergence = cfg.Strict

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stateStore simulate.StateStore
	if cfg.StateFile != "" {
		stateStore = &simulate.FileStateStore{Path: cfg.StateFile}
	} else if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		stateStore = &simulate.DBStateStore{Store: store, Name: fmt.Sprintf("simulate:%s", cfg.Name)}
	}

	input, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	sim := simulate.NewSimulator(pool)
	runner := simulate.NewRunner(simulate.RunConfig{
		Name:       cfg.Name,
		BatchSize:  cfg.BatchSize,
		StateStore: stateStore,
	}, sim, storage.NewJsonlStorage(cfg.Out), logger)

	logger.Info("simulate start",
		zap.String("snapshot", cfg.Snapshot),
		zap.String("input", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("state_file", cfg.StateFile),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("name", cfg.Name),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("strict", cfg.Strict),
	)

	if _, err := runner.Run(ctx, input); err != nil {
		return err
	}

	if cfg.Final != "" {
		if err := storage.WriteSnapshotFile(cfg.Final, snap.WithState(sim.Pool())); err != nil {
			return err
		}
		logger.Info("final snapshot written", zap.String("path", cfg.Final))
	}
	return nil
}
