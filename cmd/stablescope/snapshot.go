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

	"stableScope/internal/chain"
	"stableScope/internal/config"
	"stableScope/internal/dex"
	"stableScope/internal/storage"
	"stableScope/internal/storage/postgres"
)

const tokenCacheSize = 1024

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSnapshot(cfgFile, cmd.Flags())
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
	if !common.IsHexAddress(cfg.Pool) {
		return fmt.Errorf("invalid pool address: %q", cfg.Pool)
	}
	pool := common.HexToAddress(cfg.Pool)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	tokenCache, err := dex.NewTokenMetaCache(tokenCacheSize)
	if err != nil {
		return err
	}

	logger.Info("snapshot start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pool", pool.Hex()),
		zap.Int("n_coins", cfg.NCoins),
		zap.Uint64("block", cfg.Block),
		zap.String("out", cfg.Out),
	)

	retry := dex.RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff}
	snap, err := dex.FetchPoolSnapshot(ctx, chainClient, pool, dex.SnapshotOptions{
		NCoins:      cfg.NCoins,
		BlockNumber: cfg.Block,
		Retry:       retry,
		TokenCache:  tokenCache,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	ts, err := chainClient.BlockTimestamp(ctx, snap.BlockNumber)
	if err != nil {
		logger.Warn("block timestamp unavailable", zap.Uint64("block", snap.BlockNumber), zap.Error(err))
	} else {
		snap.BlockTimestamp = ts
	}

	enginePool, err := snap.Pool()
	if err != nil {
		return fmt.Errorf("snapshot is not a valid pool: %w", err)
	}
	if ok, err := enginePool.Converges(); err != nil {
		return fmt.Errorf("invariant: %w", err)
	} else if !ok {
		logger.Warn("invariant did not converge within the iteration cap", zap.String("pool", pool.Hex()))
	}

	if err := storage.WriteSnapshotFile(cfg.Out, snap); err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := store.UpsertPoolSnapshot(ctx, snap); err != nil {
			return err
		}
		logger.Info("snapshot stored", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	}

	logger.Info("snapshot complete",
		zap.Uint64("chain_id", snap.ChainID),
		zap.Uint64("block", snap.BlockNumber),
		zap.Uint64("amp", snap.Amp),
		zap.Uint64("fee", snap.Fee),
		zap.String("total_supply", snap.TotalSupply),
	)
	return nil
}
