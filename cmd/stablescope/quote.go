package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stableScope/internal/chain"
	"stableScope/internal/config"
	"stableScope/internal/dex"
	"stableScope/internal/model"
	"stableScope/internal/simulate"
	"stableScope/internal/storage"
	"stableScope/internal/storage/postgres"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	snap, err := storage.ReadSnapshotFile(cfg.Snapshot)
	if err != nil {
		return err
	}
	pool, err := snap.Pool()
	if err != nil {
		return fmt.Errorf("snapshot is not a valid pool: %w", err)
	}
	pool.StrictConvergence = cfg.Strict

	converged, err := pool.Converges()
	if err != nil {
		return fmt.Errorf("invariant: %w", err)
	}
	if !converged {
		logger.Warn("invariant did not converge within the iteration cap", zap.String("snapshot", cfg.Snapshot))
	}

	op := model.Operation{
		Op:      cfg.Op,
		From:    cfg.From,
		To:      cfg.To,
		Amount:  cfg.Amount,
		Amounts: cfg.Amounts,
	}
	res, _, err := simulate.Evaluate(pool, op)
	if err != nil {
		return fmt.Errorf("quote %s: %w", op.Op, err)
	}

	record := model.QuoteRecord{
		ChainID:     snap.ChainID,
		PoolAddress: snap.Address,
		BlockNumber: snap.BlockNumber,
		Operation:   op,
		Result:      res,
		Display:     displayAmounts(snap, res.Out),
		Converged:   converged,
		QuotedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Verify {
		if err := verifyQuote(ctx, cfg, snap, &record); err != nil {
			return err
		}
	}

	if cfg.Out != "" {
		if err := storage.NewJsonlStorage(cfg.Out).PutQuotes([]model.QuoteRecord{record}); err != nil {
			return err
		}
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
		if err := store.InsertQuotes(ctx, []model.QuoteRecord{record}); err != nil {
			return err
		}
	}

	fields := []zap.Field{
		zap.String("op", op.Op),
		zap.Strings("out", res.Out),
		zap.Strings("display", record.Display),
		zap.Bool("converged", converged),
	}
	if res.Fee != "" {
		fields = append(fields, zap.String("fee", res.Fee))
	}
	if res.Shares != "" {
		fields = append(fields, zap.String("shares", res.Shares))
	}
	if res.Invariant != "" {
		fields = append(fields, zap.String("invariant", res.Invariant), zap.String("virtual_price", res.VirtualPrice))
	}
	if record.OnchainOut != "" {
		fields = append(fields, zap.String("onchain_out", record.OnchainOut), zap.String("onchain_delta", record.OnchainDelta))
	}
	logger.Info("quote", fields...)
	return nil
}

// verifyQuote fills the on-chain counterpart of a quote and its difference
// from the computed value: get_dy for swaps, get_virtual_price for the
// invariant.
func verifyQuote(ctx context.Context, cfg config.QuoteConfig, snap model.PoolSnapshot, record *model.QuoteRecord) error {
	op := record.Operation.Op
	if op != model.OpSwap && op != model.OpInvariant {
		return fmt.Errorf("verify supports only %s and %s", model.OpSwap, model.OpInvariant)
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required for verify")
	}
	poolAddr := cfg.Pool
	if poolAddr == "" {
		poolAddr = snap.Address
	}
	if !common.IsHexAddress(poolAddr) {
		return fmt.Errorf("invalid pool address: %q", poolAddr)
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	retry := dex.RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff}
	var computed, onchain *big.Int
	if op == model.OpInvariant {
		if computed, err = chainVirtualPrice(snap, record.Result.VirtualPrice); err != nil {
			return err
		}
		onchain, err = dex.FetchOnchainVirtualPrice(ctx, chainClient, common.HexToAddress(poolAddr), snap.BlockNumber, retry)
		if err != nil {
			return fmt.Errorf("onchain get_virtual_price: %w", err)
		}
	} else {
		dx, err := model.ParseAmount(record.Operation.Amount)
		if err != nil {
			return err
		}
		to := record.Operation.To
		if to < 0 || to >= len(record.Result.Out) {
			return errors.New("quote has no output for the target coin")
		}
		var ok bool
		if computed, ok = new(big.Int).SetString(record.Result.Out[to], 10); !ok {
			return fmt.Errorf("invalid computed output %q", record.Result.Out[to])
		}
		onchain, err = dex.FetchOnchainDy(ctx, chainClient, common.HexToAddress(poolAddr), record.Operation.From, to, dx.ToBig(), snap.BlockNumber, retry)
		if err != nil {
			return fmt.Errorf("onchain get_dy: %w", err)
		}
	}

	record.OnchainOut = onchain.String()
	record.OnchainDelta = new(big.Int).Sub(onchain, computed).String()
	return nil
}

// chainVirtualPrice rescales a virtual price computed over balances
// normalised to the pool's greatest coin precision to the 18-decimal
// normalisation the pool contract uses.
func chainVirtualPrice(snap model.PoolSnapshot, vp string) (*big.Int, error) {
	if vp == "" {
		return nil, errors.New("quote has no virtual price, the pool has no shares")
	}
	v, ok := new(big.Int).SetString(vp, 10)
	if !ok {
		return nil, fmt.Errorf("invalid virtual price %q", vp)
	}
	var maxDecimals uint8
	for _, coin := range snap.Coins {
		if coin.Decimals > maxDecimals {
			maxDecimals = coin.Decimals
		}
	}
	if maxDecimals >= 18 {
		return v, nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-maxDecimals)), nil)
	return v.Mul(v, scale), nil
}

func displayAmounts(snap model.PoolSnapshot, raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, len(raw))
	for i, s := range raw {
		v, err := model.ParseAmount(s)
		if err != nil || i >= len(snap.Coins) {
			out[i] = s
			continue
		}
		out[i] = model.FormatAmount(v, snap.Coins[i].Decimals)
		if sym := snap.Coins[i].Symbol; sym != "" {
			out[i] += " " + sym
		}
	}
	return out
}
