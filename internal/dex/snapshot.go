package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stableScope/internal/chain"
	"stableScope/internal/model"
	"stableScope/internal/stableswap"
)

// SnapshotOptions controls FetchPoolSnapshot.
type SnapshotOptions struct {
	NCoins      int
	BlockNumber uint64 // 0 means latest
	Retry       RetryPolicy
	TokenCache  *TokenMetaCache
	Concurrency int
	Logger      *zap.Logger
}

// FetchPoolSnapshot reads amplification, fee, share supply and every coin's
// balance and metadata from a StableSwap pool at a single block. Per-coin
// calls run concurrently.
func FetchPoolSnapshot(ctx context.Context, chainClient *chain.Client, pool common.Address, opts SnapshotOptions) (model.PoolSnapshot, error) {
	if chainClient == nil {
		return model.PoolSnapshot{}, fmt.Errorf("chain client is nil")
	}
	if opts.NCoins < stableswap.MinAssets {
		return model.PoolSnapshot{}, fmt.Errorf("n coins must be at least %d", stableswap.MinAssets)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	poolABI, err := StablePoolABI()
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse pool abi: %w", err)
	}
	block := opts.BlockNumber
	if block == 0 {
		err := withRetry(ctx, opts.Retry, func(ctx context.Context) error {
			var err error
			block, err = chainClient.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return model.PoolSnapshot{}, fmt.Errorf("latest block: %w", err)
		}
	}
	blockNum := new(big.Int).SetUint64(block)

	call := func(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
		var values []interface{}
		err := withRetry(ctx, opts.Retry, func(ctx context.Context) error {
			var err error
			values, err = callMethod(ctx, chainClient, pool, poolABI, method, blockNum, args...)
			return err
		})
		return values, err
	}
	callUint64 := func(ctx context.Context, method string) (uint64, error) {
		values, err := call(ctx, method)
		if err != nil {
			return 0, err
		}
		v, err := asUint64(values[0])
		if err != nil {
			return 0, fmt.Errorf("%s: %w", method, err)
		}
		return v, nil
	}

	snap := model.PoolSnapshot{
		Address:     pool.Hex(),
		BlockNumber: block,
		Coins:       make([]model.CoinSnapshot, opts.NCoins),
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	g.Go(func() error {
		return withRetry(gctx, opts.Retry, func(ctx context.Context) error {
			id, err := chainClient.GetChainID(ctx)
			if err != nil {
				return fmt.Errorf("chain id: %w", err)
			}
			snap.ChainID = id.Uint64()
			return nil
		})
	})
	g.Go(func() error {
		amp, err := callUint64(gctx, "A")
		snap.Amp = amp
		return err
	})
	g.Go(func() error {
		fee, err := callUint64(gctx, "fee")
		snap.Fee = fee
		return err
	})
	g.Go(func() error {
		lpToken, supply, err := fetchSupply(gctx, chainClient, pool, blockNum, opts.Retry, call)
		if err != nil {
			return err
		}
		if lpToken != (common.Address{}) {
			snap.LPToken = lpToken.Hex()
		}
		snap.TotalSupply = supply.String()
		return nil
	})

	for i := 0; i < opts.NCoins; i++ {
		i := i
		g.Go(func() error {
			idx := big.NewInt(int64(i))
			values, err := call(gctx, "coins", idx)
			if err != nil {
				return fmt.Errorf("coin %d: %w", i, err)
			}
			token, err := asAddress(values[0])
			if err != nil {
				return fmt.Errorf("coin %d: %w", i, err)
			}

			var meta model.TokenMeta
			err = withRetry(gctx, opts.Retry, func(ctx context.Context) error {
				var err error
				meta, err = cachedTokenMeta(ctx, chainClient, token, opts.TokenCache, logger)
				return err
			})
			if err != nil {
				return fmt.Errorf("coin %d metadata: %w", i, err)
			}

			values, err = call(gctx, "balances", idx)
			if err != nil {
				return fmt.Errorf("coin %d balance: %w", i, err)
			}
			balance, err := asBigInt(values[0])
			if err != nil {
				return fmt.Errorf("coin %d balance: %w", i, err)
			}

			snap.Coins[i] = model.CoinSnapshot{
				Address:  token.Hex(),
				Symbol:   meta.Symbol,
				Decimals: meta.Decimals,
				Balance:  balance.String(),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.PoolSnapshot{}, err
	}

	decimals := make([]uint8, len(snap.Coins))
	for i, coin := range snap.Coins {
		decimals[i] = coin.Decimals
	}
	prices, err := stableswap.TargetPricesForDecimals(decimals)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	for i := range snap.Coins {
		snap.Coins[i].TargetPrice = model.AmountString(prices[i])
	}
	snap.FetchedAt = time.Now().UTC().Format(time.RFC3339Nano)

	logger.Debug("pool snapshot fetched",
		zap.String("pool", snap.Address),
		zap.Uint64("block", snap.BlockNumber),
		zap.Uint64("amp", snap.Amp),
		zap.Uint64("fee", snap.Fee),
		zap.Int("coins", len(snap.Coins)),
	)
	return snap, nil
}

type poolCaller func(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)

// fetchSupply reads the share supply from the pool's lp_token, falling back
// to the pool's own totalSupply for pools that are their own share token.
func fetchSupply(ctx context.Context, chainClient *chain.Client, pool common.Address, block *big.Int, retry RetryPolicy, call poolCaller) (common.Address, *big.Int, error) {
	poolABI, err := StablePoolABI()
	if err != nil {
		return common.Address{}, nil, err
	}
	erc20ABI, err := erc20ABIStringInstance()
	if err != nil {
		return common.Address{}, nil, err
	}

	var lpToken common.Address
	if values, err := callMethod(ctx, chainClient, pool, poolABI, "lp_token", block); err == nil {
		if lpToken, err = asAddress(values[0]); err != nil {
			return common.Address{}, nil, fmt.Errorf("lp_token: %w", err)
		}
	}

	var values []interface{}
	if lpToken != (common.Address{}) {
		err = withRetry(ctx, retry, func(ctx context.Context) error {
			var err error
			values, err = callMethod(ctx, chainClient, lpToken, erc20ABI, "totalSupply", block)
			return err
		})
	} else {
		values, err = call(ctx, "totalSupply")
	}
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("total supply: %w", err)
	}
	supply, err := asBigInt(values[0])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("total supply: %w", err)
	}
	return lpToken, supply, nil
}

// FetchOnchainDy asks the pool's own get_dy for the post-fee output of
// swapping dx raw units of coin i into coin j.
func FetchOnchainDy(ctx context.Context, chainClient *chain.Client, pool common.Address, i, j int, dx *big.Int, blockNumber uint64, retry RetryPolicy) (*big.Int, error) {
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	poolABI, err := StablePoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}

	var values []interface{}
	err = withRetry(ctx, retry, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, chainClient, pool, poolABI, "get_dy", block, big.NewInt(int64(i)), big.NewInt(int64(j)), dx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// FetchOnchainVirtualPrice reads the pool's get_virtual_price: D per share
// with D normalised to 18 decimals.
func FetchOnchainVirtualPrice(ctx context.Context, chainClient *chain.Client, pool common.Address, blockNumber uint64, retry RetryPolicy) (*big.Int, error) {
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	poolABI, err := StablePoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}

	var values []interface{}
	err = withRetry(ctx, retry, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, chainClient, pool, poolABI, "get_virtual_price", block)
		return err
	})
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}
