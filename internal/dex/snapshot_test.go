package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stableScope/internal/chain"
)

var (
	testPool    = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	testLPToken = common.HexToAddress("0x0000000000000000000000000000000000000def")
	testFoo     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testBar     = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// fakeEth serves the eth_ namespace for a single StableSwap pool and its
// tokens.
type fakeEth struct {
	mu sync.Mutex

	chainID  uint64
	latest   uint64
	lpToken  common.Address
	amp      uint64
	fee      uint64
	coins    []common.Address
	balances []*big.Int
	decimals map[common.Address]uint8
	symbols  map[common.Address]string
	supply   *big.Int
	dy       *big.Int
	vp       *big.Int

	failures      int
	blocks        []string
	decimalsCalls int
	dyArgs        []*big.Int
}

func newFooBarEth() *fakeEth {
	return &fakeEth{
		chainID:  56,
		latest:   4242,
		lpToken:  testLPToken,
		amp:      100,
		fee:      5_000_000,
		coins:    []common.Address{testFoo, testBar},
		balances: []*big.Int{big.NewInt(1_000_000_000), big.NewInt(10_000_000_000)},
		decimals: map[common.Address]uint8{testFoo: 4, testBar: 5},
		symbols:  map[common.Address]string{testFoo: "FOO", testBar: "BAR"},
		supply:   big.NewInt(2_000_000_000),
		dy:       big.NewInt(99_94902),
		vp:       new(big.Int).Mul(big.NewInt(10), big.NewInt(1_000_000_000_000_000_000)),
	}
}

func (f *fakeEth) ChainId(ctx context.Context) (*hexutil.Big, error) {
	return (*hexutil.Big)(new(big.Int).SetUint64(f.chainID)), nil
}

func (f *fakeEth) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	return hexutil.Uint64(f.latest), nil
}

func (f *fakeEth) Call(ctx context.Context, args map[string]interface{}, blockNr string) (hexutil.Bytes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return nil, errors.New("temporarily unavailable")
	}
	raw, _ := args["input"].(string)
	if raw == "" {
		raw, _ = args["data"].(string)
	}
	input, err := hexutil.Decode(raw)
	if err != nil || len(input) < 4 {
		return nil, fmt.Errorf("bad input %q", raw)
	}
	toRaw, _ := args["to"].(string)
	to := common.HexToAddress(toRaw)
	if to == testPool {
		f.blocks = append(f.blocks, blockNr)
	}

	parsed, err := f.abiFor(to)
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, err
	}
	in, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, err
	}

	out, err := f.dispatch(to, method.Name, in)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out)
}

func (f *fakeEth) abiFor(to common.Address) (abi.ABI, error) {
	if to == testPool {
		return StablePoolABI()
	}
	return erc20ABIStringInstance()
}

func (f *fakeEth) dispatch(to common.Address, method string, in []interface{}) (interface{}, error) {
	if to != testPool {
		switch method {
		case "decimals":
			f.decimalsCalls++
			return f.decimals[to], nil
		case "symbol":
			return f.symbols[to], nil
		case "totalSupply":
			if to == f.lpToken {
				return f.supply, nil
			}
		}
		return nil, errors.New("execution reverted")
	}

	switch method {
	case "A":
		return new(big.Int).SetUint64(f.amp), nil
	case "fee":
		return new(big.Int).SetUint64(f.fee), nil
	case "coins":
		return f.coins[in[0].(*big.Int).Int64()], nil
	case "balances":
		return f.balances[in[0].(*big.Int).Int64()], nil
	case "lp_token":
		if f.lpToken == (common.Address{}) {
			return nil, errors.New("execution reverted")
		}
		return f.lpToken, nil
	case "totalSupply":
		if f.lpToken != (common.Address{}) {
			return nil, errors.New("execution reverted")
		}
		return f.supply, nil
	case "get_dy":
		f.dyArgs = []*big.Int{in[0].(*big.Int), in[1].(*big.Int), in[2].(*big.Int)}
		return f.dy, nil
	case "get_virtual_price":
		return f.vp, nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func newInprocClient(t *testing.T, fe *fakeEth) *chain.Client {
	t.Helper()
	srv := gethrpc.NewServer()
	if err := srv.RegisterName("eth", fe); err != nil {
		t.Fatalf("register rpc service: %v", err)
	}
	t.Cleanup(srv.Stop)
	c := chain.NewClientFromRPC(gethrpc.DialInProc(srv))
	t.Cleanup(c.Close)
	return c
}

func TestFetchPoolSnapshot(t *testing.T) {
	fe := newFooBarEth()
	client := newInprocClient(t, fe)

	snap, err := FetchPoolSnapshot(context.Background(), client, testPool, SnapshotOptions{
		NCoins:      2,
		BlockNumber: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(56), snap.ChainID)
	assert.Equal(t, uint64(100), snap.BlockNumber)
	assert.Equal(t, uint64(100), snap.Amp)
	assert.Equal(t, uint64(5_000_000), snap.Fee)
	assert.Equal(t, testLPToken.Hex(), snap.LPToken)
	assert.Equal(t, "2000000000", snap.TotalSupply)
	require.Len(t, snap.Coins, 2)
	assert.Equal(t, "FOO", snap.Coins[0].Symbol)
	assert.Equal(t, uint8(4), snap.Coins[0].Decimals)
	assert.Equal(t, "1000000000", snap.Coins[0].Balance)
	assert.Equal(t, "10000000000000000000", snap.Coins[0].TargetPrice)
	assert.Equal(t, "BAR", snap.Coins[1].Symbol)
	assert.Equal(t, "1000000000000000000", snap.Coins[1].TargetPrice)

	for _, b := range fe.blocks {
		assert.Equal(t, "0x64", b)
	}

	pool, err := snap.Pool()
	require.NoError(t, err)
	res, err := pool.Swap(0, 1, uint256.NewInt(10_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(99_94902), res.Net.Uint64())
}

func TestFetchPoolSnapshotOwnShareToken(t *testing.T) {
	fe := newFooBarEth()
	fe.lpToken = common.Address{}
	client := newInprocClient(t, fe)

	snap, err := FetchPoolSnapshot(context.Background(), client, testPool, SnapshotOptions{NCoins: 2})
	require.NoError(t, err)

	assert.Equal(t, uint64(4242), snap.BlockNumber)
	assert.Empty(t, snap.LPToken)
	assert.Equal(t, "2000000000", snap.TotalSupply)
}

func TestFetchPoolSnapshotRetries(t *testing.T) {
	fe := newFooBarEth()
	fe.lpToken = common.Address{}
	fe.failures = 2
	client := newInprocClient(t, fe)

	snap, err := FetchPoolSnapshot(context.Background(), client, testPool, SnapshotOptions{
		NCoins:      2,
		BlockNumber: 100,
		Retry:       RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond},
		Concurrency: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "10000000000", snap.Coins[1].Balance)
}

func TestFetchPoolSnapshotFailure(t *testing.T) {
	fe := newFooBarEth()
	fe.failures = 1000
	client := newInprocClient(t, fe)

	_, err := FetchPoolSnapshot(context.Background(), client, testPool, SnapshotOptions{
		NCoins:      2,
		BlockNumber: 100,
		Retry:       RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond},
	})
	require.Error(t, err)

	_, err = FetchPoolSnapshot(context.Background(), client, testPool, SnapshotOptions{NCoins: 1})
	require.Error(t, err)
}

func TestFetchPoolSnapshotTokenCache(t *testing.T) {
	fe := newFooBarEth()
	client := newInprocClient(t, fe)
	cache, err := NewTokenMetaCache(16)
	require.NoError(t, err)

	opts := SnapshotOptions{NCoins: 2, BlockNumber: 100, TokenCache: cache}
	_, err = FetchPoolSnapshot(context.Background(), client, testPool, opts)
	require.NoError(t, err)
	_, err = FetchPoolSnapshot(context.Background(), client, testPool, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, fe.decimalsCalls)
	meta, ok := cache.Get(testBar)
	require.True(t, ok)
	assert.Equal(t, uint8(5), meta.Decimals)

	_, err = NewTokenMetaCache(0)
	require.Error(t, err)
}

func TestFetchOnchainDy(t *testing.T) {
	fe := newFooBarEth()
	client := newInprocClient(t, fe)

	dy, err := FetchOnchainDy(context.Background(), client, testPool, 0, 1, big.NewInt(100_0000), 0, RetryPolicy{})
	require.NoError(t, err)
	assert.Equal(t, int64(99_94902), dy.Int64())

	require.Len(t, fe.dyArgs, 3)
	assert.Equal(t, int64(0), fe.dyArgs[0].Int64())
	assert.Equal(t, int64(1), fe.dyArgs[1].Int64())
	assert.Equal(t, int64(100_0000), fe.dyArgs[2].Int64())
	assert.Equal(t, "latest", fe.blocks[len(fe.blocks)-1])
}

func TestFetchOnchainVirtualPrice(t *testing.T) {
	fe := newFooBarEth()
	fe.failures = 1
	client := newInprocClient(t, fe)

	vp, err := FetchOnchainVirtualPrice(context.Background(), client, testPool, 100, RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", vp.String())
	assert.Equal(t, "0x64", fe.blocks[len(fe.blocks)-1])
}

func TestWithRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, RetryPolicy{MaxRetries: 5, Backoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
