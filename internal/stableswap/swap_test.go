package stableswap

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fooBarPool holds 100 000 FOO (4 decimals) and 100 000 BAR (5 decimals).
func fooBarPool(t *testing.T) Pool {
	t.Helper()
	prices, err := TargetPricesForDecimals([]uint8{4, 5})
	require.NoError(t, err)
	return Pool{
		Amp:          100,
		Fee:          5_000_000,
		Balances:     us(100_000_0000, 100_000_00000),
		TargetPrices: prices,
		TotalSupply:  u(0),
	}
}

func TestSwapFooForBar(t *testing.T) {
	p := fooBarPool(t)
	dx, err := p.Scale(0, u(100_0000))
	require.NoError(t, err)

	gross, err := p.QuoteSwap(0, 1, dx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_999_901), gross.Uint64())

	res, err := p.Swap(0, 1, dx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_999_901), res.Gross.Uint64())
	assert.Equal(t, uint64(4_999), res.Fee.Uint64())
	assert.Equal(t, uint64(99_94902), res.Net.Uint64())
	assert.Equal(t, uint64(1_001_000_000), res.Balances[0].Uint64())
	assert.Equal(t, uint64(9_990_005_098), res.Balances[1].Uint64())

	// Swap is pure.
	assert.Equal(t, uint64(100_000_0000), p.Balances[0].Uint64())
	assert.Equal(t, uint64(100_000_00000), p.Balances[1].Uint64())
}

func TestQuoteReverseFooForBar(t *testing.T) {
	p := fooBarPool(t)
	dx, err := p.QuoteReverse(0, 1, u(99_94902))
	require.NoError(t, err)

	raw, err := p.Unscale(0, dx)
	require.NoError(t, err)
	require.Equal(t, uint64(100_0000), raw.Uint64())
}

func TestApplySwap(t *testing.T) {
	p := fooBarPool(t)
	d0, err := p.Invariant()
	require.NoError(t, err)

	net, err := p.ApplySwap(0, 1, u(10_000_000))
	require.NoError(t, err)
	require.Equal(t, uint64(99_94902), net.Uint64())
	require.Equal(t, uint64(1_001_000_000), p.Balances[0].Uint64())
	require.Equal(t, uint64(9_990_005_098), p.Balances[1].Uint64())

	d1, err := p.Invariant()
	require.NoError(t, err)
	require.Equal(t, uint64(20_000_004_999), d1.Uint64())
	require.False(t, d1.Lt(d0))
}

func TestApplySwapZeroOutput(t *testing.T) {
	p := NewPool(100, us(1_000_000_000, 1_000_000_000))
	p.Fee = 5_000_000

	net, err := p.ApplySwap(0, 1, u(0))
	require.NoError(t, err)
	require.True(t, net.IsZero())
	require.Equal(t, uint64(1_000_000_000), p.Balances[0].Uint64())
	require.Equal(t, uint64(1_000_000_000), p.Balances[1].Uint64())
}

func TestApplySwapInvariantNonDecreasing(t *testing.T) {
	p := NewPool(100, us(1_000_000_000, 2_000_000_000, 500_000_000))
	p.Fee = 4_000_000

	prev, err := p.Invariant()
	require.NoError(t, err)
	require.Equal(t, uint64(3_493_260_254), prev.Uint64())

	wantNet := []uint64{124_341_992, 119_350_615, 126_609_599}
	wantD := []uint64{3_493_309_650, 3_493_359_055, 3_493_409_755}
	for k := 0; k < 3; k++ {
		net, err := p.ApplySwap(k, (k+1)%3, u(123_456_789))
		require.NoError(t, err)
		assert.Equal(t, wantNet[k], net.Uint64())

		d, err := p.Invariant()
		require.NoError(t, err)
		assert.Equal(t, wantD[k], d.Uint64())
		require.False(t, d.Lt(prev), "invariant dropped after swap %d", k)
		prev = d
	}
}

func TestZeroFeeRoundTrip(t *testing.T) {
	p := NewPool(100, us(1_000_000_000, 1_000_000_000))

	out, err := p.ApplySwap(0, 1, u(10_000_000))
	require.NoError(t, err)
	require.Equal(t, uint64(9_999_010), out.Uint64())

	back, err := p.ApplySwap(1, 0, out)
	require.NoError(t, err)

	diff := absDiff(back, u(10_000_000))
	require.True(t, diff.Cmp(u(2)) <= 0, "round trip returned %s", back)
}

func TestSwapFeeMonotonic(t *testing.T) {
	var prev *uint256.Int
	for _, fee := range []uint64{0, 4_000_000, 100_000_000} {
		p := NewPool(100, us(100_000_000, 100_000_000, 100_000_000))
		p.Fee = fee

		gross, err := p.QuoteSwap(0, 1, u(10_000_000))
		require.NoError(t, err)
		require.Equal(t, uint64(9_990_012), gross.Uint64())

		res, err := p.Swap(0, 1, u(10_000_000))
		require.NoError(t, err)
		if prev != nil {
			require.True(t, res.Net.Lt(prev), "fee %d: net %s not below %s", fee, res.Net, prev)
		}
		prev = res.Net
	}
}

func TestSolveY(t *testing.T) {
	p := NewPool(100, us(1_000_000_000, 1_000_000_000))

	y, err := p.SolveYD(0, u(2_000_000_000))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000), y.Uint64())

	y, err = p.SolveYD(0, u(1_990_000_000))
	require.NoError(t, err)
	require.Equal(t, uint64(990_000_248), y.Uint64())

	y, err = p.SolveY(0, 1, u(1_000_000_000))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000), y.Uint64())
}

func TestSwapErrors(t *testing.T) {
	p := NewPool(100, us(1_000_000_000, 1_000_000_000))

	_, err := p.QuoteSwap(0, 0, u(1))
	require.ErrorIs(t, err, ErrSameAsset)

	_, err = p.QuoteSwap(0, 2, u(1))
	require.ErrorIs(t, err, ErrAssetIndex)

	_, err = p.Swap(-1, 1, u(1))
	require.ErrorIs(t, err, ErrAssetIndex)

	_, err = p.QuoteReverse(0, 1, u(2_000_000_000))
	require.ErrorIs(t, err, ErrUnderflow)

	empty := NewPool(100, us(0, 1_000_000_000))
	_, err = empty.QuoteSwap(1, 0, u(1_000))
	require.ErrorIs(t, err, ErrDivisionByZero)
	require.ErrorIs(t, err, ErrInvalidPool)
}

func TestQuoteReverseFullFee(t *testing.T) {
	p := NewPool(100, us(1_000_000_000, 1_000_000_000))
	p.Fee = FeeDenominator

	_, err := p.QuoteReverse(0, 1, u(1_000))
	require.ErrorIs(t, err, ErrFullFee)
	assert.NotErrorIs(t, err, ErrInvalidPool)

	// A forward swap through the same pool keeps the whole output as fee.
	res, err := p.Swap(0, 1, u(1_000))
	require.NoError(t, err)
	assert.True(t, res.Net.IsZero())
	assert.Equal(t, res.Gross, res.Fee)
}
