package stableswap

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func us(vs ...uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		out[i] = uint256.NewInt(v)
	}
	return out
}

func TestComputeD(t *testing.T) {
	testcases := []struct {
		name string
		xp   []*uint256.Int
		amp  uint64
		want uint64
	}{
		{name: "balanced two assets", xp: us(10_000_000_000, 10_000_000_000), amp: 100, want: 20_000_000_000},
		{name: "balanced three assets", xp: us(100_000_000, 100_000_000, 100_000_000), amp: 100, want: 300_000_000},
		{name: "empty pool", xp: us(0, 0), amp: 100, want: 0},
		{name: "single unit", xp: us(1, 0), amp: 100, want: 1},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok, err := ComputeD(tc.xp, tc.amp)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tc.want, d.Uint64())
		})
	}
}

func TestComputeDImbalanced(t *testing.T) {
	d, ok, err := ComputeD(us(1_000_000_000, 2_000_000_000, 500_000_000), 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3_493_260_254), d.Uint64())

	// D never exceeds the plain sum of balances.
	require.True(t, d.Lt(u(3_500_000_000)))
}

func TestComputeDErrors(t *testing.T) {
	_, _, err := ComputeD(us(100), 100)
	require.ErrorIs(t, err, ErrInvalidPool)

	_, _, err = ComputeD(us(100, 0), 100)
	require.ErrorIs(t, err, ErrDivisionByZero)
	require.ErrorIs(t, err, ErrInvalidPool)

	_, _, err = ComputeD(us(100, 100), 0)
	require.ErrorIs(t, err, ErrInvalidPool)
}

func TestComputeDDeterministic(t *testing.T) {
	xp := us(123_456_789, 987_654_321, 555_555_555)
	first, _, err := ComputeD(xp, 85)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := ComputeD(xp, 85)
		require.NoError(t, err)
		require.True(t, first.Eq(again))
	}
}

func TestPoolValidate(t *testing.T) {
	valid := NewPool(100, us(1_000, 1_000))
	require.NoError(t, valid.Validate())

	testcases := []struct {
		name   string
		mutate func(p *Pool)
		target error
	}{
		{name: "one asset", mutate: func(p *Pool) { p.Balances = us(1_000); p.TargetPrices = us(PricePrecision) }, target: ErrInvalidPool},
		{name: "price count mismatch", mutate: func(p *Pool) { p.TargetPrices = us(PricePrecision) }, target: ErrInvalidPool},
		{name: "zero amp", mutate: func(p *Pool) { p.Amp = 0 }, target: ErrInvalidPool},
		{name: "fee above denominator", mutate: func(p *Pool) { p.Fee = FeeDenominator + 1 }, target: ErrInvalidPool},
		{name: "nil balance", mutate: func(p *Pool) { p.Balances[1] = nil }, target: ErrInvalidPool},
		{name: "balance wider than 128 bits", mutate: func(p *Pool) { p.Balances[0] = new(uint256.Int).Lsh(u(1), 128) }, target: ErrNarrowOverflow},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid.Clone()
			tc.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.target), "got %v", err)
		})
	}
}

func TestInvariantNarrowOverflow(t *testing.T) {
	half := new(uint256.Int).Lsh(u(1), 127)
	p := NewPool(100, []*uint256.Int{half, half})
	_, err := p.Invariant()
	require.ErrorIs(t, err, ErrNarrowOverflow)
}

func TestVirtualPrice(t *testing.T) {
	p := NewPool(100, us(100_000_000, 100_000_000, 100_000_000))
	p.TotalSupply = u(300_000_000)
	price, err := p.VirtualPrice()
	require.NoError(t, err)
	require.Equal(t, uint64(PricePrecision), price.Uint64())

	p.TotalSupply = u(0)
	_, err = p.VirtualPrice()
	require.ErrorIs(t, err, ErrInvalidPool)
}

func TestStrictConvergence(t *testing.T) {
	p := NewPool(100, us(100_000_000, 100_000_000))
	ok, err := p.Converges()
	require.NoError(t, err)
	require.True(t, ok)

	p.StrictConvergence = true
	_, err = p.Invariant()
	require.NoError(t, err)
}

// Heavily imbalanced low-amplification pools make the D iteration oscillate
// instead of settling; the solve stops after MaxIterations+1 steps.
func TestInvariantIterationCap(t *testing.T) {
	testcases := []struct {
		name  string
		amp   uint64
		xp    []*uint256.Int
		wantD uint64
	}{
		{name: "two assets amp 6", amp: 6, xp: us(2_482_985_508_000, 37_330_141), wantD: 216_613_845_721},
		{name: "two assets amp 1", amp: 1, xp: us(1_524_482_038_347, 2_183_361_193), wantD: 330_942_580_454},
		{name: "three assets amp 7", amp: 7, xp: us(9_199_255_758_220, 6_643_880_359_969, 903_580_949), wantD: 4_373_052_466_193},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok, err := ComputeD(tc.xp, tc.amp)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, tc.wantD, d.Uint64())

			p := NewPool(tc.amp, tc.xp)
			converges, err := p.Converges()
			require.NoError(t, err)
			assert.False(t, converges)

			d, err = p.Invariant()
			require.NoError(t, err)
			assert.Equal(t, tc.wantD, d.Uint64())

			p.StrictConvergence = true
			_, err = p.Invariant()
			require.ErrorIs(t, err, ErrNotConverged)
			assert.Contains(t, err.Error(), "after 1001 iterations")

			// Converges ignores the strict flag.
			converges, err = p.Converges()
			require.NoError(t, err)
			assert.False(t, converges)
		})
	}
}

func TestSolversOnCappedInvariant(t *testing.T) {
	p := NewPool(6, us(2_482_985_508_000, 37_330_141))
	p.TotalSupply = u(100_000_000_000)

	// The y iteration itself settles against the capped D.
	y, ok, err := solveY(us(2_482_985_509_000), u(216_613_845_721), 6, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(37_330_140), y.Uint64())

	dy, err := p.QuoteSwap(0, 1, u(1_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dy.Uint64())

	dy, err = p.QuoteSwap(1, 0, u(1_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(31_872_070), dy.Uint64())

	paid, err := p.WithdrawOneCoin(u(100_000_000), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_671_906_564), paid.Uint64())

	paid, err = p.WithdrawOneCoin(u(100_000_000), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(115_112), paid.Uint64())

	p.StrictConvergence = true
	_, err = p.QuoteSwap(0, 1, u(1_000))
	require.ErrorIs(t, err, ErrNotConverged)
	_, err = p.SolveY(0, 1, u(2_482_985_509_000))
	require.ErrorIs(t, err, ErrNotConverged)
	_, err = p.WithdrawOneCoin(u(100_000_000), 0)
	require.ErrorIs(t, err, ErrNotConverged)
}

func TestTargetPricesForDecimals(t *testing.T) {
	prices, err := TargetPricesForDecimals([]uint8{4, 5})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "10000000000000000000", prices[0].ToBig().String())
	assert.Equal(t, "1000000000000000000", prices[1].ToBig().String())

	_, err = TargetPricesForDecimals([]uint8{6, 19})
	require.ErrorIs(t, err, ErrInvalidPool)
}

func TestScaleUnscale(t *testing.T) {
	prices, err := TargetPricesForDecimals([]uint8{4, 5})
	require.NoError(t, err)
	p := Pool{Amp: 100, Balances: us(1, 1), TargetPrices: prices}

	xp, err := p.Scale(0, u(1_000_000))
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), xp.Uint64())

	raw, err := p.Unscale(0, xp)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), raw.Uint64())

	_, err = p.Unscale(2, xp)
	require.ErrorIs(t, err, ErrAssetIndex)
}
