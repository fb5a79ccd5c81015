// Package stableswap implements the StableSwap invariant engine: the D and y
// solvers, swap quotes and liquidity accounting for multi-asset pools whose
// assets trade near a fixed target price.
//
// All arithmetic is unsigned integer arithmetic. Intermediate products are
// carried in 256 bits (512 bits inside mul-div) and every result is narrowed
// back to 128 bits, failing instead of wrapping.
package stableswap

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// MaxIterations caps the Newton steps a solve takes after its first one.
	MaxIterations = 1000
	// FeeDenominator scales Pool.Fee: a fee f is the fraction f / 10^10.
	FeeDenominator = 10_000_000_000
	// PricePrecision scales target prices (18 decimals).
	PricePrecision = 1_000_000_000_000_000_000
	// MinAssets is the smallest pool the invariant is defined for.
	MinAssets = 2

	oneCoinFeeBase = 500_000
	maxDecimals    = 18
)

// Pool is a snapshot of a stable pool. It is a plain value: callers rebuild it
// from their own storage before every computation.
type Pool struct {
	Amp          uint64
	Fee          uint64
	Balances     []*uint256.Int
	TargetPrices []*uint256.Int
	TotalSupply  *uint256.Int

	// StrictConvergence turns a solve that hits MaxIterations into
	// ErrNotConverged instead of returning the last approximation.
	StrictConvergence bool
}

// NewPool returns a fee-less pool with unit target prices and no shares.
func NewPool(amp uint64, balances []*uint256.Int) Pool {
	prices := make([]*uint256.Int, len(balances))
	for i := range prices {
		prices[i] = uint256.NewInt(PricePrecision)
	}
	return Pool{
		Amp:          amp,
		Balances:     cloneAll(balances),
		TargetPrices: prices,
		TotalSupply:  new(uint256.Int),
	}
}

// N returns the asset count.
func (p Pool) N() int {
	return len(p.Balances)
}

// Clone returns a deep copy of the pool.
func (p Pool) Clone() Pool {
	out := p
	out.Balances = cloneAll(p.Balances)
	out.TargetPrices = cloneAll(p.TargetPrices)
	out.TotalSupply = p.supply().Clone()
	return out
}

// Validate checks the structural preconditions every operation relies on.
func (p Pool) Validate() error {
	n := len(p.Balances)
	if n < MinAssets {
		return fmt.Errorf("%w: %d assets, need at least %d", ErrInvalidPool, n, MinAssets)
	}
	if len(p.TargetPrices) != n {
		return fmt.Errorf("%w: %d balances but %d target prices", ErrInvalidPool, n, len(p.TargetPrices))
	}
	if p.Amp == 0 {
		return fmt.Errorf("%w: amplification must be positive", ErrInvalidPool)
	}
	if p.Fee > FeeDenominator {
		return fmt.Errorf("%w: fee %d above %d", ErrInvalidPool, p.Fee, uint64(FeeDenominator))
	}
	for i := 0; i < n; i++ {
		if p.Balances[i] == nil || p.TargetPrices[i] == nil {
			return fmt.Errorf("%w: asset %d has no balance or price", ErrInvalidPool, i)
		}
		if err := narrow(p.Balances[i]); err != nil {
			return fmt.Errorf("balance %d: %w", i, err)
		}
		if err := narrow(p.TargetPrices[i]); err != nil {
			return fmt.Errorf("target price %d: %w", i, err)
		}
	}
	return narrow(p.supply())
}

// XP returns the price-normalised balances.
func (p Pool) XP() ([]*uint256.Int, error) {
	return p.xpFor(p.Balances)
}

func (p Pool) xpFor(balances []*uint256.Int) ([]*uint256.Int, error) {
	xp := make([]*uint256.Int, len(balances))
	for i, b := range balances {
		v, err := mulDiv(b, p.TargetPrices[i], pricePrecision)
		if err != nil {
			return nil, fmt.Errorf("normalise asset %d: %w", i, err)
		}
		if err := narrow(v); err != nil {
			return nil, fmt.Errorf("normalise asset %d: %w", i, err)
		}
		xp[i] = v
	}
	return xp, nil
}

// Unscale converts a normalised amount of asset i back to raw units.
func (p Pool) Unscale(i int, v *uint256.Int) (*uint256.Int, error) {
	if err := p.checkIndex(i); err != nil {
		return nil, err
	}
	raw, err := mulDiv(v, pricePrecision, p.TargetPrices[i])
	if err != nil {
		return nil, fmt.Errorf("unscale asset %d: %w", i, err)
	}
	return raw, narrow(raw)
}

// Scale converts a raw amount of asset i to normalised units.
func (p Pool) Scale(i int, v *uint256.Int) (*uint256.Int, error) {
	if err := p.checkIndex(i); err != nil {
		return nil, err
	}
	xp, err := mulDiv(v, p.TargetPrices[i], pricePrecision)
	if err != nil {
		return nil, fmt.Errorf("scale asset %d: %w", i, err)
	}
	return xp, narrow(xp)
}

// TargetPricesForDecimals lifts every asset to the greatest precision found
// among decimals, so 10^dec raw units of each asset normalise to the same
// value.
func TargetPricesForDecimals(decimals []uint8) ([]*uint256.Int, error) {
	var greatest uint8
	for _, d := range decimals {
		if d > maxDecimals {
			return nil, fmt.Errorf("%w: %d decimals above %d", ErrInvalidPool, d, maxDecimals)
		}
		if d > greatest {
			greatest = d
		}
	}
	ten := uint256.NewInt(10)
	prices := make([]*uint256.Int, len(decimals))
	for i, d := range decimals {
		shift := new(uint256.Int).Exp(ten, uint256.NewInt(uint64(greatest-d)))
		price, err := mul(pricePrecision, shift)
		if err != nil {
			return nil, err
		}
		prices[i] = price
	}
	return prices, nil
}

func (p Pool) supply() *uint256.Int {
	if p.TotalSupply == nil {
		return new(uint256.Int)
	}
	return p.TotalSupply
}

func (p Pool) checkIndex(i int) error {
	if i < 0 || i >= len(p.Balances) {
		return fmt.Errorf("%w: %d of %d", ErrAssetIndex, i, len(p.Balances))
	}
	return nil
}

func (p Pool) checkPair(i, j int) error {
	if err := p.checkIndex(i); err != nil {
		return err
	}
	if err := p.checkIndex(j); err != nil {
		return err
	}
	if i == j {
		return fmt.Errorf("%w: %d", ErrSameAsset, i)
	}
	return nil
}

func (p Pool) converged(ok bool, solver string) error {
	if !ok && p.StrictConvergence {
		return fmt.Errorf("%s: %w after %d iterations", solver, ErrNotConverged, MaxIterations+1)
	}
	return nil
}
