package stableswap

import (
	"fmt"

	"github.com/holiman/uint256"
)

// WithdrawImbalanced returns the pool shares to burn for withdrawing the
// raw amounts, charging the imbalance fee on each asset's deviation from
// the proportional withdrawal. p is not modified.
func (p Pool) WithdrawImbalanced(amounts []*uint256.Int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.checkAmounts(amounts); err != nil {
		return nil, err
	}

	d0, err := p.invariantFor(p.Balances)
	if err != nil {
		return nil, err
	}

	newBalances := make([]*uint256.Int, p.N())
	for i, b := range p.Balances {
		if newBalances[i], err = sub(b, amounts[i]); err != nil {
			return nil, fmt.Errorf("withdraw asset %d: %w", i, err)
		}
	}

	d2, err := p.invariantAfterImbalanceFee(d0, newBalances)
	if err != nil {
		return nil, err
	}

	burned, err := sub(d0, d2)
	if err != nil {
		return nil, fmt.Errorf("invariant loss: %w", err)
	}
	if burned, err = mulDiv(burned, p.supply(), d0); err != nil {
		return nil, fmt.Errorf("burn amount: %w", err)
	}
	return burned, narrow(burned)
}

// ProvideLiquidity returns the pool shares minted for depositing the raw
// amounts. An empty pool mints D; otherwise imbalanced deposits pay the same
// fee as imbalanced withdrawals.
func (p Pool) ProvideLiquidity(amounts []*uint256.Int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.checkAmounts(amounts); err != nil {
		return nil, err
	}

	supply := p.supply()
	d0 := new(uint256.Int)
	if !supply.IsZero() {
		var err error
		if d0, err = p.invariantFor(p.Balances); err != nil {
			return nil, err
		}
	}

	newBalances := make([]*uint256.Int, p.N())
	for i, b := range p.Balances {
		v, err := add(b, amounts[i])
		if err != nil {
			return nil, fmt.Errorf("deposit asset %d: %w", i, err)
		}
		if err := narrow(v); err != nil {
			return nil, fmt.Errorf("deposit asset %d: %w", i, err)
		}
		newBalances[i] = v
	}

	if supply.IsZero() {
		d1, err := p.invariantFor(newBalances)
		if err != nil {
			return nil, err
		}
		if d1.IsZero() {
			return nil, ErrInvariantNotIncreased
		}
		return d1, nil
	}

	d2, err := p.invariantAfterImbalanceFee(d0, newBalances)
	if err != nil {
		return nil, err
	}
	if d2.Cmp(d0) <= 0 {
		return nil, ErrInvariantNotIncreased
	}

	minted, err := mulDiv(supply, new(uint256.Int).Sub(d2, d0), d0)
	if err != nil {
		return nil, fmt.Errorf("mint amount: %w", err)
	}
	return minted, narrow(minted)
}

// invariantAfterImbalanceFee charges fee·n/(4(n-1)) on the distance between
// each new balance and its ideal D1/D0-scaled balance, then returns D of the
// charged balances. newBalances is modified in place.
func (p Pool) invariantAfterImbalanceFee(d0 *uint256.Int, newBalances []*uint256.Int) (*uint256.Int, error) {
	d1, err := p.invariantFor(newBalances)
	if err != nil {
		return nil, err
	}

	n := uint64(p.N())
	imbalanceFee := uint256.NewInt(p.Fee * n / (4 * (n - 1)))
	if imbalanceFee.IsZero() {
		return d1, nil
	}

	for i, old := range p.Balances {
		ideal, err := mulDiv(d1, old, d0)
		if err != nil {
			return nil, fmt.Errorf("ideal balance %d: %w", i, err)
		}
		fee, err := mulDiv(imbalanceFee, absDiff(ideal, newBalances[i]), feeDenominator)
		if err != nil {
			return nil, err
		}
		if newBalances[i], err = sub(newBalances[i], fee); err != nil {
			return nil, fmt.Errorf("imbalance fee %d: %w", i, err)
		}
	}
	return p.invariantFor(newBalances)
}

// WithdrawOneCoin returns the normalised amount of asset i paid out for
// burning amount pool shares. The fee grows as asset i becomes a smaller
// share of the pool.
func (p Pool) WithdrawOneCoin(amount *uint256.Int, i int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.checkIndex(i); err != nil {
		return nil, err
	}
	xp, err := p.XP()
	if err != nil {
		return nil, err
	}

	fee := new(uint256.Int)
	if p.Fee > 0 {
		total, err := sum(xp)
		if err != nil {
			return nil, err
		}
		poolFee := uint256.NewInt(p.Fee)
		share, err := mulDiv(poolFee, xp[i], total)
		if err != nil {
			return nil, fmt.Errorf("asset share: %w", err)
		}
		if fee, err = sub(poolFee, share); err != nil {
			return nil, err
		}
		if fee, err = add(fee, uint256.NewInt(oneCoinFeeBase)); err != nil {
			return nil, err
		}
	}

	d0, err := p.invariantXP(xp)
	if err != nil {
		return nil, err
	}
	burned, err := mulDiv(amount, d0, p.supply())
	if err != nil {
		return nil, fmt.Errorf("burned invariant: %w", err)
	}
	d1, err := sub(d0, burned)
	if err != nil {
		return nil, fmt.Errorf("shares exceed supply: %w", err)
	}

	y, err := p.solveYDXP(xp, i, d1)
	if err != nil {
		return nil, err
	}
	dy, err := sub(xp[i], y)
	if err != nil {
		return nil, fmt.Errorf("withdraw output: %w", err)
	}
	charged, err := mulDiv(dy, fee, feeDenominator)
	if err != nil {
		return nil, err
	}
	out, err := sub(dy, charged)
	if err != nil {
		return nil, fmt.Errorf("withdraw fee: %w", err)
	}
	return out, nil
}

// WithdrawProportional returns the raw amounts paid for burning shares in a
// balanced withdrawal. No fee applies.
func (p Pool) WithdrawProportional(shares *uint256.Int) ([]*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	supply := p.supply()
	if shares.Gt(supply) {
		return nil, fmt.Errorf("shares exceed supply: %w", ErrUnderflow)
	}
	out := make([]*uint256.Int, p.N())
	for i, b := range p.Balances {
		v, err := mulDiv(b, shares, supply)
		if err != nil {
			return nil, fmt.Errorf("withdraw asset %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (p Pool) checkAmounts(amounts []*uint256.Int) error {
	if len(amounts) != p.N() {
		return fmt.Errorf("%w: %d amounts for %d assets", ErrAmountCount, len(amounts), p.N())
	}
	for i, a := range amounts {
		if a == nil {
			return fmt.Errorf("%w: amount %d missing", ErrAmountCount, i)
		}
	}
	return nil
}
