package stableswap

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SwapResult is the outcome of swapping into asset j. Amounts are in
// normalised units; Balances holds the raw balances after the swap.
type SwapResult struct {
	Gross    *uint256.Int
	Fee      *uint256.Int
	Net      *uint256.Int
	Balances []*uint256.Int
}

// QuoteSwap returns the pre-fee amount of asset j received for dx of asset
// i, both in normalised units.
func (p Pool) QuoteSwap(i, j int, dx *uint256.Int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.checkPair(i, j); err != nil {
		return nil, err
	}
	xp, err := p.XP()
	if err != nil {
		return nil, err
	}
	x, err := add(xp[i], dx)
	if err != nil {
		return nil, err
	}
	y, err := p.solveYXP(xp, i, j, x)
	if err != nil {
		return nil, err
	}
	dy, err := sub(xp[j], y)
	if err != nil {
		return nil, fmt.Errorf("swap output: %w", err)
	}
	return dy, nil
}

// Swap computes an exchange of dx (normalised) of asset i for asset j
// without touching p. The fee is taken from the output and stays in the
// pool. A zero gross output is a no-op result, not an error.
func (p Pool) Swap(i, j int, dx *uint256.Int) (SwapResult, error) {
	if err := p.Validate(); err != nil {
		return SwapResult{}, err
	}
	if err := p.checkPair(i, j); err != nil {
		return SwapResult{}, err
	}
	xp, err := p.XP()
	if err != nil {
		return SwapResult{}, err
	}
	x, err := add(xp[i], dx)
	if err != nil {
		return SwapResult{}, err
	}
	y, err := p.solveYXP(xp, i, j, x)
	if err != nil {
		return SwapResult{}, err
	}
	dy, err := sub(xp[j], y)
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap output: %w", err)
	}

	if dy.IsZero() {
		return SwapResult{
			Gross:    new(uint256.Int),
			Fee:      new(uint256.Int),
			Net:      new(uint256.Int),
			Balances: cloneAll(p.Balances),
		}, nil
	}

	fee, err := mulDiv(dy, uint256.NewInt(p.Fee), feeDenominator)
	if err != nil {
		return SwapResult{}, err
	}
	net, err := sub(dy, fee)
	if err != nil {
		return SwapResult{}, err
	}

	balances := cloneAll(p.Balances)
	if balances[i], err = p.Unscale(i, x); err != nil {
		return SwapResult{}, err
	}
	yWithFee, err := add(y, fee)
	if err != nil {
		return SwapResult{}, err
	}
	if balances[j], err = p.Unscale(j, yWithFee); err != nil {
		return SwapResult{}, err
	}

	return SwapResult{Gross: dy, Fee: fee, Net: net, Balances: balances}, nil
}

// ApplySwap performs Swap and writes the new balances into p. It returns
// the net output after fee.
func (p *Pool) ApplySwap(i, j int, dx *uint256.Int) (*uint256.Int, error) {
	res, err := p.Swap(i, j, dx)
	if err != nil {
		return nil, err
	}
	if res.Gross.IsZero() {
		return res.Net, nil
	}
	p.Balances = res.Balances
	return res.Net, nil
}

// QuoteReverse returns how much of asset i (normalised) must be offered so
// that the swap pays dyNet of asset j after fee.
func (p Pool) QuoteReverse(i, j int, dyNet *uint256.Int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.checkPair(i, j); err != nil {
		return nil, err
	}
	xp, err := p.XP()
	if err != nil {
		return nil, err
	}

	scaled, err := mul(dyNet, feeDenominator)
	if err != nil {
		return nil, err
	}
	keep := new(uint256.Int).Sub(feeDenominator, uint256.NewInt(p.Fee))
	if keep.IsZero() {
		return nil, ErrFullFee
	}
	gross, err := ceilDiv(scaled, keep)
	if err != nil {
		return nil, fmt.Errorf("gross output: %w", err)
	}

	yAfter, err := sub(xp[j], gross)
	if err != nil {
		return nil, fmt.Errorf("ask exceeds reserve: %w", err)
	}
	x, err := p.solveYXP(xp, j, i, yAfter)
	if err != nil {
		return nil, err
	}
	dx, err := sub(x, xp[i])
	if err != nil {
		return nil, fmt.Errorf("offer amount: %w", err)
	}
	return dx, narrow(dx)
}
