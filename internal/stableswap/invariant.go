package stableswap

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ComputeD solves
//
//	A·n^n·Σx + D = A·n^n·D + D^(n+1) / (n^n·Πx)
//
// for D by Newton iteration over the normalised balances xp. The second
// result reports whether |D - D_prev| ≤ 1 was reached within MaxIterations+1 steps;
// when it was not, the last approximation is returned.
func ComputeD(xp []*uint256.Int, amp uint64) (*uint256.Int, bool, error) {
	n := uint64(len(xp))
	if n < MinAssets {
		return nil, false, fmt.Errorf("%w: %d assets", ErrInvalidPool, n)
	}

	s, err := sum(xp)
	if err != nil {
		return nil, false, fmt.Errorf("sum balances: %w", err)
	}
	if s.Cmp(one) <= 0 {
		return s, true, nil
	}

	nn := uint256.NewInt(n)
	ann, err := mul(uint256.NewInt(amp), nn)
	if err != nil {
		return nil, false, err
	}
	if ann.IsZero() {
		return nil, false, fmt.Errorf("%w: amplification must be positive", ErrInvalidPool)
	}
	annS, err := mul(ann, s)
	if err != nil {
		return nil, false, fmt.Errorf("ann*S: %w", err)
	}
	annLessOne := new(uint256.Int).Sub(ann, one)
	nPlusOne := uint256.NewInt(n + 1)

	d := s.Clone()
	for iter := 0; iter <= MaxIterations; iter++ {
		dP := d.Clone()
		for _, x := range xp {
			nx, err := mul(nn, x)
			if err != nil {
				return nil, false, err
			}
			if dP, err = mulDiv(dP, d, nx); err != nil {
				return nil, false, fmt.Errorf("product term: %w", err)
			}
			if err := narrow(dP); err != nil {
				return nil, false, fmt.Errorf("product term: %w", err)
			}
		}

		num, err := mul(dP, nn)
		if err != nil {
			return nil, false, err
		}
		if num, err = add(annS, num); err != nil {
			return nil, false, err
		}

		left, err := mul(annLessOne, d)
		if err != nil {
			return nil, false, err
		}
		right, err := mul(nPlusOne, dP)
		if err != nil {
			return nil, false, err
		}
		den, err := add(left, right)
		if err != nil {
			return nil, false, err
		}

		prev := d
		if d, err = mulDiv(d, num, den); err != nil {
			return nil, false, fmt.Errorf("invariant step: %w", err)
		}
		if err := narrow(d); err != nil {
			return nil, false, fmt.Errorf("invariant step: %w", err)
		}
		if absDiff(d, prev).Cmp(one) <= 0 {
			return d, true, nil
		}
	}
	return d, false, nil
}

// Invariant returns D for the pool's current balances.
func (p Pool) Invariant() (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p.invariantFor(p.Balances)
}

// Converges reports whether the D solve for the current balances settles
// within the iteration cap, regardless of StrictConvergence.
func (p Pool) Converges() (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	xp, err := p.XP()
	if err != nil {
		return false, err
	}
	_, ok, err := ComputeD(xp, p.Amp)
	return ok, err
}

// VirtualPrice returns D per pool share, scaled by 10^18.
func (p Pool) VirtualPrice() (*uint256.Int, error) {
	d, err := p.Invariant()
	if err != nil {
		return nil, err
	}
	price, err := mulDiv(d, pricePrecision, p.supply())
	if err != nil {
		return nil, fmt.Errorf("virtual price: %w", err)
	}
	return price, narrow(price)
}

func (p Pool) invariantFor(balances []*uint256.Int) (*uint256.Int, error) {
	xp, err := p.xpFor(balances)
	if err != nil {
		return nil, err
	}
	return p.invariantXP(xp)
}

func (p Pool) invariantXP(xp []*uint256.Int) (*uint256.Int, error) {
	d, ok, err := ComputeD(xp, p.Amp)
	if err != nil {
		return nil, err
	}
	if err := p.converged(ok, "invariant"); err != nil {
		return nil, err
	}
	return d, nil
}
