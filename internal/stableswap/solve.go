package stableswap

import (
	"fmt"

	"github.com/holiman/uint256"
)

// solveY finds the balance y of the missing asset that keeps the invariant at
// d, given the other n-1 normalised balances, by iterating
//
//	y = (y² + c) / (2y + Σ' + D/Ann - D)
//
// with c = D^(n+1) / (n^n · Π' · Ann).
func solveY(others []*uint256.Int, d *uint256.Int, amp uint64, n int) (*uint256.Int, bool, error) {
	if d.Cmp(one) <= 0 {
		return d.Clone(), true, nil
	}

	nn := uint256.NewInt(uint64(n))
	ann, err := mul(uint256.NewInt(amp), nn)
	if err != nil {
		return nil, false, err
	}

	c := d.Clone()
	for _, x := range others {
		nx, err := mul(x, nn)
		if err != nil {
			return nil, false, err
		}
		if c, err = mulDiv(c, d, nx); err != nil {
			return nil, false, fmt.Errorf("c term: %w", err)
		}
	}
	nAnn, err := mul(nn, ann)
	if err != nil {
		return nil, false, err
	}
	if c, err = mulDiv(c, d, nAnn); err != nil {
		return nil, false, fmt.Errorf("c term: %w", err)
	}

	s, err := sum(others)
	if err != nil {
		return nil, false, err
	}
	dOverAnn, err := div(d, ann)
	if err != nil {
		return nil, false, err
	}
	// b + D, kept unsigned; D is subtracted once 2y is known.
	bPlusD, err := add(s, dOverAnn)
	if err != nil {
		return nil, false, err
	}

	y := d.Clone()
	for iter := 0; iter <= MaxIterations; iter++ {
		den, err := mul(y, two)
		if err != nil {
			return nil, false, err
		}
		if den, err = add(den, bPlusD); err != nil {
			return nil, false, err
		}
		if den, err = sub(den, d); err != nil {
			return nil, false, fmt.Errorf("y denominator: %w", err)
		}

		num, err := mul(y, y)
		if err != nil {
			return nil, false, err
		}
		if num, err = add(num, c); err != nil {
			return nil, false, err
		}

		prev := y
		if y, err = div(num, den); err != nil {
			return nil, false, fmt.Errorf("y step: %w", err)
		}
		if err := narrow(y); err != nil {
			return nil, false, fmt.Errorf("y step: %w", err)
		}
		if absDiff(y, prev).Cmp(one) <= 0 {
			return y, true, nil
		}
	}
	return y, false, nil
}

// SolveY returns the normalised balance of asset j after asset i's
// normalised balance is set to x, holding D (computed from the current
// balances) constant.
func (p Pool) SolveY(i, j int, x *uint256.Int) (*uint256.Int, error) {
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
	return p.solveYXP(xp, i, j, x)
}

func (p Pool) solveYXP(xp []*uint256.Int, i, j int, x *uint256.Int) (*uint256.Int, error) {
	d, err := p.invariantXP(xp)
	if err != nil {
		return nil, err
	}

	others := make([]*uint256.Int, 0, len(xp)-1)
	for k, v := range xp {
		switch k {
		case j:
			continue
		case i:
			others = append(others, x)
		default:
			others = append(others, v)
		}
	}

	y, ok, err := solveY(others, d, p.Amp, len(xp))
	if err != nil {
		return nil, err
	}
	if err := p.converged(ok, "y"); err != nil {
		return nil, err
	}
	return y, nil
}

// SolveYD returns the normalised balance of asset i that yields invariant d
// with every other balance unchanged.
func (p Pool) SolveYD(i int, d *uint256.Int) (*uint256.Int, error) {
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
	return p.solveYDXP(xp, i, d)
}

func (p Pool) solveYDXP(xp []*uint256.Int, i int, d *uint256.Int) (*uint256.Int, error) {
	others := make([]*uint256.Int, 0, len(xp)-1)
	for k, v := range xp {
		if k != i {
			others = append(others, v)
		}
	}

	y, ok, err := solveY(others, d, p.Amp, len(xp))
	if err != nil {
		return nil, err
	}
	if err := p.converged(ok, "y_d"); err != nil {
		return nil, err
	}
	return y, nil
}
