package stableswap

import "github.com/holiman/uint256"

var (
	one            = uint256.NewInt(1)
	two            = uint256.NewInt(2)
	feeDenominator = uint256.NewInt(FeeDenominator)
	pricePrecision = uint256.NewInt(PricePrecision)
)

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// uint256 division by zero yields zero, so every divisor is checked here.
func div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(x, y), nil
}

// mulDiv computes x*y/d with a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ceilDiv rounds x/y up.
func ceilDiv(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	q, r := new(uint256.Int).DivMod(x, y, new(uint256.Int))
	if r.IsZero() {
		return q, nil
	}
	return add(q, one)
}

func sum(xs []*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, x := range xs {
		var err error
		if total, err = add(total, x); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func absDiff(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Sub(y, x)
	}
	return new(uint256.Int).Sub(x, y)
}

// narrow fails when v would not fit the 128-bit result width.
func narrow(v *uint256.Int) error {
	if v.BitLen() > 128 {
		return ErrNarrowOverflow
	}
	return nil
}

func cloneAll(xs []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(xs))
	for i, x := range xs {
		if x != nil {
			out[i] = x.Clone()
		}
	}
	return out
}
