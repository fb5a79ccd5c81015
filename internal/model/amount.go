package model

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a base-10 integer amount as stored in snapshots and
// operation files.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// ParseAmounts parses every entry of ss.
func ParseAmounts(ss []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(ss))
	for i, s := range ss {
		v, err := ParseAmount(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// AmountString renders v in base 10; nil renders as "0".
func AmountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

// AmountStrings renders every entry of vs in base 10.
func AmountStrings(vs []*uint256.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = AmountString(v)
	}
	return out
}

// FormatAmount renders a raw token amount with its decimal point placed, e.g.
// 9994902 with 5 decimals is "99.94902".
func FormatAmount(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}
