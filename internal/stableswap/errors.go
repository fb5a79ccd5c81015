package stableswap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPool marks a pool snapshot the engine cannot compute against.
	ErrInvalidPool = errors.New("invalid pool state")
	// ErrDivisionByZero is returned when a reserve, supply or price is zero
	// where it is used as a divisor.
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrInvalidPool)

	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrNarrowOverflow = errors.New("value exceeds 128 bits")

	ErrAssetIndex  = errors.New("asset index out of range")
	ErrSameAsset   = errors.New("offer and ask asset are the same")
	ErrAmountCount = errors.New("amount count does not match asset count")

	// ErrNotConverged is only returned when Pool.StrictConvergence is set.
	ErrNotConverged = errors.New("solver did not converge")

	ErrInvariantNotIncreased = errors.New("deposit does not increase invariant")
	// ErrFullFee is returned by QuoteReverse when the fee keeps the whole output.
	ErrFullFee = errors.New("fee leaves no output to quote")
)
