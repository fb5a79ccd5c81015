// Package simulate replays pool operations against the stableswap engine,
// carrying balances and share supply from one operation to the next the way
// the on-chain pair would.
package simulate

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"stableScope/internal/model"
	"stableScope/internal/stableswap"
)

// MinimumLiquidity is the share amount a first deposit locks in the pool.
const MinimumLiquidity = 1000

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrMissingAmount    = errors.New("operation amount missing")
	ErrMinimumLiquidity = errors.New("initial liquidity must be more than the locked minimum")
)

var minimumLiquidity = uint256.NewInt(MinimumLiquidity)

// Evaluate runs op against pool and returns its result together with the
// pool state the operation leaves behind. pool itself is never modified.
// Read-only operations (reverse, invariant) return an unchanged copy.
func Evaluate(pool stableswap.Pool, op model.Operation) (model.OperationResult, stableswap.Pool, error) {
	res := model.OperationResult{Op: op.Op, From: op.From, To: op.To}
	next := pool.Clone()

	var err error
	switch op.Op {
	case model.OpSwap:
		err = evalSwap(pool, &next, op, &res)
	case model.OpReverse:
		err = evalReverse(pool, op, &res)
	case model.OpProvide:
		err = evalProvide(pool, &next, op, &res)
	case model.OpWithdrawImbalanced:
		err = evalWithdrawImbalanced(pool, &next, op, &res)
	case model.OpWithdrawOne:
		err = evalWithdrawOne(pool, &next, op, &res)
	case model.OpWithdrawProportional:
		err = evalWithdrawProportional(pool, &next, op, &res)
	case model.OpInvariant:
		err = evalInvariant(pool, &res)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOperation, op.Op)
	}
	if err != nil {
		res.Error = err.Error()
		return res, pool, err
	}

	res.Balances = model.AmountStrings(next.Balances)
	res.TotalSupply = model.AmountString(next.TotalSupply)
	return res, next, nil
}

func evalSwap(pool stableswap.Pool, next *stableswap.Pool, op model.Operation, res *model.OperationResult) error {
	dx, err := amount(op)
	if err != nil {
		return err
	}
	dxScaled, err := pool.Scale(op.From, dx)
	if err != nil {
		return err
	}
	swap, err := pool.Swap(op.From, op.To, dxScaled)
	if err != nil {
		return err
	}
	net, err := pool.Unscale(op.To, swap.Net)
	if err != nil {
		return err
	}
	fee, err := pool.Unscale(op.To, swap.Fee)
	if err != nil {
		return err
	}

	out := zeros(pool.N())
	out[op.To] = net
	res.Out = model.AmountStrings(out)
	res.Fee = model.AmountString(fee)
	next.Balances = swap.Balances
	return nil
}

func evalReverse(pool stableswap.Pool, op model.Operation, res *model.OperationResult) error {
	dy, err := amount(op)
	if err != nil {
		return err
	}
	dyScaled, err := pool.Scale(op.To, dy)
	if err != nil {
		return err
	}
	dx, err := pool.QuoteReverse(op.From, op.To, dyScaled)
	if err != nil {
		return err
	}
	offer, err := pool.Unscale(op.From, dx)
	if err != nil {
		return err
	}

	out := zeros(pool.N())
	out[op.From] = offer
	res.Out = model.AmountStrings(out)
	return nil
}

func evalProvide(pool stableswap.Pool, next *stableswap.Pool, op model.Operation, res *model.OperationResult) error {
	amounts, err := amountList(op)
	if err != nil {
		return err
	}
	minted, err := pool.ProvideLiquidity(amounts)
	if err != nil {
		return err
	}
	for i, a := range amounts {
		if next.Balances[i], err = checkedAdd(next.Balances[i], a); err != nil {
			return err
		}
	}
	if next.TotalSupply, err = checkedAdd(next.TotalSupply, minted); err != nil {
		return err
	}

	received := minted
	if pool.TotalSupply == nil || pool.TotalSupply.IsZero() {
		if !minted.Gt(minimumLiquidity) {
			return fmt.Errorf("%w: minted %s", ErrMinimumLiquidity, model.AmountString(minted))
		}
		received = new(uint256.Int).Sub(minted, minimumLiquidity)
		res.Locked = model.AmountString(minimumLiquidity)
	}
	res.Shares = model.AmountString(received)
	return nil
}

func evalWithdrawImbalanced(pool stableswap.Pool, next *stableswap.Pool, op model.Operation, res *model.OperationResult) error {
	amounts, err := amountList(op)
	if err != nil {
		return err
	}
	burned, err := pool.WithdrawImbalanced(amounts)
	if err != nil {
		return err
	}
	// The pair rounds the burn up against the withdrawer.
	if !burned.IsZero() {
		if burned, err = checkedAdd(burned, uint256.NewInt(1)); err != nil {
			return err
		}
	}
	for i, a := range amounts {
		if next.Balances[i], err = checkedSub(next.Balances[i], a); err != nil {
			return err
		}
	}
	if next.TotalSupply, err = checkedSub(next.TotalSupply, burned); err != nil {
		return fmt.Errorf("burn shares: %w", err)
	}
	res.Out = model.AmountStrings(amounts)
	res.Shares = model.AmountString(burned)
	return nil
}

func evalWithdrawOne(pool stableswap.Pool, next *stableswap.Pool, op model.Operation, res *model.OperationResult) error {
	shares, err := amount(op)
	if err != nil {
		return err
	}
	dy, err := pool.WithdrawOneCoin(shares, op.From)
	if err != nil {
		return err
	}
	paid, err := pool.Unscale(op.From, dy)
	if err != nil {
		return err
	}
	if next.Balances[op.From], err = checkedSub(next.Balances[op.From], paid); err != nil {
		return err
	}
	if next.TotalSupply, err = checkedSub(next.TotalSupply, shares); err != nil {
		return fmt.Errorf("burn shares: %w", err)
	}

	out := zeros(pool.N())
	out[op.From] = paid
	res.Out = model.AmountStrings(out)
	res.Shares = model.AmountString(shares)
	return nil
}

func evalWithdrawProportional(pool stableswap.Pool, next *stableswap.Pool, op model.Operation, res *model.OperationResult) error {
	shares, err := amount(op)
	if err != nil {
		return err
	}
	amounts, err := pool.WithdrawProportional(shares)
	if err != nil {
		return err
	}
	for i, a := range amounts {
		if next.Balances[i], err = checkedSub(next.Balances[i], a); err != nil {
			return err
		}
	}
	if next.TotalSupply, err = checkedSub(next.TotalSupply, shares); err != nil {
		return err
	}
	res.Out = model.AmountStrings(amounts)
	res.Shares = model.AmountString(shares)
	return nil
}

func evalInvariant(pool stableswap.Pool, res *model.OperationResult) error {
	d, err := pool.Invariant()
	if err != nil {
		return err
	}
	res.Invariant = model.AmountString(d)
	if pool.TotalSupply != nil && !pool.TotalSupply.IsZero() {
		price, err := pool.VirtualPrice()
		if err != nil {
			return err
		}
		res.VirtualPrice = model.AmountString(price)
	}
	return nil
}

func amount(op model.Operation) (*uint256.Int, error) {
	if op.Amount == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAmount, op.Op)
	}
	return model.ParseAmount(op.Amount)
}

func amountList(op model.Operation) ([]*uint256.Int, error) {
	if len(op.Amounts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingAmount, op.Op)
	}
	return model.ParseAmounts(op.Amounts)
}

func zeros(n int) []*uint256.Int {
	out := make([]*uint256.Int, n)
	for i := range out {
		out[i] = new(uint256.Int)
	}
	return out
}

func checkedAdd(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || z.BitLen() > 128 {
		return nil, stableswap.ErrNarrowOverflow
	}
	return z, nil
}

func checkedSub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, stableswap.ErrUnderflow
	}
	return z, nil
}

// Simulator is the stateful adapter over the engine: it owns one pool and
// commits the state each successful operation leaves behind. It is not safe
// for concurrent use.
type Simulator struct {
	pool stableswap.Pool
}

func NewSimulator(pool stableswap.Pool) *Simulator {
	return &Simulator{pool: pool.Clone()}
}

// Pool returns a copy of the current pool state.
func (s *Simulator) Pool() stableswap.Pool {
	return s.pool.Clone()
}

// Apply evaluates op and commits the resulting state. A failed operation
// leaves the pool untouched.
func (s *Simulator) Apply(op model.Operation) (model.OperationResult, error) {
	res, next, err := Evaluate(s.pool, op)
	if err != nil {
		return res, err
	}
	s.pool = next
	return res, nil
}

// Restore replaces balances and supply with a saved state.
func (s *Simulator) Restore(state model.SimulationState) error {
	if len(state.Balances) != s.pool.N() {
		return fmt.Errorf("state has %d balances, pool has %d coins", len(state.Balances), s.pool.N())
	}
	balances, err := model.ParseAmounts(state.Balances)
	if err != nil {
		return fmt.Errorf("state balances: %w", err)
	}
	supply, err := model.ParseAmount(state.TotalSupply)
	if err != nil {
		return fmt.Errorf("state supply: %w", err)
	}

	restored := s.pool.Clone()
	restored.Balances = balances
	restored.TotalSupply = supply
	if err := restored.Validate(); err != nil {
		return err
	}
	s.pool = restored
	return nil
}

// State captures the current pool state for checkpointing.
func (s *Simulator) State(name string, processed uint64) model.SimulationState {
	return model.SimulationState{
		Name:        name,
		Processed:   processed,
		Balances:    model.AmountStrings(s.pool.Balances),
		TotalSupply: model.AmountString(s.pool.TotalSupply),
	}
}
