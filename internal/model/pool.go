package model

import (
	"fmt"

	"github.com/holiman/uint256"

	"stableScope/internal/stableswap"
)

// CoinSnapshot is one pool coin. Balance and TargetPrice are base-10
// integers; TargetPrice is scaled by 10^18.
type CoinSnapshot struct {
	Address     string `json:"address,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Decimals    uint8  `json:"decimals"`
	Balance     string `json:"balance"`
	TargetPrice string `json:"target_price,omitempty"`
}

// PoolSnapshot is the persisted state of a stable pool at one block.
type PoolSnapshot struct {
	ChainID        uint64         `json:"chain_id,omitempty"`
	Address        string         `json:"address,omitempty"`
	BlockNumber    uint64         `json:"block_number,omitempty"`
	BlockTimestamp uint64         `json:"block_timestamp,omitempty"`
	Amp            uint64         `json:"amp"`
	Fee            uint64         `json:"fee"`
	LPToken        string         `json:"lp_token,omitempty"`
	TotalSupply    string         `json:"total_supply"`
	Coins          []CoinSnapshot `json:"coins"`
	FetchedAt      string         `json:"fetched_at,omitempty"`
}

// Pool converts the snapshot into an engine pool. Coins without an explicit
// target price are normalised by their decimals.
func (s PoolSnapshot) Pool() (stableswap.Pool, error) {
	n := len(s.Coins)
	balances := make([]*uint256.Int, n)
	prices := make([]*uint256.Int, n)
	decimals := make([]uint8, n)
	explicit := 0
	for i, coin := range s.Coins {
		bal, err := ParseAmount(coin.Balance)
		if err != nil {
			return stableswap.Pool{}, fmt.Errorf("coin %d balance: %w", i, err)
		}
		balances[i] = bal
		decimals[i] = coin.Decimals
		if coin.TargetPrice != "" {
			if prices[i], err = ParseAmount(coin.TargetPrice); err != nil {
				return stableswap.Pool{}, fmt.Errorf("coin %d target price: %w", i, err)
			}
			explicit++
		}
	}

	if explicit != n {
		derived, err := stableswap.TargetPricesForDecimals(decimals)
		if err != nil {
			return stableswap.Pool{}, err
		}
		for i := range prices {
			if prices[i] == nil {
				prices[i] = derived[i]
			}
		}
	}

	supply := new(uint256.Int)
	if s.TotalSupply != "" {
		var err error
		if supply, err = ParseAmount(s.TotalSupply); err != nil {
			return stableswap.Pool{}, fmt.Errorf("total supply: %w", err)
		}
	}

	pool := stableswap.Pool{
		Amp:          s.Amp,
		Fee:          s.Fee,
		Balances:     balances,
		TargetPrices: prices,
		TotalSupply:  supply,
	}
	if err := pool.Validate(); err != nil {
		return stableswap.Pool{}, err
	}
	return pool, nil
}

// WithState returns a copy of s carrying the balances and supply of p.
func (s PoolSnapshot) WithState(p stableswap.Pool) PoolSnapshot {
	out := s
	out.Coins = make([]CoinSnapshot, len(s.Coins))
	copy(out.Coins, s.Coins)
	for i := range out.Coins {
		if i < len(p.Balances) {
			out.Coins[i].Balance = AmountString(p.Balances[i])
		}
		if i < len(p.TargetPrices) {
			out.Coins[i].TargetPrice = AmountString(p.TargetPrices[i])
		}
	}
	out.TotalSupply = AmountString(p.TotalSupply)
	return out
}
