package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const stablePoolABIJSON = `[
  {
    "inputs": [{"name": "i", "type": "uint256"}],
    "name": "coins",
    "outputs": [{"name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"name": "i", "type": "uint256"}],
    "name": "balances",
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "A",
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "fee",
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "lp_token",
    "outputs": [{"name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "totalSupply",
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "get_virtual_price",
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"name": "i", "type": "int128"},
      {"name": "j", "type": "int128"},
      {"name": "dx", "type": "uint256"}
    ],
    "name": "get_dy",
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	stablePoolABI     abi.ABI
	stablePoolABIOnce sync.Once
	stablePoolABIErr  error
)

// StablePoolABI returns the parsed ABI of a Curve-style StableSwap pool.
// Coin indices are uint256 for coins and balances and int128 for get_dy.
func StablePoolABI() (abi.ABI, error) {
	stablePoolABIOnce.Do(func() {
		stablePoolABI, stablePoolABIErr = abi.JSON(strings.NewReader(stablePoolABIJSON))
	})
	return stablePoolABI, stablePoolABIErr
}
