package model

// TokenMeta captures the ERC20 metadata of a pool coin.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}
