package model

// QuoteRecord is one evaluated quote, written to JSONL and Postgres.
type QuoteRecord struct {
	ChainID      uint64          `json:"chain_id,omitempty"`
	PoolAddress  string          `json:"pool_address,omitempty"`
	BlockNumber  uint64          `json:"block_number,omitempty"`
	Operation    Operation       `json:"operation"`
	Result       OperationResult `json:"result"`
	Display      []string        `json:"display,omitempty"`
	OnchainOut   string          `json:"onchain_out,omitempty"`
	OnchainDelta string          `json:"onchain_delta,omitempty"`
	Converged    bool            `json:"converged"`
	QuotedAt     string          `json:"quoted_at"`
}
