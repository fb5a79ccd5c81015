package model

// Operation kinds understood by the quote command and the simulator.
const (
	OpSwap                 = "swap"
	OpReverse              = "reverse"
	OpProvide              = "provide"
	OpWithdrawImbalanced   = "withdraw-imbalanced"
	OpWithdrawOne          = "withdraw-one"
	OpWithdrawProportional = "withdraw-proportional"
	OpInvariant            = "invariant"
)

// Operation is one input line of a simulation. Amounts are raw base-10
// integers: the offered amount for swap, the wanted output for reverse and
// pool shares for withdraw-one and withdraw-proportional.
type Operation struct {
	Op      string   `json:"op"`
	From    int      `json:"from,omitempty"`
	To      int      `json:"to,omitempty"`
	Amount  string   `json:"amount,omitempty"`
	Amounts []string `json:"amounts,omitempty"`
}

// OperationResult is the outcome of one Operation. Out holds raw per-coin
// amounts (or the single input amount for reverse); Shares holds pool
// shares minted to the provider or burned from them. Locked holds the
// shares a first deposit mints to nobody.
type OperationResult struct {
	Seq          uint64   `json:"seq"`
	Op           string   `json:"op"`
	From         int      `json:"from,omitempty"`
	To           int      `json:"to,omitempty"`
	Out          []string `json:"out,omitempty"`
	Fee          string   `json:"fee,omitempty"`
	Shares       string   `json:"shares,omitempty"`
	Locked       string   `json:"locked,omitempty"`
	Invariant    string   `json:"invariant,omitempty"`
	VirtualPrice string   `json:"virtual_price,omitempty"`
	Balances     []string `json:"balances,omitempty"`
	TotalSupply  string   `json:"total_supply,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// SimulationState is the resumable progress of a simulation run.
type SimulationState struct {
	Name        string   `json:"name"`
	Processed   uint64   `json:"processed"`
	Balances    []string `json:"balances"`
	TotalSupply string   `json:"total_supply"`
	UpdatedAt   string   `json:"updated_at"`
}
