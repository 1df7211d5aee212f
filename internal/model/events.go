package model

// PoolCreatedData is the decoded PoolCreated event payload.
type PoolCreatedData struct {
	Pool           string `json:"pool"`
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	OwnershipToken string `json:"ownership_token"`
	FeeBps         uint16 `json:"fee_bps"`
	Timestamp      uint64 `json:"timestamp"`
	Caller         string `json:"caller"`
}

// LiquidityAddedData is the decoded LiquidityAdded event payload.
type LiquidityAddedData struct {
	Pool        string `json:"pool"`
	TokenA      string `json:"token_a"`
	TokenB      string `json:"token_b"`
	AmountA     string `json:"amount_a"`
	AmountB     string `json:"amount_b"`
	UnitsMinted string `json:"units_minted"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
	Timestamp   uint64 `json:"timestamp"`
	Caller      string `json:"caller"`
}

// LiquidityRemovedData is the decoded LiquidityRemoved event payload.
type LiquidityRemovedData struct {
	Pool        string `json:"pool"`
	TokenA      string `json:"token_a"`
	TokenB      string `json:"token_b"`
	AmountA     string `json:"amount_a"`
	AmountB     string `json:"amount_b"`
	UnitsBurned string `json:"units_burned"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
	Timestamp   uint64 `json:"timestamp"`
	Caller      string `json:"caller"`
}

// TokenSwappedData is the decoded TokenSwapped event payload. Reserves are
// oriented by trade direction.
type TokenSwappedData struct {
	Pool       string `json:"pool"`
	TokenIn    string `json:"token_in"`
	TokenOut   string `json:"token_out"`
	AmountIn   string `json:"amount_in"`
	AmountOut  string `json:"amount_out"`
	ReserveIn  string `json:"reserve_in"`
	ReserveOut string `json:"reserve_out"`
	Timestamp  uint64 `json:"timestamp"`
	Caller     string `json:"caller"`
}
