package model

// Pool is a pool metadata record for storage.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	OwnershipToken string `json:"ownership_token"`
	FeeBps         uint16 `json:"fee_bps"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}

// PoolMeta captures immutable pool metadata with optional live reserves.
type PoolMeta struct {
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	OwnershipToken string `json:"ownership_token"`
	FeeBps         uint16 `json:"fee_bps"`
	ReserveA       string `json:"reserve_a,omitempty"`
	ReserveB       string `json:"reserve_b,omitempty"`
}

// Complete reports whether both asset identities are known.
func (m PoolMeta) Complete() bool {
	return m.TokenA != "" && m.TokenB != ""
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
