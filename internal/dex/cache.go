package dex

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidityPool/internal/model"
)

// addrCache is a concurrency-safe map keyed by contract address.
type addrCache[V any] struct {
	mu   sync.RWMutex
	data map[common.Address]V
}

func (c *addrCache[V]) Get(address common.Address) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[address]
	return v, ok
}

func (c *addrCache[V]) Set(address common.Address, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[common.Address]V)
	}
	c.data[address] = v
}

// Len reports the number of cached entries.
func (c *addrCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// PoolMetaCache holds immutable pool metadata. PoolCreated logs fill it during
// decoding so later pool events need no RPC.
type PoolMetaCache struct {
	addrCache[model.PoolMeta]
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{}
}

// TokenMetaCache holds ERC-20 metadata.
type TokenMetaCache struct {
	addrCache[model.TokenMeta]
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{}
}
