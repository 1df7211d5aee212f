package aggregate

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityPool/internal/chain"
	"liquidityPool/internal/dex"
)

// tokenDecimals resolves the decimals used to format token amounts. Known
// values come from the metadata cache. Other tokens cost one RPC each; a
// failed lookup is remembered and the token stays in raw units.
type tokenDecimals struct {
	cache  *dex.TokenMetaCache
	chain  *chain.Client
	logger *zap.Logger
	failed map[common.Address]struct{}
}

func newTokenDecimals(cache *dex.TokenMetaCache, chainClient *chain.Client, logger *zap.Logger) *tokenDecimals {
	if cache == nil {
		cache = dex.NewTokenMetaCache()
	}
	return &tokenDecimals{
		cache:  cache,
		chain:  chainClient,
		logger: logger,
		failed: make(map[common.Address]struct{}),
	}
}

func (d *tokenDecimals) pin(token common.Address, decimals uint8) {
	meta, _ := d.cache.Get(token)
	meta.Address = token.Hex()
	meta.Decimals = decimals
	d.cache.Set(token, meta)
	delete(d.failed, token)
}

// lookup returns 0, meaning raw units, for unknown tokens.
func (d *tokenDecimals) lookup(ctx context.Context, token string) uint8 {
	if !common.IsHexAddress(token) {
		return 0
	}
	addr := common.HexToAddress(token)
	if meta, ok := d.cache.Get(addr); ok {
		return meta.Decimals
	}
	if d.chain == nil {
		return 0
	}
	if _, ok := d.failed[addr]; ok {
		return 0
	}
	meta, err := dex.FetchTokenMeta(ctx, d.chain, addr, d.logger)
	if err != nil {
		d.logger.Warn("token decimals unavailable, using raw units", zap.String("token", addr.Hex()), zap.Error(err))
		d.failed[addr] = struct{}{}
		return 0
	}
	d.cache.Set(addr, meta)
	return meta.Decimals
}
