package aggregate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityPool/internal/dex"
)

// fetchTVL reads the pool's reserves at the block. Pools without a reserves
// getter fall back to the ERC-20 balances they hold, first at the block and
// then at latest for nodes that prune history.
func (a *Aggregator) fetchTVL(ctx context.Context, tokenA, tokenB, poolAddr string, blockNumber uint64) (*big.Int, *big.Int, string, error) {
	for _, addr := range []string{tokenA, tokenB, poolAddr} {
		if !common.IsHexAddress(addr) {
			return nil, nil, tvlMethodNone, fmt.Errorf("invalid address %q", addr)
		}
	}
	pool := common.HexToAddress(poolAddr)

	reserveA, reserveB, err := dex.FetchPoolReserves(ctx, a.chainClient, pool, blockNumber)
	if err == nil {
		return reserveA, reserveB, tvlMethodReserves, nil
	}
	a.logger.Debug("pool reserves unavailable", zap.String("pool", poolAddr), zap.Error(err))

	tokens := [2]common.Address{common.HexToAddress(tokenA), common.HexToAddress(tokenB)}
	attempts := []struct {
		method string
		block  *big.Int
	}{
		{tvlMethodBlock, new(big.Int).SetUint64(blockNumber)},
		{tvlMethodLatest, nil},
	}
	for _, at := range attempts {
		var balances [2]*big.Int
		for i, token := range tokens {
			if balances[i], err = dex.FetchTokenBalance(ctx, a.chainClient, token, pool, at.block); err != nil {
				break
			}
		}
		if err == nil {
			return balances[0], balances[1], at.method, nil
		}
	}
	return nil, nil, tvlMethodNone, fmt.Errorf("pool balances: %w", err)
}
