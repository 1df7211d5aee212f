package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityPool/internal/chain"
	"liquidityPool/internal/model"
)

// maxFeeBps mirrors the pool's own fee bound.
const maxFeeBps = 10_000

// FetchPoolMeta reads a pool's asset pair, fee and ownership token, and warms
// tokenCache with metadata for both assets.
func FetchPoolMeta(ctx context.Context, chainClient *chain.Client, pool common.Address, tokenCache *TokenMetaCache, logger *zap.Logger) (model.PoolMeta, error) {
	if chainClient == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolABI, err := PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}
	read := func(method string, want int) ([]interface{}, error) {
		values, err := callContract(ctx, chainClient, pool, poolABI, method, nil)
		if err != nil {
			return nil, err
		}
		if len(values) != want {
			return nil, fmt.Errorf("%s: want %d values, got %d", method, want, len(values))
		}
		return values, nil
	}

	values, err := read("getTokens", 2)
	if err != nil {
		return model.PoolMeta{}, err
	}
	var tokens [2]common.Address
	for i := range tokens {
		if tokens[i], err = asAddress(values[i]); err != nil {
			return model.PoolMeta{}, fmt.Errorf("getTokens[%d]: %w", i, err)
		}
	}

	if values, err = read("getFee", 1); err != nil {
		return model.PoolMeta{}, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("getFee: %w", err)
	}
	if fee.Sign() < 0 || fee.Cmp(big.NewInt(maxFeeBps)) >= 0 {
		return model.PoolMeta{}, fmt.Errorf("getFee: %s bps out of range", fee)
	}

	if values, err = read("getOwnershipToken", 1); err != nil {
		return model.PoolMeta{}, err
	}
	ownership, err := asAddress(values[0])
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("getOwnershipToken: %w", err)
	}

	if tokenCache != nil {
		for _, token := range tokens {
			if _, ok := tokenCache.Get(token); ok {
				continue
			}
			tokenMeta, err := FetchTokenMeta(ctx, chainClient, token, logger)
			if err != nil {
				logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
			}
			tokenCache.Set(token, tokenMeta)
		}
	}

	return model.PoolMeta{
		TokenA:         tokens[0].Hex(),
		TokenB:         tokens[1].Hex(),
		OwnershipToken: ownership.Hex(),
		FeeBps:         uint16(fee.Uint64()),
	}, nil
}

// FetchPoolReserves reads the pool's reserves at a block. Block zero reads
// the latest state.
func FetchPoolReserves(ctx context.Context, chainClient *chain.Client, pool common.Address, blockNumber uint64) (*big.Int, *big.Int, error) {
	if chainClient == nil {
		return nil, nil, fmt.Errorf("chain client is nil")
	}
	poolABI, err := PoolABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse pool abi: %w", err)
	}

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}
	values, err := callContract(ctx, chainClient, pool, poolABI, "getReserves", block)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("getReserves: want 2 values, got %d", len(values))
	}
	reserveA, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves: %w", err)
	}
	reserveB, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves: %w", err)
	}
	return reserveA, reserveB, nil
}

// callContract packs an eth_call to a view method, runs it at block (nil for
// latest) and unpacks the outputs.
func callContract(ctx context.Context, chainClient *chain.Client, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := chainClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// asBigInt widens any ABI integer value. The result never aliases value.
func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8, uint16, uint32, uint64:
		return new(big.Int).SetUint64(toUint64(v)), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func toUint64(value interface{}) uint64 {
	switch v := value.(type) {
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	default:
		return v.(uint64)
	}
}

func asUint8(value interface{}) (uint8, error) {
	n, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.BitLen() > 8 {
		return 0, fmt.Errorf("value %s does not fit in uint8", n)
	}
	return uint8(n.Uint64()), nil
}
