package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityPool/internal/chain"
	"liquidityPool/internal/model"
)

const erc20ABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// Pre-standard tokens return symbol and name as bytes32.
const erc20LegacyABIJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI       abi.ABI
	erc20LegacyABI abi.ABI
	erc20Once      sync.Once
	erc20Err       error
)

func erc20ABIs() (abi.ABI, abi.ABI, error) {
	erc20Once.Do(func() {
		if erc20ABI, erc20Err = abi.JSON(strings.NewReader(erc20ABIJSON)); erc20Err != nil {
			return
		}
		erc20LegacyABI, erc20Err = abi.JSON(strings.NewReader(erc20LegacyABIJSON))
	})
	return erc20ABI, erc20LegacyABI, erc20Err
}

// FetchTokenMeta reads decimals, symbol and name at the latest block.
// Decimals are required; symbol and name are best effort.
func FetchTokenMeta(ctx context.Context, chainClient *chain.Client, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if chainClient == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	std, legacy, err := erc20ABIs()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := callContract(ctx, chainClient, token, std, "decimals", nil)
	if err != nil {
		return meta, err
	}
	if meta.Decimals, err = asUint8(values[0]); err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}

	meta.Symbol = readText(ctx, chainClient, token, "symbol", std, legacy, logger)
	meta.Name = readText(ctx, chainClient, token, "name", std, legacy, logger)
	return meta, nil
}

// readText calls a string getter, retrying with the bytes32 form.
func readText(ctx context.Context, chainClient *chain.Client, token common.Address, method string, std, legacy abi.ABI, logger *zap.Logger) string {
	values, err := callContract(ctx, chainClient, token, std, method, nil)
	if err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err = callContract(ctx, chainClient, token, legacy, method, nil)
	if err == nil {
		if s, ok := bytes32ToString(values[0]); ok {
			return s
		}
	}
	logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
	return ""
}

// FetchTokenBalance reads owner's balance of token. A nil block reads the
// latest state.
func FetchTokenBalance(ctx context.Context, chainClient *chain.Client, token, owner common.Address, block *big.Int) (*big.Int, error) {
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	std, _, err := erc20ABIs()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callContract(ctx, chainClient, token, std, "balanceOf", block, owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
