package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "tokenA", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "tokenB", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "ownershipToken", "type": "address"},
      {"indexed": false, "internalType": "uint16", "name": "feeBps", "type": "uint16"},
      {"indexed": false, "internalType": "address", "name": "caller", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "timestamp", "type": "uint64"}
    ],
    "name": "PoolCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "caller", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "tokenA", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "tokenB", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountA", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amountB", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "unitsMinted", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "reserveA", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "reserveB", "type": "uint256"},
      {"indexed": false, "internalType": "uint64", "name": "timestamp", "type": "uint64"}
    ],
    "name": "LiquidityAdded",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "caller", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "tokenA", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "tokenB", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountA", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amountB", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "unitsBurned", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "reserveA", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "reserveB", "type": "uint256"},
      {"indexed": false, "internalType": "uint64", "name": "timestamp", "type": "uint64"}
    ],
    "name": "LiquidityRemoved",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "caller", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "tokenIn", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "tokenOut", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountIn", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amountOut", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "reserveIn", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "reserveOut", "type": "uint256"},
      {"indexed": false, "internalType": "uint64", "name": "timestamp", "type": "uint64"}
    ],
    "name": "TokenSwapped",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint256", "name": "reserveA", "type": "uint256"},
      {"internalType": "uint256", "name": "reserveB", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getTokens",
    "outputs": [
      {"internalType": "address", "name": "tokenA", "type": "address"},
      {"internalType": "address", "name": "tokenB", "type": "address"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getFee",
    "outputs": [{"internalType": "uint16", "name": "", "type": "uint16"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getOwnershipToken",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	poolABI     abi.ABI
	poolABIOnce sync.Once
	poolABIErr  error
)

// PoolABI returns the parsed pool and factory ABI.
func PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABI, poolABIErr
}

// EventTopics returns the topic0 hashes of every pool event, keyed by name.
func EventTopics() (map[string]string, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		out[name] = strings.ToLower(event.ID.Hex())
	}
	return out, nil
}
