package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"liquidityPool/internal/dex"
)

// ParseAddresses turns emitter filter entries into addresses. Blank entries
// are skipped and repeats collapse to their first occurrence. The zero
// address never emits logs, so it is rejected.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(inputs))
	seen := make(map[common.Address]bool, len(inputs))
	for _, raw := range inputs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid address %q", raw)
		}
		addr := common.HexToAddress(raw)
		if addr == (common.Address{}) {
			return nil, fmt.Errorf("zero address in filter")
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

// ParseTopic0 turns topic filter entries into hashes. An entry is either a
// 32-byte hex hash or a pool event name such as TokenSwapped, matched
// without regard to case.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	var named map[string]string
	out := make([]common.Hash, 0, len(inputs))
	seen := make(map[common.Hash]bool, len(inputs))
	for _, raw := range inputs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		var topic common.Hash
		if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
			data, err := hexutil.Decode("0x" + raw[2:])
			if err != nil {
				return nil, fmt.Errorf("invalid topic0 %q: %w", raw, err)
			}
			if len(data) != common.HashLength {
				return nil, fmt.Errorf("invalid topic0 %q: want %d bytes, got %d", raw, common.HashLength, len(data))
			}
			topic = common.BytesToHash(data)
		} else {
			if named == nil {
				topics, err := dex.EventTopics()
				if err != nil {
					return nil, fmt.Errorf("pool event topics: %w", err)
				}
				named = make(map[string]string, len(topics))
				for name, hash := range topics {
					named[strings.ToLower(name)] = hash
				}
			}
			hash, ok := named[strings.ToLower(raw)]
			if !ok {
				return nil, fmt.Errorf("unknown event %q", raw)
			}
			topic = common.HexToHash(hash)
		}

		if !seen[topic] {
			seen[topic] = true
			out = append(out, topic)
		}
	}
	return out, nil
}
