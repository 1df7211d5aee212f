package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/viper"
)

// getStringMap reads key as a mapping. A config file gives a YAML mapping;
// flags and env vars give "k=v,k=v". Malformed pairs are errors.
func getStringMap(v *viper.Viper, key string) (map[string]string, error) {
	out := make(map[string]string)
	if !v.IsSet(key) {
		return out, nil
	}
	switch typed := v.Get(key).(type) {
	case map[string]string:
		for k, val := range typed {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range typed {
			out[k] = fmt.Sprint(val)
		}
	case string:
		for _, pair := range splitList(typed) {
			k, val, ok := strings.Cut(pair, "=")
			k, val = strings.TrimSpace(k), strings.TrimSpace(val)
			if !ok || k == "" || val == "" {
				return nil, fmt.Errorf("%s: malformed pair %q, want key=value", key, pair)
			}
			out[k] = val
		}
	default:
		return nil, fmt.Errorf("%s: unsupported value type %T", key, typed)
	}
	return out, nil
}

// getTopic0Map reads topic0 -> event name overrides. Keys must be 32-byte
// hex hashes and are lowercased.
func getTopic0Map(v *viper.Viper, key string) (map[string]string, error) {
	raw, err := getStringMap(v, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for topic, name := range raw {
		b, err := hexutil.Decode(strings.ToLower(topic))
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("%s: %q is not a 32-byte topic hash", key, topic)
		}
		out[hexutil.Encode(b)] = name
	}
	return out, nil
}

// getTokenDecimals reads token address -> decimals pins, keyed by checksum address.
func getTokenDecimals(v *viper.Viper, key string) (map[string]uint8, error) {
	raw, err := getStringMap(v, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint8, len(raw))
	for addr, val := range raw {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%s: invalid token address %q", key, addr)
		}
		d, err := strconv.ParseUint(val, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%s: decimals for %s: %w", key, addr, err)
		}
		out[common.HexToAddress(addr).Hex()] = uint8(d)
	}
	return out, nil
}
