package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command. RPCURL is only
// needed for pools whose PoolCreated log is not part of the input.
type DecodeConfig struct {
	RPCURL   string
	In       string
	Out      string
	Errors   string
	PGDSN    string
	LogLevel string
	// Topic0Map maps extra lowercase topic0 hashes to pool event names.
	Topic0Map       map[string]string
	IncludeLiveMeta bool
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":               "./data/typed_events.jsonl",
		"errors":            "./data/decode_errors.jsonl",
		"include-live-meta": false,
		"log-level":         "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	topic0Map, err := getTopic0Map(v, "topic0-map")
	if err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		RPCURL:          v.GetString("rpc"),
		In:              v.GetString("in"),
		Out:             v.GetString("out"),
		Errors:          v.GetString("errors"),
		PGDSN:           v.GetString("pg-dsn"),
		LogLevel:        v.GetString("log-level"),
		Topic0Map:       topic0Map,
		IncludeLiveMeta: v.GetBool("include-live-meta"),
	}
	if cfg.IncludeLiveMeta && cfg.RPCURL == "" {
		return DecodeConfig{}, fmt.Errorf("include-live-meta requires an rpc url")
	}
	return cfg, nil
}
