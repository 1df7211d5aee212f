package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario string
	Out      string
	TypedOut string
	Report   string
	LogLevel string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":       "./data/logs.jsonl",
		"log-level": "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Scenario: v.GetString("scenario"),
		Out:      v.GetString("out"),
		TypedOut: v.GetString("typed-out"),
		Report:   v.GetString("report"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.Scenario == "" {
		return SimulateConfig{}, fmt.Errorf("scenario path is required")
	}
	return cfg, nil
}
