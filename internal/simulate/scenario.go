// Package simulate drives local pools from a YAML scenario and records the
// events they emit as chain-shaped logs.
package simulate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"liquidityPool/internal/pool"
)

const (
	ActionAddLiquidity    = "add_liquidity"
	ActionRemoveLiquidity = "remove_liquidity"
	ActionSwap            = "swap"
	ActionQuote           = "quote"

	// ExpectAnyError accepts any failure, including token-level errors that
	// carry no pool error kind.
	ExpectAnyError = "any"
)

// Amount is a non-negative 256-bit integer written as a YAML number or a
// decimal string.
type Amount struct {
	v *uint256.Int
}

func NewAmount(v uint64) Amount {
	return Amount{v: uint256.NewInt(v)}
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", node.Line)
	}
	v, err := uint256.FromDecimal(strings.ReplaceAll(node.Value, "_", ""))
	if err != nil {
		return fmt.Errorf("line %d: amount %q: %w", node.Line, node.Value, err)
	}
	a.v = v
	return nil
}

// IsSet reports whether the amount was present in the scenario.
func (a Amount) IsSet() bool { return a.v != nil }

// Int returns a copy of the value, or zero when unset.
func (a Amount) Int() *uint256.Int {
	if a.v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(a.v)
}

func (a Amount) String() string {
	if a.v == nil {
		return ""
	}
	return a.v.Dec()
}

// Scenario is a complete simulation input.
type Scenario struct {
	ChainID   uint64                       `yaml:"chain_id"`
	StartTime time.Time                    `yaml:"start_time"`
	BlockTime time.Duration                `yaml:"block_time"`
	Factory   string                       `yaml:"factory"`
	Tokens    []TokenSpec                  `yaml:"tokens"`
	Accounts  map[string]map[string]Amount `yaml:"accounts"`
	Pools     []PoolSpec                   `yaml:"pools"`
	Steps     []Step                       `yaml:"steps"`
}

// TokenSpec deploys one asset token.
type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// PoolSpec creates one pool through the factory.
type PoolSpec struct {
	ID      string `yaml:"id"`
	TokenA  string `yaml:"token_a"`
	TokenB  string `yaml:"token_b"`
	FeeBps  uint16 `yaml:"fee_bps"`
	Creator string `yaml:"creator"`
}

// Step is one pool call. Fields irrelevant to the action are ignored.
type Step struct {
	Action      string `yaml:"action"`
	Pool        string `yaml:"pool"`
	Caller      string `yaml:"caller"`
	AmountA     Amount `yaml:"amount_a"`
	AmountB     Amount `yaml:"amount_b"`
	MinA        Amount `yaml:"min_a"`
	MinB        Amount `yaml:"min_b"`
	Units       Amount `yaml:"units"`
	TokenIn     string `yaml:"token_in"`
	AmountIn    Amount `yaml:"amount_in"`
	MinOut      Amount `yaml:"min_out"`
	SkipApprove bool   `yaml:"skip_approve"`

	ExpectError string `yaml:"expect_error"`
	ExpectUnits Amount `yaml:"expect_units"`
	ExpectA     Amount `yaml:"expect_a"`
	ExpectB     Amount `yaml:"expect_b"`
	ExpectOut   Amount `yaml:"expect_out"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(bytes.NewReader(data))
}

// ParseScenario decodes and validates a scenario. Unknown keys are errors.
func ParseScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse scenario: empty document")
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.ChainID == 0 {
		sc.ChainID = 31337
	}
	if sc.StartTime.IsZero() {
		sc.StartTime = time.Unix(1700000000, 0).UTC()
	}
	if sc.BlockTime <= 0 {
		sc.BlockTime = 12 * time.Second
	}
	if sc.Factory == "" {
		sc.Factory = "factory"
	}
	for i := range sc.Tokens {
		if sc.Tokens[i].Name == "" {
			sc.Tokens[i].Name = sc.Tokens[i].Symbol
		}
	}
}

// Validate checks that every reference in the scenario resolves.
func (sc *Scenario) Validate() error {
	tokens := make(map[string]struct{}, len(sc.Tokens))
	for _, tok := range sc.Tokens {
		if tok.Symbol == "" {
			return fmt.Errorf("token symbol is required")
		}
		if _, dup := tokens[tok.Symbol]; dup {
			return fmt.Errorf("duplicate token %s", tok.Symbol)
		}
		tokens[tok.Symbol] = struct{}{}
	}

	for account, balances := range sc.Accounts {
		for symbol := range balances {
			if _, ok := tokens[symbol]; !ok {
				return fmt.Errorf("account %s: unknown token %s", account, symbol)
			}
		}
	}

	pools := make(map[string]PoolSpec, len(sc.Pools))
	for _, p := range sc.Pools {
		if p.ID == "" {
			return fmt.Errorf("pool id is required")
		}
		if _, dup := pools[p.ID]; dup {
			return fmt.Errorf("duplicate pool %s", p.ID)
		}
		for _, symbol := range []string{p.TokenA, p.TokenB} {
			if _, ok := tokens[symbol]; !ok {
				return fmt.Errorf("pool %s: unknown token %q", p.ID, symbol)
			}
		}
		pools[p.ID] = p
	}

	for i, step := range sc.Steps {
		p, ok := pools[step.Pool]
		if !ok {
			return fmt.Errorf("step %d: unknown pool %q", i, step.Pool)
		}
		if step.Caller == "" && step.Action != ActionQuote {
			return fmt.Errorf("step %d: caller is required", i)
		}
		if step.ExpectError != "" && step.ExpectError != ExpectAnyError {
			if _, err := pool.ParseKind(step.ExpectError); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
		switch step.Action {
		case ActionAddLiquidity:
			if !step.AmountA.IsSet() || !step.AmountB.IsSet() {
				return fmt.Errorf("step %d: amount_a and amount_b are required", i)
			}
		case ActionRemoveLiquidity:
			if !step.Units.IsSet() {
				return fmt.Errorf("step %d: units is required", i)
			}
		case ActionSwap, ActionQuote:
			if !step.AmountIn.IsSet() {
				return fmt.Errorf("step %d: amount_in is required", i)
			}
			// An unknown token_in is allowed so scenarios can assert
			// InvalidTokenAddress; it must still be declared or match the pool.
			if step.TokenIn != p.TokenA && step.TokenIn != p.TokenB {
				if _, ok := tokens[step.TokenIn]; !ok {
					return fmt.Errorf("step %d: unknown token_in %q", i, step.TokenIn)
				}
			}
		default:
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
	}
	return nil
}

// AccountAddress derives the address used for a named account.
func AccountAddress(name string) common.Address {
	return deriveAddress("account", name)
}

// TokenAddress derives the address used for a token symbol.
func TokenAddress(symbol string) common.Address {
	return deriveAddress("token", symbol)
}

// FactoryAddress derives the address used for a named factory.
func FactoryAddress(name string) common.Address {
	return deriveAddress("factory", name)
}

func deriveAddress(kind, name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(kind + ":" + name))[12:])
}
