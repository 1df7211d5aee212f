package simulate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityPool/internal/dex"
	"liquidityPool/internal/factory"
	"liquidityPool/internal/model"
	"liquidityPool/internal/pool"
	"liquidityPool/internal/storage"
	"liquidityPool/internal/token"
)

// ErrExpectation is returned when at least one step did not match its
// expected outcome. The report is still complete.
var ErrExpectation = errors.New("scenario expectations failed")

// Options configures a run. A nil Sink discards logs.
type Options struct {
	Sink   storage.Storage
	Logger *zap.Logger
}

// StepResult records the outcome of one step.
type StepResult struct {
	Index       int    `json:"index"`
	Action      string `json:"action"`
	Pool        string `json:"pool"`
	Caller      string `json:"caller,omitempty"`
	BlockNumber uint64 `json:"block_number"`
	Units       string `json:"units,omitempty"`
	AmountA     string `json:"amount_a,omitempty"`
	AmountB     string `json:"amount_b,omitempty"`
	AmountOut   string `json:"amount_out,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Mismatch    string `json:"mismatch,omitempty"`
}

// PoolState is a pool's committed state at the end of a run.
type PoolState struct {
	ID             string `json:"id"`
	Address        string `json:"address"`
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	OwnershipToken string `json:"ownership_token"`
	FeeBps         uint16 `json:"fee_bps"`
	ReserveA       string `json:"reserve_a"`
	ReserveB       string `json:"reserve_b"`
	Supply         string `json:"supply"`
}

// Report summarizes a run.
type Report struct {
	ChainID  uint64       `json:"chain_id"`
	Factory  string       `json:"factory"`
	Blocks   uint64       `json:"blocks"`
	Logs     int          `json:"logs"`
	Failures int          `json:"failures"`
	Steps    []StepResult `json:"steps"`
	Pools    []PoolState  `json:"pools"`
	// TokenDecimals is keyed by token address and has the shape the
	// aggregate command takes as token-decimals.
	TokenDecimals map[string]uint8 `json:"token_decimals"`
}

type runner struct {
	sc      *Scenario
	sink    storage.Storage
	logger  *zap.Logger
	bank    *token.Bank
	factory *factory.Factory
	pools   map[string]*pool.Engine

	mu      sync.Mutex
	pending []pool.Event

	block   uint64
	now     time.Time
	factAdr common.Address
	logs    int
}

// TreasuryAddress mints scenario balances; it is the minter of every asset
// token.
var TreasuryAddress = deriveAddress("treasury", "mint")

// Run executes a scenario against fresh pools. The returned error is
// ErrExpectation (wrapped) when steps mismatched, or a setup or audit error.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &runner{
		sc:      sc,
		sink:    opts.Sink,
		logger:  logger,
		bank:    token.NewBank(),
		pools:   make(map[string]*pool.Engine),
		now:     sc.StartTime,
		factAdr: FactoryAddress(sc.Factory),
	}
	r.factory = factory.NewFactory(factory.Config{
		Address: r.factAdr,
		Clock:   r.clock,
	}, r.bank, r.bank, pool.EventSinkFunc(r.collect), logger)

	if err := r.setup(ctx); err != nil {
		return nil, err
	}

	report := &Report{ChainID: sc.ChainID, Factory: r.factAdr.Hex()}
	for i, step := range sc.Steps {
		res := r.runStep(ctx, i, step)
		if err := r.flush(); err != nil {
			return nil, err
		}
		if res.Mismatch != "" {
			report.Failures++
			logger.Warn("step mismatch", zap.Int("step", i), zap.String("action", step.Action), zap.String("mismatch", res.Mismatch))
		}
		report.Steps = append(report.Steps, res)
	}

	for _, ps := range sc.Pools {
		engine := r.pools[ps.ID]
		if err := engine.Audit(ctx); err != nil {
			return nil, fmt.Errorf("audit pool %s: %w", ps.ID, err)
		}
		reserveA, reserveB := engine.GetReserves()
		tokenA, tokenB := engine.GetTokens()
		report.Pools = append(report.Pools, PoolState{
			ID:             ps.ID,
			Address:        engine.Address().Hex(),
			TokenA:         tokenA.Hex(),
			TokenB:         tokenB.Hex(),
			OwnershipToken: engine.GetOwnershipToken().Hex(),
			FeeBps:         engine.GetFee(),
			ReserveA:       reserveA.Dec(),
			ReserveB:       reserveB.Dec(),
			Supply:         engine.OwnershipSupply().Dec(),
		})
	}
	report.Blocks = r.block
	report.Logs = r.logs
	report.TokenDecimals = make(map[string]uint8, len(sc.Tokens))
	for addr, decimals := range TokenDecimals(sc) {
		report.TokenDecimals[addr.Hex()] = decimals
	}

	logger.Info("scenario complete",
		zap.Int("steps", len(report.Steps)),
		zap.Int("pools", len(report.Pools)),
		zap.Int("logs", report.Logs),
		zap.Int("failures", report.Failures),
	)
	if report.Failures > 0 {
		return report, fmt.Errorf("%w: %d of %d steps", ErrExpectation, report.Failures, len(report.Steps))
	}
	return report, nil
}

// TokenDecimals returns the decimals declared for every scenario token.
func TokenDecimals(sc *Scenario) map[common.Address]uint8 {
	out := make(map[common.Address]uint8, len(sc.Tokens))
	for _, tok := range sc.Tokens {
		out[TokenAddress(tok.Symbol)] = tok.Decimals
	}
	return out
}

func (r *runner) setup(ctx context.Context) error {
	for _, tok := range r.sc.Tokens {
		err := r.bank.Deploy(token.Meta{
			Address:  TokenAddress(tok.Symbol),
			Symbol:   tok.Symbol,
			Name:     tok.Name,
			Decimals: tok.Decimals,
			Minter:   TreasuryAddress,
		})
		if err != nil {
			return fmt.Errorf("deploy token %s: %w", tok.Symbol, err)
		}
	}

	names := make([]string, 0, len(r.sc.Accounts))
	for name := range r.sc.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for symbol, amount := range r.sc.Accounts[name] {
			if err := r.bank.Mint(ctx, TokenAddress(symbol), TreasuryAddress, AccountAddress(name), amount.Int()); err != nil {
				return fmt.Errorf("fund %s with %s: %w", name, symbol, err)
			}
		}
	}

	for _, ps := range r.sc.Pools {
		r.nextBlock()
		creator := AccountAddress(ps.Creator)
		engine, err := r.factory.CreatePool(ctx, creator, TokenAddress(ps.TokenA), TokenAddress(ps.TokenB), ps.FeeBps)
		if err != nil {
			return fmt.Errorf("create pool %s: %w", ps.ID, err)
		}
		r.pools[ps.ID] = engine
		if err := r.flush(); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) runStep(ctx context.Context, index int, step Step) StepResult {
	engine := r.pools[step.Pool]
	caller := AccountAddress(step.Caller)
	res := StepResult{Index: index, Action: step.Action, Pool: step.Pool, Caller: step.Caller}

	if step.Action != ActionQuote {
		r.nextBlock()
	}
	res.BlockNumber = r.block

	var err error
	switch step.Action {
	case ActionAddLiquidity:
		tokenA, tokenB := engine.GetTokens()
		if !step.SkipApprove {
			r.approve(ctx, tokenA, caller, engine.Address(), step.AmountA.Int())
			r.approve(ctx, tokenB, caller, engine.Address(), step.AmountB.Int())
		}
		var units *uint256.Int
		units, err = engine.AddLiquidity(ctx, caller, step.AmountA.Int(), step.AmountB.Int(), optional(step.MinA), optional(step.MinB))
		if err == nil {
			res.Units = units.Dec()
		}
	case ActionRemoveLiquidity:
		var outA, outB *uint256.Int
		outA, outB, err = engine.RemoveLiquidity(ctx, caller, step.Units.Int())
		if err == nil {
			res.AmountA, res.AmountB = outA.Dec(), outB.Dec()
		}
	case ActionSwap:
		tokenIn := TokenAddress(step.TokenIn)
		if !step.SkipApprove {
			r.approve(ctx, tokenIn, caller, engine.Address(), step.AmountIn.Int())
		}
		var out *uint256.Int
		out, err = engine.Swap(ctx, caller, tokenIn, step.AmountIn.Int(), optional(step.MinOut))
		if err == nil {
			res.AmountOut = out.Dec()
		}
	case ActionQuote:
		var out *uint256.Int
		out, err = engine.QuoteSwap(TokenAddress(step.TokenIn), step.AmountIn.Int())
		if err == nil {
			res.AmountOut = out.Dec()
		}
	}

	if err != nil {
		res.Error = err.Error()
		if kind := pool.KindOf(err); kind != pool.KindUnknown {
			res.ErrorKind = kind.String()
		}
	}
	res.Mismatch = mismatch(step, res, err)
	return res
}

// approve grants the pool exactly the amount it will pull. Tokens the bank
// does not know are left to fail inside the pool call.
func (r *runner) approve(ctx context.Context, tok, owner, spender common.Address, amount *uint256.Int) {
	if err := r.bank.Approve(ctx, tok, owner, spender, amount); err != nil {
		r.logger.Debug("approve skipped", zap.String("token", tok.Hex()), zap.Error(err))
	}
}

func mismatch(step Step, res StepResult, err error) string {
	if step.ExpectError != "" {
		if err == nil {
			return fmt.Sprintf("expected %s, call succeeded", step.ExpectError)
		}
		if step.ExpectError != ExpectAnyError && res.ErrorKind != step.ExpectError {
			return fmt.Sprintf("expected %s, got %v", step.ExpectError, err)
		}
		return ""
	}
	if err != nil {
		return fmt.Sprintf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		want Amount
		got  string
	}{
		{"units", step.ExpectUnits, res.Units},
		{"amount_a", step.ExpectA, res.AmountA},
		{"amount_b", step.ExpectB, res.AmountB},
		{"amount_out", step.ExpectOut, res.AmountOut},
	}
	for _, c := range checks {
		if c.want.IsSet() && c.want.String() != c.got {
			return fmt.Sprintf("%s: want %s, got %s", c.name, c.want.String(), c.got)
		}
	}
	return ""
}

func optional(a Amount) *uint256.Int {
	if !a.IsSet() {
		return nil
	}
	return a.Int()
}

func (r *runner) clock() time.Time {
	return r.now
}

func (r *runner) nextBlock() {
	r.block++
	r.now = r.sc.StartTime.Add(time.Duration(r.block) * r.sc.BlockTime)
}

func (r *runner) collect(ev pool.Event) {
	r.mu.Lock()
	r.pending = append(r.pending, ev)
	r.mu.Unlock()
}

// flush encodes the events of the current block as one transaction's logs.
func (r *runner) flush() error {
	r.mu.Lock()
	events := r.pending
	r.pending = nil
	r.mu.Unlock()
	if len(events) == 0 {
		return nil
	}

	records := make([]model.LogRecord, 0, len(events))
	for i, ev := range events {
		pos := dex.LogPosition{
			ChainID:     r.sc.ChainID,
			BlockNumber: r.block,
			BlockHash:   blockHash(r.sc.ChainID, r.block),
			TxHash:      txHash(r.sc.ChainID, r.block),
			LogIndex:    uint64(i),
		}
		if ev.EventName() == pool.EventPoolCreated {
			pos.Emitter = r.factAdr
		}
		record, err := dex.EncodeEvent(ev, pos)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ev.EventName(), err)
		}
		records = append(records, record)
	}
	r.logs += len(records)
	if r.sink == nil {
		return nil
	}
	if err := r.sink.PutLogBatch(records); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	return nil
}

func blockHash(chainID, block uint64) common.Hash {
	return crypto.Keccak256Hash([]byte("block"), uint64Bytes(chainID), uint64Bytes(block))
}

func txHash(chainID, block uint64) common.Hash {
	return crypto.Keccak256Hash([]byte("tx"), uint64Bytes(chainID), uint64Bytes(block))
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}
