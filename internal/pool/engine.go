// Package pool implements the engine of a two-asset constant-product pool.
//
// Each call is validated and priced against a ledger snapshot, committed to
// the ledger, and only then settled through the TokenLink. A failed
// settlement restores the ledger (and the link's journal when it has one),
// so a call is either fully applied or has no observable effect.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityPool/internal/amm"
	"liquidityPool/internal/ledger"
)

// Config fixes the identity of a pool. All fields are immutable after
// construction.
type Config struct {
	Address        common.Address
	TokenA         common.Address
	TokenB         common.Address
	OwnershipToken common.Address
	FeeBps         uint16
	// Clock stamps emitted events; defaults to time.Now.
	Clock func() time.Time
}

// Engine is the only writer of one pool's ledger.
type Engine struct {
	cfg    Config
	link   TokenLink
	sink   EventSink
	logger *zap.Logger

	// mu serializes calls; reentrant calls are caught before it is taken.
	mu sync.Mutex
	// settling is set while a call's transfers are in flight.
	settling atomic.Bool
	ledger   *ledger.Ledger
	view     atomic.Pointer[ledger.Snapshot]
}

// NewEngine builds an engine over an empty ledger.
func NewEngine(cfg Config, link TokenLink, sink EventSink, logger *zap.Logger) (*Engine, error) {
	if link == nil {
		return nil, fmt.Errorf("token link is nil")
	}
	if cfg.TokenA == cfg.TokenB {
		return nil, fmt.Errorf("tokenA and tokenB must differ")
	}
	zero := common.Address{}
	if cfg.TokenA == zero || cfg.TokenB == zero || cfg.OwnershipToken == zero || cfg.Address == zero {
		return nil, fmt.Errorf("pool, token and ownership token addresses are required")
	}
	if err := amm.ValidateFee(cfg.FeeBps); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:    cfg,
		link:   link,
		sink:   sink,
		logger: logger.With(zap.String("pool", cfg.Address.Hex())),
		ledger: ledger.New(),
	}
	e.publish()
	return e, nil
}

// AddLiquidity pulls amountA and amountB from caller and mints ownership units
// to it. minA and minB are optional floors (nil to skip).
func (e *Engine) AddLiquidity(ctx context.Context, caller common.Address, amountA, amountB, minA, minB *uint256.Int) (*uint256.Int, error) {
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if isZero(amountA) || isZero(amountB) {
		return nil, e.reject("add_liquidity", caller, newError(KindInvalidAmount, "amounts must be greater than zero"))
	}
	if (minA != nil && amountA.Lt(minA)) || (minB != nil && amountB.Lt(minB)) {
		return nil, e.reject("add_liquidity", caller, newError(KindSlippage, "deposit below minimum amounts"))
	}

	base := e.ledger.Snapshot()
	units, err := amm.MintUnits(amountA, amountB, &base.ReserveA, &base.ReserveB, &base.Supply)
	if err != nil {
		return nil, e.reject("add_liquidity", caller, fromMath(err))
	}
	if err := e.ledger.Deposit(base, amountA, amountB, units); err != nil {
		return nil, e.reject("add_liquidity", caller, newError(KindInvalidAmount, err.Error()))
	}

	err = e.settle(ctx, base, func(ctx context.Context) error {
		if err := e.link.TransferFrom(ctx, e.cfg.TokenA, e.cfg.Address, caller, e.cfg.Address, amountA); err != nil {
			return fmt.Errorf("pull tokenA: %w", err)
		}
		if err := e.link.TransferFrom(ctx, e.cfg.TokenB, e.cfg.Address, caller, e.cfg.Address, amountB); err != nil {
			return fmt.Errorf("pull tokenB: %w", err)
		}
		if err := e.link.Mint(ctx, e.cfg.OwnershipToken, e.cfg.Address, caller, units); err != nil {
			return fmt.Errorf("mint ownership units: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, e.reject("add_liquidity", caller, err)
	}

	after := e.publish()
	e.emit(LiquidityAdded{
		Pool:        e.cfg.Address,
		TokenA:      e.cfg.TokenA,
		TokenB:      e.cfg.TokenB,
		AmountA:     amountA.Clone(),
		AmountB:     amountB.Clone(),
		UnitsMinted: units.Clone(),
		ReserveA:    after.ReserveA.Clone(),
		ReserveB:    after.ReserveB.Clone(),
		Timestamp:   e.cfg.Clock(),
		Caller:      caller,
	})
	e.logger.Debug("liquidity added",
		zap.String("caller", caller.Hex()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
		zap.String("units", units.Dec()),
		zap.Uint64("version", after.Version),
	)
	return units, nil
}

// RemoveLiquidity burns units from caller and pays out its share of both
// reserves.
func (e *Engine) RemoveLiquidity(ctx context.Context, caller common.Address, units *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	if isZero(units) {
		return nil, nil, e.reject("remove_liquidity", caller, newError(KindInvalidAmount, "units must be greater than zero"))
	}
	base := e.ledger.Snapshot()
	if base.Supply.IsZero() {
		return nil, nil, e.reject("remove_liquidity", caller, newError(KindInvalidAmount, "no liquidity"))
	}
	held, err := e.link.BalanceOf(ctx, e.cfg.OwnershipToken, caller)
	if err != nil {
		return nil, nil, e.reject("remove_liquidity", caller, fmt.Errorf("ownership balance: %w", err))
	}
	if held.Lt(units) {
		return nil, nil, e.reject("remove_liquidity", caller, newError(KindInvalidAmount, "not enough liquidity tokens"))
	}

	outA, outB, err := amm.WithdrawalSplit(units, &base.ReserveA, &base.ReserveB, &base.Supply)
	if err != nil {
		return nil, nil, e.reject("remove_liquidity", caller, fromMath(err))
	}
	if err := e.ledger.Withdraw(base, outA, outB, units); err != nil {
		return nil, nil, e.reject("remove_liquidity", caller, newError(KindInvalidAmount, err.Error()))
	}

	err = e.settle(ctx, base, func(ctx context.Context) error {
		if err := e.link.Burn(ctx, e.cfg.OwnershipToken, e.cfg.Address, caller, units); err != nil {
			return fmt.Errorf("burn ownership units: %w", err)
		}
		if err := e.link.Transfer(ctx, e.cfg.TokenA, e.cfg.Address, caller, outA); err != nil {
			return fmt.Errorf("push tokenA: %w", err)
		}
		if err := e.link.Transfer(ctx, e.cfg.TokenB, e.cfg.Address, caller, outB); err != nil {
			return fmt.Errorf("push tokenB: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, e.reject("remove_liquidity", caller, err)
	}

	after := e.publish()
	e.emit(LiquidityRemoved{
		Pool:        e.cfg.Address,
		TokenA:      e.cfg.TokenA,
		TokenB:      e.cfg.TokenB,
		AmountA:     outA.Clone(),
		AmountB:     outB.Clone(),
		UnitsBurned: units.Clone(),
		ReserveA:    after.ReserveA.Clone(),
		ReserveB:    after.ReserveB.Clone(),
		Timestamp:   e.cfg.Clock(),
		Caller:      caller,
	})
	e.logger.Debug("liquidity removed",
		zap.String("caller", caller.Hex()),
		zap.String("units", units.Dec()),
		zap.String("amount_a", outA.Dec()),
		zap.String("amount_b", outB.Dec()),
		zap.Uint64("version", after.Version),
	)
	return outA, outB, nil
}

// Swap sells amountIn of tokenIn for the other asset. It fails with Slippage
// when the output would be below minAmountOut.
func (e *Engine) Swap(ctx context.Context, caller, tokenIn common.Address, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error) {
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if isZero(amountIn) {
		return nil, e.reject("swap", caller, newError(KindInvalidAmount, "amount in must be greater than zero"))
	}
	inIsA, tokenOut, err := e.route(tokenIn)
	if err != nil {
		return nil, e.reject("swap", caller, err)
	}

	base := e.ledger.Snapshot()
	reserveIn, reserveOut := &base.ReserveA, &base.ReserveB
	if !inIsA {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	amountOut, err := amm.SwapOutput(amountIn, reserveIn, reserveOut, e.cfg.FeeBps)
	if err != nil {
		return nil, e.reject("swap", caller, fromMath(err))
	}
	if minAmountOut != nil && amountOut.Lt(minAmountOut) {
		return nil, e.reject("swap", caller, newError(KindSlippage,
			fmt.Sprintf("output %s below minimum %s", amountOut.Dec(), minAmountOut.Dec())))
	}
	if err := e.ledger.Swap(base, inIsA, amountIn, amountOut); err != nil {
		return nil, e.reject("swap", caller, newError(KindInvalidAmount, err.Error()))
	}

	err = e.settle(ctx, base, func(ctx context.Context) error {
		if err := e.link.TransferFrom(ctx, tokenIn, e.cfg.Address, caller, e.cfg.Address, amountIn); err != nil {
			return fmt.Errorf("pull token in: %w", err)
		}
		if err := e.link.Transfer(ctx, tokenOut, e.cfg.Address, caller, amountOut); err != nil {
			return fmt.Errorf("push token out: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, e.reject("swap", caller, err)
	}

	after := e.publish()
	newIn, newOut := after.ReserveA.Clone(), after.ReserveB.Clone()
	if !inIsA {
		newIn, newOut = newOut, newIn
	}
	e.emit(TokenSwapped{
		Pool:       e.cfg.Address,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   amountIn.Clone(),
		AmountOut:  amountOut.Clone(),
		ReserveIn:  newIn,
		ReserveOut: newOut,
		Timestamp:  e.cfg.Clock(),
		Caller:     caller,
	})
	e.logger.Debug("token swapped",
		zap.String("caller", caller.Hex()),
		zap.String("token_in", tokenIn.Hex()),
		zap.String("amount_in", amountIn.Dec()),
		zap.String("amount_out", amountOut.Dec()),
		zap.Uint64("version", after.Version),
	)
	return amountOut, nil
}

// QuoteSwap previews Swap against the last committed reserves without
// touching state.
func (e *Engine) QuoteSwap(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if isZero(amountIn) {
		return nil, newError(KindInvalidAmount, "amount in must be greater than zero")
	}
	inIsA, _, err := e.route(tokenIn)
	if err != nil {
		return nil, err
	}
	snap := e.view.Load()
	reserveIn, reserveOut := &snap.ReserveA, &snap.ReserveB
	if !inIsA {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	out, err := amm.SwapOutput(amountIn, reserveIn, reserveOut, e.cfg.FeeBps)
	if err != nil {
		return nil, fromMath(err)
	}
	return out, nil
}

// GetReserves returns the reserves as of the last committed call.
func (e *Engine) GetReserves() (*uint256.Int, *uint256.Int) {
	snap := e.view.Load()
	return snap.ReserveA.Clone(), snap.ReserveB.Clone()
}

// OwnershipSupply returns the outstanding ownership units.
func (e *Engine) OwnershipSupply() *uint256.Int {
	snap := e.view.Load()
	return snap.Supply.Clone()
}

// Snapshot returns the last committed ledger state.
func (e *Engine) Snapshot() ledger.Snapshot {
	return *e.view.Load()
}

// GetTokens returns the pool's asset pair in creation order.
func (e *Engine) GetTokens() (common.Address, common.Address) {
	return e.cfg.TokenA, e.cfg.TokenB
}

// GetFee returns the swap fee in basis points.
func (e *Engine) GetFee() uint16 {
	return e.cfg.FeeBps
}

// GetOwnershipToken returns the token that represents pool shares.
func (e *Engine) GetOwnershipToken() common.Address {
	return e.cfg.OwnershipToken
}

// Address returns the pool's own account, which holds the reserves.
func (e *Engine) Address() common.Address {
	return e.cfg.Address
}

// Audit checks that the ledger matches what the token link actually holds.
func (e *Engine) Audit(ctx context.Context) error {
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	snap := e.ledger.Snapshot()
	checks := []struct {
		name  string
		want  *uint256.Int
		fetch func() (*uint256.Int, error)
	}{
		{"reserveA", &snap.ReserveA, func() (*uint256.Int, error) {
			return e.link.BalanceOf(ctx, e.cfg.TokenA, e.cfg.Address)
		}},
		{"reserveB", &snap.ReserveB, func() (*uint256.Int, error) {
			return e.link.BalanceOf(ctx, e.cfg.TokenB, e.cfg.Address)
		}},
		{"ownership supply", &snap.Supply, func() (*uint256.Int, error) {
			return e.link.TotalSupply(ctx, e.cfg.OwnershipToken)
		}},
	}
	for _, check := range checks {
		got, err := check.fetch()
		if err != nil {
			return fmt.Errorf("audit %s: %w", check.name, err)
		}
		if !got.Eq(check.want) {
			return fmt.Errorf("audit %s: ledger %s, held %s", check.name, check.want.Dec(), got.Dec())
		}
	}
	if snap.Supply.IsZero() != (snap.ReserveA.IsZero() && snap.ReserveB.IsZero()) {
		return fmt.Errorf("audit: supply %s with reserves (%s, %s)", snap.Supply.Dec(), snap.ReserveA.Dec(), snap.ReserveB.Dec())
	}
	return nil
}

// route resolves the output side once per swap.
func (e *Engine) route(tokenIn common.Address) (bool, common.Address, error) {
	switch tokenIn {
	case e.cfg.TokenA:
		return true, e.cfg.TokenB, nil
	case e.cfg.TokenB:
		return false, e.cfg.TokenA, nil
	default:
		return false, common.Address{}, newError(KindInvalidTokenAddress, fmt.Sprintf("token %s is not in pool", tokenIn.Hex()))
	}
}

// settle runs the external transfers of a call whose ledger mutation is
// already applied. On failure both the link journal and the ledger go back
// to base.
func (e *Engine) settle(ctx context.Context, base ledger.Snapshot, transfers func(context.Context) error) error {
	journal, ok := e.link.(Journal)
	if ok {
		scoped, err := journal.Begin(ctx)
		if err != nil {
			e.ledger.Restore(base)
			e.publish()
			return fmt.Errorf("open token journal: %w", err)
		}
		ctx = scoped
	}
	e.settling.Store(true)
	err := transfers(ctx)
	e.settling.Store(false)
	if err != nil {
		if ok {
			journal.Revert(ctx)
		}
		e.ledger.Restore(base)
		e.publish()
		return err
	}
	if ok {
		journal.Release(ctx)
	}
	return nil
}

func (e *Engine) publish() ledger.Snapshot {
	snap := e.ledger.Snapshot()
	e.view.Store(&snap)
	return snap
}

func (e *Engine) emit(event Event) {
	if e.sink != nil {
		e.sink.Emit(event)
	}
}

func (e *Engine) reject(op string, caller common.Address, err error) error {
	e.logger.Debug("call rejected",
		zap.String("op", op),
		zap.String("caller", caller.Hex()),
		zap.String("kind", KindOf(err).String()),
		zap.Error(err),
	)
	return err
}

type callFrameKey struct{}

type callFrame struct {
	engine *Engine
	parent *callFrame
}

// enter serializes calls on this pool. A call reaching the pool through the
// context of one of its own in-flight calls is rejected instead of
// deadlocking, and so is any call arriving while transfers are in flight:
// a token callback that dropped the caller's context cannot be told apart
// from another goroutine.
func (e *Engine) enter(ctx context.Context) (context.Context, func(), error) {
	parent, _ := ctx.Value(callFrameKey{}).(*callFrame)
	for frame := parent; frame != nil; frame = frame.parent {
		if frame.engine == e {
			return nil, nil, newError(KindReentrancy, "pool call already in progress")
		}
	}
	if !e.mu.TryLock() {
		if e.settling.Load() {
			return nil, nil, newError(KindReentrancy, "pool is settling another call")
		}
		e.mu.Lock()
	}
	ctx = context.WithValue(ctx, callFrameKey{}, &callFrame{engine: e, parent: parent})
	return ctx, e.mu.Unlock, nil
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}
