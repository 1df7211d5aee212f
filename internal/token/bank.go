// Package token is an in-memory multi-token ledger with ERC-20 semantics.
// It backs local pools and simulations as their TokenLink.
package token

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownToken          = errors.New("unknown token")
	ErrTokenExists           = errors.New("token already deployed")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotMinter             = errors.New("caller is not the minter")
	ErrZeroAddress           = errors.New("zero address")
	ErrOverflow              = errors.New("balance overflow")
	// ErrHookReentry is returned to a hook that calls back into the bank
	// without the context it was given while a scope is open.
	ErrHookReentry = errors.New("token hook called back outside its scope")
)

// Meta describes a deployed token.
type Meta struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
	// Minter is the only account allowed to mint and burn.
	Minter common.Address
}

// Hook runs before every state change of a token. A non-nil error aborts the
// operation; hooks may also call back into other contracts with ctx.
type Hook func(ctx context.Context, op Op) error

// Op describes a pending token operation passed to hooks.
type Op struct {
	Kind   string
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

type state struct {
	meta       Meta
	supply     uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	hook       Hook
}

// Bank holds every token. It is safe for concurrent use. Journal scopes are
// exclusive: while one call chain has a scope open, mutations from other
// goroutines wait, so a revert never undoes someone else's transfer.
type Bank struct {
	// mu guards the maps; txMu is held by the outermost open scope or by a
	// single unscoped mutation.
	mu     sync.Mutex
	txMu   sync.Mutex
	tokens map[common.Address]*state
	// hooks counts hooks currently running.
	hooks atomic.Int32
}

type scopeKey struct{ bank *Bank }

// scope collects undo entries of one call; a released child hands its
// entries to the parent.
type scope struct {
	entries []func()
	parent  *scope
}

func NewBank() *Bank {
	return &Bank{tokens: make(map[common.Address]*state)}
}

// Deploy registers a new token with zero supply.
func (b *Bank) Deploy(meta Meta) error {
	if meta.Address == (common.Address{}) {
		return fmt.Errorf("deploy %s: %w", meta.Symbol, ErrZeroAddress)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tokens[meta.Address]; ok {
		return fmt.Errorf("deploy %s: %w", meta.Address.Hex(), ErrTokenExists)
	}
	b.tokens[meta.Address] = &state{
		meta:       meta,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
	return nil
}

// SetHook installs a hook on a token; nil removes it.
func (b *Bank) SetHook(token common.Address, hook Hook) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	st.hook = hook
	return nil
}

// Meta returns the metadata of a token.
func (b *Bank) Meta(token common.Address) (Meta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tokens[token]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return st.meta, nil
}

// Tokens lists deployed tokens ordered by address.
func (b *Bank) Tokens() []Meta {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Meta, 0, len(b.tokens))
	for _, st := range b.tokens {
		out = append(out, st.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}

func (b *Bank) BalanceOf(_ context.Context, token, account common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return st.balance(account).Clone(), nil
}

func (b *Bank) TotalSupply(_ context.Context, token common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return st.supply.Clone(), nil
}

func (b *Bank) Allowance(_ context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return st.allowance(owner, spender).Clone(), nil
}

// Approve sets spender's allowance over owner's balance.
func (b *Bank) Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("approve: %w", ErrZeroAddress)
	}
	return b.apply(ctx, Op{Kind: "approve", Token: token, From: owner, To: spender, Amount: amount}, func(st *state, sc *scope) error {
		setAllowance(sc, st, owner, spender, amount.Clone())
		return nil
	})
}

// Transfer moves amount from "from" to "to".
func (b *Bank) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	return b.apply(ctx, Op{Kind: "transfer", Token: token, From: from, To: to, Amount: amount}, func(st *state, sc *scope) error {
		return move(sc, st, from, to, amount)
	})
}

// TransferFrom spends spender's allowance to move owner's tokens.
func (b *Bank) TransferFrom(ctx context.Context, token, spender, owner, to common.Address, amount *uint256.Int) error {
	return b.apply(ctx, Op{Kind: "transfer_from", Token: token, From: owner, To: to, Amount: amount}, func(st *state, sc *scope) error {
		allowed := st.allowance(owner, spender)
		if allowed.Lt(amount) {
			return fmt.Errorf("%w: %s allows %s, need %s", ErrInsufficientAllowance, owner.Hex(), allowed.Dec(), amount.Dec())
		}
		if st.balance(owner).Lt(amount) {
			return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, owner.Hex(), st.balance(owner).Dec(), amount.Dec())
		}
		setAllowance(sc, st, owner, spender, new(uint256.Int).Sub(allowed, amount))
		return move(sc, st, owner, to, amount)
	})
}

// Mint creates amount for "to"; only the token's minter may call it.
func (b *Bank) Mint(ctx context.Context, token, minter, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", ErrZeroAddress)
	}
	return b.apply(ctx, Op{Kind: "mint", Token: token, To: to, Amount: amount}, func(st *state, sc *scope) error {
		if st.meta.Minter != minter {
			return fmt.Errorf("%w: %s", ErrNotMinter, minter.Hex())
		}
		supply, overflow := new(uint256.Int).AddOverflow(&st.supply, amount)
		if overflow {
			return ErrOverflow
		}
		balance := new(uint256.Int).Add(st.balance(to), amount)
		setSupply(sc, st, supply)
		setBalance(sc, st, to, balance)
		return nil
	})
}

// Burn destroys amount held by "from"; only the token's minter may call it.
func (b *Bank) Burn(ctx context.Context, token, minter, from common.Address, amount *uint256.Int) error {
	return b.apply(ctx, Op{Kind: "burn", Token: token, From: from, Amount: amount}, func(st *state, sc *scope) error {
		if st.meta.Minter != minter {
			return fmt.Errorf("%w: %s", ErrNotMinter, minter.Hex())
		}
		held := st.balance(from)
		if held.Lt(amount) {
			return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, from.Hex(), held.Dec(), amount.Dec())
		}
		setBalance(sc, st, from, new(uint256.Int).Sub(held, amount))
		setSupply(sc, st, new(uint256.Int).Sub(&st.supply, amount))
		return nil
	})
}

// Begin opens a journal scope. Nested scopes in the same call chain join
// the outer one.
func (b *Bank) Begin(ctx context.Context) (context.Context, error) {
	parent := b.scopeFrom(ctx)
	if parent == nil {
		if err := b.lockTx(); err != nil {
			return nil, err
		}
	}
	return context.WithValue(ctx, scopeKey{b}, &scope{parent: parent}), nil
}

// Revert undoes every change made within the scope carried by ctx.
func (b *Bank) Revert(ctx context.Context) {
	sc := b.scopeFrom(ctx)
	if sc == nil {
		return
	}
	b.mu.Lock()
	for i := len(sc.entries) - 1; i >= 0; i-- {
		sc.entries[i]()
	}
	sc.entries = nil
	b.mu.Unlock()
	if sc.parent == nil {
		b.txMu.Unlock()
	}
}

// Release keeps the changes made within the scope carried by ctx.
func (b *Bank) Release(ctx context.Context) {
	sc := b.scopeFrom(ctx)
	if sc == nil {
		return
	}
	if sc.parent != nil {
		sc.parent.entries = append(sc.parent.entries, sc.entries...)
		return
	}
	sc.entries = nil
	b.txMu.Unlock()
}

// lockTx takes txMu for work outside any scope. Waiting while a hook runs
// under someone's open scope could wait on that very hook, so it fails
// instead.
func (b *Bank) lockTx() error {
	if b.txMu.TryLock() {
		return nil
	}
	if b.hooks.Load() > 0 {
		return ErrHookReentry
	}
	b.txMu.Lock()
	return nil
}

func (b *Bank) scopeFrom(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeKey{b}).(*scope)
	return sc
}

func (b *Bank) apply(ctx context.Context, op Op, fn func(*state, *scope) error) error {
	if op.Amount == nil {
		return fmt.Errorf("%s: nil amount", op.Kind)
	}
	b.mu.Lock()
	st, ok := b.tokens[op.Token]
	var hook Hook
	if ok {
		hook = st.hook
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, op.Token.Hex())
	}

	if hook != nil {
		b.hooks.Add(1)
		err := hook(ctx, op)
		b.hooks.Add(-1)
		if err != nil {
			return err
		}
	}

	sc := b.scopeFrom(ctx)
	if sc == nil {
		if err := b.lockTx(); err != nil {
			return err
		}
		defer b.txMu.Unlock()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(st, sc)
}

func move(sc *scope, st *state, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer: %w", ErrZeroAddress)
	}
	held := st.balance(from)
	if held.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, from.Hex(), held.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	credited, overflow := new(uint256.Int).AddOverflow(st.balance(to), amount)
	if overflow {
		return ErrOverflow
	}
	setBalance(sc, st, from, new(uint256.Int).Sub(held, amount))
	setBalance(sc, st, to, credited)
	return nil
}

// The setters below record an undo entry when a journal scope is open.

func setBalance(sc *scope, st *state, account common.Address, value *uint256.Int) {
	if sc != nil {
		prev, had := st.balances[account]
		sc.entries = append(sc.entries, func() {
			if had {
				st.balances[account] = prev
			} else {
				delete(st.balances, account)
			}
		})
	}
	st.balances[account] = value
}

func setSupply(sc *scope, st *state, value *uint256.Int) {
	if sc != nil {
		prev := st.supply
		sc.entries = append(sc.entries, func() { st.supply = prev })
	}
	st.supply = *value
}

func setAllowance(sc *scope, st *state, owner, spender common.Address, value *uint256.Int) {
	spenders, ok := st.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		st.allowances[owner] = spenders
	}
	if sc != nil {
		prev, had := spenders[spender]
		sc.entries = append(sc.entries, func() {
			if had {
				spenders[spender] = prev
			} else {
				delete(spenders, spender)
			}
		})
	}
	spenders[spender] = value
}

func (st *state) balance(account common.Address) *uint256.Int {
	if v, ok := st.balances[account]; ok {
		return v
	}
	return new(uint256.Int)
}

func (st *state) allowance(owner, spender common.Address) *uint256.Int {
	if v, ok := st.allowances[owner][spender]; ok {
		return v
	}
	return new(uint256.Int)
}
