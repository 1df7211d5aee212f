package pool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenLink moves fungible value on behalf of the pool. The engine trusts its
// error signal: a nil error means the full amount moved.
type TokenLink interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error)
	TotalSupply(ctx context.Context, token common.Address) (*uint256.Int, error)
	// Transfer moves amount from the pool's own balance.
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	// TransferFrom spends spender's allowance on owner's balance.
	TransferFrom(ctx context.Context, token, spender, owner, to common.Address, amount *uint256.Int) error
	Mint(ctx context.Context, token, minter, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, token, minter, from common.Address, amount *uint256.Int) error
}

// Journal is implemented by links that can undo transfers made during a call
// which later fails. Begin opens a scope carried by the returned context;
// every successful Begin is closed by exactly one Revert or Release on that
// context.
type Journal interface {
	Begin(ctx context.Context) (context.Context, error)
	Revert(ctx context.Context)
	Release(ctx context.Context)
}

// EventSink receives events of committed calls, in commit order.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(event Event) { f(event) }
