package pool

import (
	"errors"
	"fmt"

	"liquidityPool/internal/amm"
)

// Kind classifies an engine failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidAmount
	KindInvalidTokenRatio
	KindInvalidTokenAddress
	KindSlippage
	KindReentrancy
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "InvalidAmount"
	case KindInvalidTokenRatio:
		return "InvalidTokenRatio"
	case KindInvalidTokenAddress:
		return "InvalidTokenAddress"
	case KindSlippage:
		return "Slippage"
	case KindReentrancy:
		return "Reentrancy"
	default:
		return "Unknown"
	}
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k := KindInvalidAmount; k <= KindReentrancy; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown error kind: %s", name)
}

// Error is a rejected engine call. Reason qualifies ambiguous kinds, e.g.
// InvalidAmount("not enough liquidity tokens").
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s(%q)", e.Kind, e.Reason)
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrInvalidTokenRatio   = &Error{Kind: KindInvalidTokenRatio}
	ErrInvalidTokenAddress = &Error{Kind: KindInvalidTokenAddress}
	ErrSlippage            = &Error{Kind: KindSlippage}
	ErrReentrancy          = &Error{Kind: KindReentrancy}
)

// KindOf returns the kind carried by err, or KindUnknown for upstream and
// infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// fromMath maps validator errors onto engine kinds.
func fromMath(err error) error {
	switch {
	case errors.Is(err, amm.ErrRatioMismatch):
		return newError(KindInvalidTokenRatio, err.Error())
	case errors.Is(err, amm.ErrZeroAmount),
		errors.Is(err, amm.ErrOverflow),
		errors.Is(err, amm.ErrNoLiquidity),
		errors.Is(err, amm.ErrZeroUnits),
		errors.Is(err, amm.ErrZeroOutput),
		errors.Is(err, amm.ErrExceedsSupply):
		return newError(KindInvalidAmount, err.Error())
	default:
		return err
	}
}
