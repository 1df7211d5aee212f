package dex

import (
	"context"

	"go.uber.org/zap"

	"liquidityPool/internal/chain"
	"liquidityPool/internal/model"
)

// Decoder turns a stored log into a typed event. Callers check CanDecode
// with the log's topic0 before calling Decode.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext carries what a Decoder may need beyond the log itself.
//
// Chain is optional. Without it, pool metadata must already be cached,
// typically from a PoolCreated log earlier in the same stream, and
// IncludeLiveMeta has no effect.
type DecodeContext struct {
	Context         context.Context
	Chain           *chain.Client
	PoolMetaCache   *PoolMetaCache
	TokenMetaCache  *TokenMetaCache
	Logger          *zap.Logger
	IncludeLiveMeta bool
}

func (c DecodeContext) context() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}
