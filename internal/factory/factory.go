// Package factory creates pools and keeps the registry of deployed pools.
package factory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityPool/internal/amm"
	"liquidityPool/internal/pool"
	"liquidityPool/internal/token"
)

var (
	ErrPoolExists   = errors.New("pool already exists for pair")
	ErrPoolNotFound = errors.New("pool not found")
	ErrSameToken    = errors.New("cannot create pool with same token")
	ErrZeroToken    = errors.New("token address is zero")
)

// Deployer deploys the ownership token of a new pool.
type Deployer interface {
	Deploy(meta token.Meta) error
}

// Config controls pool creation.
type Config struct {
	// Address is the factory identity mixed into derived pool addresses.
	Address common.Address
	Clock   func() time.Time
}

// Factory is safe for concurrent use. Pools it returns serialize their own
// calls, so distinct pools can be driven in parallel.
type Factory struct {
	cfg      Config
	link     pool.TokenLink
	deployer Deployer
	sink     pool.EventSink
	logger   *zap.Logger

	mu    sync.RWMutex
	pools map[common.Address]*pool.Engine
	pairs map[[2]common.Address]common.Address
	order []common.Address
}

func NewFactory(cfg Config, link pool.TokenLink, deployer Deployer, sink pool.EventSink, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Factory{
		cfg:      cfg,
		link:     link,
		deployer: deployer,
		sink:     sink,
		logger:   logger,
		pools:    make(map[common.Address]*pool.Engine),
		pairs:    make(map[[2]common.Address]common.Address),
	}
}

// CreatePool deploys a pool for (tokenA, tokenB) with a fixed fee and emits
// PoolCreated. The pair is unique regardless of order.
func (f *Factory) CreatePool(ctx context.Context, caller, tokenA, tokenB common.Address, feeBps uint16) (*pool.Engine, error) {
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return nil, ErrZeroToken
	}
	if tokenA == tokenB {
		return nil, ErrSameToken
	}
	if err := amm.ValidateFee(feeBps); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := pairKey(tokenA, tokenB)

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.pairs[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolExists, existing.Hex())
	}

	address := PoolAddress(f.cfg.Address, tokenA, tokenB, feeBps)
	share := OwnershipTokenAddress(address)
	engine, err := pool.NewEngine(pool.Config{
		Address:        address,
		TokenA:         tokenA,
		TokenB:         tokenB,
		OwnershipToken: share,
		FeeBps:         feeBps,
		Clock:          f.cfg.Clock,
	}, f.link, f.sink, f.logger)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	// Deploying is the only lasting side effect; nothing may fail after it.
	if f.deployer != nil {
		err := f.deployer.Deploy(token.Meta{
			Address:  share,
			Symbol:   "POOL-LP",
			Name:     "Pool ownership " + address.Hex(),
			Decimals: 18,
			Minter:   address,
		})
		if err != nil {
			return nil, fmt.Errorf("deploy ownership token: %w", err)
		}
	}

	f.pools[address] = engine
	f.pairs[key] = address
	f.order = append(f.order, address)

	if f.sink != nil {
		f.sink.Emit(pool.PoolCreated{
			Pool:           address,
			TokenA:         tokenA,
			TokenB:         tokenB,
			OwnershipToken: share,
			FeeBps:         feeBps,
			Timestamp:      f.cfg.Clock(),
			Caller:         caller,
		})
	}

	f.logger.Info("pool created",
		zap.String("pool", address.Hex()),
		zap.String("token_a", tokenA.Hex()),
		zap.String("token_b", tokenB.Hex()),
		zap.String("ownership_token", share.Hex()),
		zap.Uint16("fee_bps", feeBps),
	)
	return engine, nil
}

// Pool returns the pool deployed at address.
func (f *Factory) Pool(address common.Address) (*pool.Engine, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	engine, ok := f.pools[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, address.Hex())
	}
	return engine, nil
}

// PoolFor returns the pool of a pair in either order.
func (f *Factory) PoolFor(tokenA, tokenB common.Address) (*pool.Engine, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	address, ok := f.pairs[pairKey(tokenA, tokenB)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, tokenA.Hex(), tokenB.Hex())
	}
	return f.pools[address], nil
}

// Pools lists pools in creation order.
func (f *Factory) Pools() []*pool.Engine {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*pool.Engine, 0, len(f.order))
	for _, address := range f.order {
		out = append(out, f.pools[address])
	}
	return out
}

// PoolAddress derives the deterministic address of a pool.
func PoolAddress(factory, tokenA, tokenB common.Address, feeBps uint16) common.Address {
	fee := make([]byte, 2)
	binary.BigEndian.PutUint16(fee, feeBps)
	hash := crypto.Keccak256(factory.Bytes(), tokenA.Bytes(), tokenB.Bytes(), fee)
	return common.BytesToAddress(hash[12:])
}

// OwnershipTokenAddress derives the ownership token address of a pool.
func OwnershipTokenAddress(poolAddress common.Address) common.Address {
	hash := crypto.Keccak256([]byte("ownership"), poolAddress.Bytes())
	return common.BytesToAddress(hash[12:])
}

func pairKey(tokenA, tokenB common.Address) [2]common.Address {
	if tokenA.Cmp(tokenB) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return [2]common.Address{tokenA, tokenB}
}
