package dex

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityPool/internal/model"
	"liquidityPool/internal/pool"
)

var (
	testFactory = common.HexToAddress("0xf000000000000000000000000000000000000001")
	testPool    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTokenA  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testTokenB  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testLP      = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	testCaller  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testTime    = time.Unix(1700000000, 0).UTC()
)

func encode(t *testing.T, ev pool.Event, emitter common.Address, logIndex uint64) model.LogRecord {
	t.Helper()
	record, err := EncodeEvent(ev, LogPosition{
		ChainID:     31337,
		BlockNumber: 12345,
		LogIndex:    logIndex,
		Emitter:     emitter,
	})
	if err != nil {
		t.Fatalf("encode %s: %v", ev.EventName(), err)
	}
	return record
}

func TestPoolDecoderPoolCreatedSeedsCache(t *testing.T) {
	decoder, err := NewPoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	cache := NewPoolMetaCache()
	ctx := DecodeContext{PoolMetaCache: cache, Logger: zap.NewNop()}

	record := encode(t, pool.PoolCreated{
		Pool:           testPool,
		TokenA:         testTokenA,
		TokenB:         testTokenB,
		OwnershipToken: testLP,
		FeeBps:         30,
		Timestamp:      testTime,
		Caller:         testCaller,
	}, testFactory, 0)

	if record.Address != testFactory.Hex() {
		t.Fatalf("emitter mismatch: %s", record.Address)
	}
	if !decoder.CanDecode(record.Topic0()) {
		t.Fatalf("expected topic0 %s to be decodable", record.Topic0())
	}

	event, err := decoder.Decode(record, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	created, ok := event.Decoded.(model.PoolCreatedData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if created.Pool != testPool.Hex() || created.OwnershipToken != testLP.Hex() {
		t.Fatalf("pool created mismatch: %+v", created)
	}
	if created.FeeBps != 30 || created.Timestamp != 1700000000 || created.Caller != testCaller.Hex() {
		t.Fatalf("pool created fields mismatch: %+v", created)
	}

	meta, ok := cache.Get(testPool)
	if !ok {
		t.Fatalf("expected pool meta to be cached")
	}
	if meta.TokenA != testTokenA.Hex() || meta.TokenB != testTokenB.Hex() || meta.FeeBps != 30 {
		t.Fatalf("cached meta mismatch: %+v", meta)
	}
}

func TestPoolDecoderLiquidityEvents(t *testing.T) {
	decoder, err := NewPoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	cache := NewPoolMetaCache()
	cache.Set(testPool, model.PoolMeta{TokenA: testTokenA.Hex(), TokenB: testTokenB.Hex(), FeeBps: 30})
	ctx := DecodeContext{PoolMetaCache: cache, Logger: zap.NewNop()}

	added := encode(t, pool.LiquidityAdded{
		Pool:        testPool,
		TokenA:      testTokenA,
		TokenB:      testTokenB,
		AmountA:     uint256.NewInt(1000),
		AmountB:     uint256.NewInt(4000),
		UnitsMinted: uint256.NewInt(2000),
		ReserveA:    uint256.NewInt(1000),
		ReserveB:    uint256.NewInt(4000),
		Timestamp:   testTime,
		Caller:      testCaller,
	}, common.Address{}, 1)

	event, err := decoder.Decode(added, ctx)
	if err != nil {
		t.Fatalf("decode added: %v", err)
	}
	deposit, ok := event.Decoded.(model.LiquidityAddedData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if deposit.AmountA != "1000" || deposit.AmountB != "4000" || deposit.UnitsMinted != "2000" {
		t.Fatalf("deposit amounts mismatch: %+v", deposit)
	}
	if deposit.Pool != testPool.Hex() || deposit.Caller != testCaller.Hex() {
		t.Fatalf("deposit address mismatch: %+v", deposit)
	}
	if event.PoolMeta.ReserveA != "1000" || event.PoolMeta.ReserveB != "4000" {
		t.Fatalf("event reserves not attached: %+v", event.PoolMeta)
	}

	removed := encode(t, pool.LiquidityRemoved{
		Pool:        testPool,
		TokenA:      testTokenA,
		TokenB:      testTokenB,
		AmountA:     uint256.NewInt(500),
		AmountB:     uint256.NewInt(2000),
		UnitsBurned: uint256.NewInt(1000),
		ReserveA:    uint256.NewInt(500),
		ReserveB:    uint256.NewInt(2000),
		Timestamp:   testTime,
		Caller:      testCaller,
	}, common.Address{}, 2)

	event, err = decoder.Decode(removed, ctx)
	if err != nil {
		t.Fatalf("decode removed: %v", err)
	}
	withdraw, ok := event.Decoded.(model.LiquidityRemovedData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if withdraw.UnitsBurned != "1000" || withdraw.ReserveB != "2000" {
		t.Fatalf("withdraw mismatch: %+v", withdraw)
	}
}

func TestPoolDecoderSwapOrientsReserves(t *testing.T) {
	decoder, err := NewPoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	cache := NewPoolMetaCache()
	cache.Set(testPool, model.PoolMeta{TokenA: testTokenA.Hex(), TokenB: testTokenB.Hex(), FeeBps: 30})
	ctx := DecodeContext{PoolMetaCache: cache, Logger: zap.NewNop()}

	record := encode(t, pool.TokenSwapped{
		Pool:       testPool,
		TokenIn:    testTokenB,
		TokenOut:   testTokenA,
		AmountIn:   uint256.NewInt(100),
		AmountOut:  uint256.NewInt(90),
		ReserveIn:  uint256.NewInt(1100),
		ReserveOut: uint256.NewInt(910),
		Timestamp:  testTime,
		Caller:     testCaller,
	}, common.Address{}, 3)

	event, err := decoder.Decode(record, ctx)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	swap, ok := event.Decoded.(model.TokenSwappedData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if swap.TokenIn != testTokenB.Hex() || swap.TokenOut != testTokenA.Hex() {
		t.Fatalf("swap tokens mismatch: %+v", swap)
	}
	if swap.AmountIn != "100" || swap.AmountOut != "90" {
		t.Fatalf("swap amounts mismatch: %+v", swap)
	}
	if event.PoolMeta.ReserveA != "910" || event.PoolMeta.ReserveB != "1100" {
		t.Fatalf("reserves should be pool oriented: %+v", event.PoolMeta)
	}
	if event.Raw == nil || event.Raw.Topic0 != record.Topic0() {
		t.Fatalf("raw ref missing")
	}
}

func TestPoolDecoderUnknownPoolWithoutChain(t *testing.T) {
	decoder, err := NewPoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	record := encode(t, pool.TokenSwapped{
		Pool:       testPool,
		TokenIn:    testTokenA,
		TokenOut:   testTokenB,
		AmountIn:   uint256.NewInt(1),
		AmountOut:  uint256.NewInt(1),
		ReserveIn:  uint256.NewInt(1),
		ReserveOut: uint256.NewInt(1),
		Timestamp:  testTime,
		Caller:     testCaller,
	}, common.Address{}, 0)

	_, err = decoder.Decode(record, DecodeContext{PoolMetaCache: NewPoolMetaCache()})
	if err == nil || !strings.Contains(err.Error(), "metadata unavailable") {
		t.Fatalf("expected metadata error, got %v", err)
	}
}

func TestPoolDecoderTopic0Map(t *testing.T) {
	custom := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	decoder, err := NewPoolDecoder(DecoderConfig{Topic0Map: map[string]string{custom: "swap"}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(strings.ToUpper(custom)) {
		t.Fatalf("custom topic0 should be decodable")
	}

	if _, err := NewPoolDecoder(DecoderConfig{Topic0Map: map[string]string{custom: "collect"}}); err == nil {
		t.Fatalf("expected error for unsupported event name")
	}
}

func TestEventTopics(t *testing.T) {
	topics, err := EventTopics()
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	for _, name := range []string{
		pool.EventPoolCreated,
		pool.EventLiquidityAdded,
		pool.EventLiquidityRemoved,
		pool.EventTokenSwapped,
	} {
		if topics[name] == "" {
			t.Fatalf("missing topic for %s", name)
		}
	}
}
