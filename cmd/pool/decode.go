package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityPool/internal/chain"
	"liquidityPool/internal/config"
	"liquidityPool/internal/dex"
	"liquidityPool/internal/model"
	"liquidityPool/internal/storage"
	"liquidityPool/internal/storage/postgres"
)

const eventBatchSize = 500

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var chainClient *chain.Client
	if cfg.RPCURL != "" {
		chainClient, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
	}

	decoder, err := dex.NewPoolDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	decodeCtx := dex.DecodeContext{
		Context:         ctx,
		Chain:           chainClient,
		PoolMetaCache:   dex.NewPoolMetaCache(),
		TokenMetaCache:  dex.NewTokenMetaCache(),
		Logger:          logger,
		IncludeLiveMeta: cfg.IncludeLiveMeta,
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	var out dex.RecordWriter = outWriter
	var sink *eventSink
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = &eventSink{ctx: ctx, next: outWriter, store: store}
		out = sink
	}

	logger.Info("decode start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("pg_dsn", redactURL(cfg.PGDSN)),
		zap.Bool("include_live_meta", cfg.IncludeLiveMeta),
	)

	stats, err := dex.DecodeStream(inputFile, decoder, decodeCtx, out, errWriter)
	if err != nil {
		return fmt.Errorf("decode stream: %w", err)
	}
	if sink != nil {
		if err := sink.flush(); err != nil {
			return err
		}
	}

	logger.Info("decode complete",
		zap.Int("total", stats.Total),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)

	return nil
}

// eventStore is the part of the Postgres store the decode command writes to.
type eventStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	InsertEvents(ctx context.Context, events []model.TypedEvent) error
}

// eventSink tees typed events to the JSONL output and batches them into
// Postgres. PoolCreated events also register the pool row.
type eventSink struct {
	ctx    context.Context
	next   dex.RecordWriter
	store  eventStore
	events []model.TypedEvent
	pools  []model.Pool
}

func (s *eventSink) Write(value interface{}) error {
	if err := s.next.Write(value); err != nil {
		return err
	}
	event, ok := value.(*model.TypedEvent)
	if !ok {
		return nil
	}
	s.events = append(s.events, *event)
	if created, ok := event.Decoded.(model.PoolCreatedData); ok {
		s.pools = append(s.pools, model.Pool{
			ChainID:        event.ChainID,
			Address:        created.Pool,
			TokenA:         created.TokenA,
			TokenB:         created.TokenB,
			OwnershipToken: created.OwnershipToken,
			FeeBps:         created.FeeBps,
			FirstSeenBlock: event.BlockNumber,
		})
	}
	if len(s.events) >= eventBatchSize {
		return s.flush()
	}
	return nil
}

func (s *eventSink) flush() error {
	if err := s.store.UpsertPools(s.ctx, s.pools); err != nil {
		return err
	}
	if err := s.store.InsertEvents(s.ctx, s.events); err != nil {
		return err
	}
	s.pools = s.pools[:0]
	s.events = s.events[:0]
	return nil
}
