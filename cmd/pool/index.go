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
	"liquidityPool/internal/indexer"
	"liquidityPool/internal/storage"
)

func runIndex(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	runCfg, err := indexRunConfig(cfg)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	runner, err := indexer.NewRunner(runCfg, chainClient, storage.NewJsonlStorage(cfg.Out), logger)
	if err != nil {
		return err
	}

	logger.Info("index start",
		zap.String("rpc", redactURL(cfg.RPCURL)),
		zap.Uint64("from", runCfg.FromBlock),
		zap.Uint64("to", runCfg.ToBlock),
		zap.Stringers("addresses", runCfg.Addresses),
		zap.Int("topic0", len(runCfg.Topic0)),
		zap.Bool("follow_created", runCfg.FollowCreated),
		zap.Uint64("batch_size", runCfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.Bool("checkpoint_enabled", runCfg.CheckpointEnabled),
	)
	return runner.Run(ctx)
}

// indexRunConfig checks the index settings and converts the filters.
func indexRunConfig(cfg config.Config) (indexer.RunConfig, error) {
	if cfg.RPCURL == "" {
		return indexer.RunConfig{}, fmt.Errorf("rpc url is required")
	}
	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return indexer.RunConfig{}, fmt.Errorf("address filter: %w", err)
	}
	if len(addresses) == 0 {
		return indexer.RunConfig{}, fmt.Errorf("at least one factory or pool address is required")
	}
	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return indexer.RunConfig{}, fmt.Errorf("topic0 filter: %w", err)
	}

	return indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		FollowCreated:     cfg.FollowCreated,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, nil
}
