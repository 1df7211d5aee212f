package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityPool/internal/config"
	"liquidityPool/internal/dex"
	"liquidityPool/internal/model"
	"liquidityPool/internal/simulate"
	"liquidityPool/internal/storage"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scenario, err := simulate.LoadScenario(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Each run starts a fresh log file; the sink then appends per block.
	truncate, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	if err := truncate.Close(); err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.Uint64("chain_id", scenario.ChainID),
		zap.Int("pools", len(scenario.Pools)),
		zap.Int("steps", len(scenario.Steps)),
		zap.String("out", cfg.Out),
	)

	report, runErr := simulate.Run(ctx, scenario, simulate.Options{
		Sink:   storage.NewJsonlStorage(cfg.Out),
		Logger: logger,
	})
	if runErr != nil && !errors.Is(runErr, simulate.ErrExpectation) {
		return runErr
	}

	if cfg.TypedOut != "" {
		if err := decodeSimulated(ctx, cfg.Out, cfg.TypedOut, logger); err != nil {
			return err
		}
	}
	if cfg.Report != "" {
		if err := writeReport(cfg.Report, report); err != nil {
			return err
		}
	}
	return runErr
}

// decodeSimulated decodes a run's logs without RPC; the run's PoolCreated
// logs provide all pool metadata.
func decodeSimulated(ctx context.Context, in, out string, logger *zap.Logger) error {
	decoder, err := dex.NewPoolDecoder(dex.DecoderConfig{})
	if err != nil {
		return err
	}

	inputFile, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open logs: %w", err)
	}
	defer inputFile.Close()

	writer, err := storage.NewJSONLWriter(out, false)
	if err != nil {
		return err
	}
	defer writer.Close()

	var failures []model.DecodeError
	stats, err := dex.DecodeStream(inputFile, decoder, dex.DecodeContext{
		Context:        ctx,
		PoolMetaCache:  dex.NewPoolMetaCache(),
		TokenMetaCache: dex.NewTokenMetaCache(),
		Logger:         logger,
	}, writer, decodeErrorCollector{&failures})
	if err != nil {
		return fmt.Errorf("decode logs: %w", err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("decode logs: %d failures, first at block %d: %s",
			len(failures), failures[0].BlockNumber, failures[0].Error)
	}

	logger.Info("typed events written",
		zap.String("out", out),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
	)
	return nil
}

type decodeErrorCollector struct {
	into *[]model.DecodeError
}

func (c decodeErrorCollector) Write(value interface{}) error {
	if rec, ok := value.(model.DecodeError); ok {
		*c.into = append(*c.into, rec)
	}
	return nil
}

func writeReport(path string, report *simulate.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
