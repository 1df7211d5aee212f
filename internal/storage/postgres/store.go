package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityPool/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id          BIGINT      NOT NULL,
	pool_address      TEXT        NOT NULL,
	token_a           TEXT        NOT NULL,
	token_b           TEXT        NOT NULL,
	ownership_token   TEXT        NOT NULL,
	fee_bps           INTEGER     NOT NULL,
	first_seen_block  BIGINT      NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS pool_events (
	chain_id      BIGINT      NOT NULL,
	block_number  BIGINT      NOT NULL,
	tx_hash       TEXT        NOT NULL,
	log_index     BIGINT      NOT NULL,
	pool_address  TEXT        NOT NULL,
	event_name    TEXT        NOT NULL,
	event_ts      TIMESTAMPTZ NOT NULL,
	payload       JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS pool_events_pool_ts ON pool_events (chain_id, pool_address, event_ts);

CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id             BIGINT      NOT NULL,
	pool_address         TEXT        NOT NULL,
	window_size_seconds  BIGINT      NOT NULL,
	window_start_ts      TIMESTAMPTZ NOT NULL,
	window_end_ts        TIMESTAMPTZ NOT NULL,
	swap_count           BIGINT      NOT NULL,
	deposit_count        BIGINT      NOT NULL,
	withdraw_count       BIGINT      NOT NULL,
	volume_a             NUMERIC     NOT NULL,
	volume_b             NUMERIC     NOT NULL,
	fee_a                NUMERIC     NOT NULL,
	fee_b                NUMERIC     NOT NULL,
	fee_rate_a           NUMERIC,
	fee_rate_b           NUMERIC,
	reserve_a            NUMERIC,
	reserve_b            NUMERIC,
	apr                  NUMERIC,
	fee_method           TEXT        NOT NULL,
	tvl_method           TEXT        NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name               TEXT        PRIMARY KEY,
	last_processed_ts  BIGINT      NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pools, events and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token_a, token_b, ownership_token, fee_bps, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				token_a = EXCLUDED.token_a,
				token_b = EXCLUDED.token_b,
				ownership_token = CASE WHEN EXCLUDED.ownership_token = '' THEN pools.ownership_token ELSE EXCLUDED.ownership_token END,
				fee_bps = EXCLUDED.fee_bps,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.TokenA,
			pool.TokenB,
			pool.OwnershipToken,
			int32(pool.FeeBps),
			int64(pool.FirstSeenBlock),
		)
	}
	return s.execBatch(ctx, batch)
}

// InsertEvents stores decoded events. Replays of the same log are ignored.
func (s *Store) InsertEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev.Decoded)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", ev.EventName, err)
		}
		batch.Queue(`
			INSERT INTO pool_events (
				chain_id, block_number, tx_hash, log_index, pool_address, event_name, event_ts, payload
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(ev.ChainID),
			int64(ev.BlockNumber),
			ev.TxHash,
			int64(ev.LogIndex),
			ev.Address,
			ev.EventName,
			time.Unix(int64(ev.Timestamp), 0).UTC(),
			string(payload),
		)
	}
	return s.execBatch(ctx, batch)
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, deposit_count, withdraw_count, volume_a, volume_b, fee_a, fee_b,
				fee_rate_a, fee_rate_b, reserve_a, reserve_b, apr, fee_method, tvl_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				deposit_count = EXCLUDED.deposit_count,
				withdraw_count = EXCLUDED.withdraw_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				fee_a = EXCLUDED.fee_a,
				fee_b = EXCLUDED.fee_b,
				fee_rate_a = EXCLUDED.fee_rate_a,
				fee_rate_b = EXCLUDED.fee_rate_b,
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				tvl_method = EXCLUDED.tvl_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.DepositCount),
			int64(m.WithdrawCount),
			m.VolumeA,
			m.VolumeB,
			m.FeeA,
			m.FeeB,
			m.FeeRateA,
			m.FeeRateB,
			m.ReserveA,
			m.ReserveB,
			m.APR,
			m.FeeMethod,
			m.TVLMethod,
		)
	}
	return s.execBatch(ctx, batch)
}

func (s *Store) execBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
