package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	keep    int
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
}

const (
	latestSnapshotSQL = `SELECT id, source, current_year, row_count, loaded_at, saved_at FROM snapshots ORDER BY seq DESC LIMIT 1`
	snapshotAreasSQL  = `SELECT name, status, estimated_base, population::text, details::text FROM areas WHERE snapshot_id = $1 ORDER BY ordinal`
	listSnapshotsSQL  = `SELECT id, source, current_year, row_count, loaded_at, saved_at FROM snapshots ORDER BY seq DESC LIMIT $1`
	upsertSnapshotSQL = `INSERT INTO snapshots (id, source, current_year, row_count, loaded_at, saved_at) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source, current_year = EXCLUDED.current_year,
	row_count = EXCLUDED.row_count, loaded_at = EXCLUDED.loaded_at, saved_at = EXCLUDED.saved_at`
	trimAreasSQL      = `DELETE FROM areas WHERE snapshot_id = $1 AND ordinal >= $2`
	pruneAreasSQL     = `DELETE FROM areas WHERE snapshot_id IN (SELECT id FROM snapshots ORDER BY seq DESC OFFSET $1)`
	pruneSnapshotsSQL = `DELETE FROM snapshots WHERE id IN (SELECT id FROM snapshots ORDER BY seq DESC OFFSET $1)`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, keep int) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, keep: keep}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	seq          BIGSERIAL,
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	current_year INTEGER NOT NULL,
	row_count    INTEGER NOT NULL,
	loaded_at    TIMESTAMPTZ NOT NULL,
	saved_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_snapshots_seq ON snapshots(seq DESC);

CREATE TABLE IF NOT EXISTS areas (
	snapshot_id    TEXT NOT NULL,
	ordinal        INTEGER NOT NULL,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL,
	estimated_base BIGINT NOT NULL,
	population     JSONB NOT NULL,
	details        JSONB,
	PRIMARY KEY (snapshot_id, ordinal)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveSnapshot upserts the area rows first and the snapshot row last, so a
// reader never sees a snapshot whose rows are still being written.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, t *census.Table) error {
	if t == nil {
		return eris.Wrap(census.ErrInvalidArgument, "postgres: save nil table")
	}
	info := snapshotInfo(t, time.Now().UTC())

	rows := make([][]any, 0, t.Len())
	for i, r := range t.Records() {
		row, err := encodeArea(info.ID, i, r)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "areas",
		Columns:      areaColumns,
		ConflictKeys: []string{"snapshot_id", "ordinal"},
	}, rows); err != nil {
		return eris.Wrapf(err, "postgres: write areas %s", info.ID)
	}
	if _, err := s.pool.Exec(ctx, trimAreasSQL, info.ID, info.Rows); err != nil {
		return eris.Wrapf(err, "postgres: trim areas %s", info.ID)
	}
	if _, err := s.pool.Exec(ctx, upsertSnapshotSQL,
		info.ID, info.Source, info.CurrentYear, info.Rows, info.LoadedAt, info.SavedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert snapshot %s", info.ID)
	}

	if s.keep > 0 {
		if _, err := s.pool.Exec(ctx, pruneAreasSQL, s.keep); err != nil {
			return eris.Wrap(err, "postgres: prune areas")
		}
		if _, err := s.pool.Exec(ctx, pruneSnapshotsSQL, s.keep); err != nil {
			return eris.Wrap(err, "postgres: prune snapshots")
		}
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*census.Table, error) {
	info, err := scanPgSnapshot(s.pool.QueryRow(ctx, latestSnapshotSQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(census.ErrNotFound, "postgres: no snapshots saved")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}

	rows, err := s.pool.Query(ctx, snapshotAreasSQL, info.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query areas %s", info.ID)
	}
	defer rows.Close()

	records := make([]census.AreaRecord, 0, info.Rows)
	for rows.Next() {
		var (
			name, status, pop string
			base              int64
			detail            *string
		)
		if err := rows.Scan(&name, &status, &base, &pop, &detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area")
		}
		r, err := decodeArea(name, status, base, pop, detail)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate areas")
	}
	return rebuild(info, records)
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	var lim any = limit
	if limit <= 0 {
		lim = nil // LIMIT NULL is no limit
	}
	rows, err := s.pool.Query(ctx, listSnapshotsSQL, lim)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		info, err := scanPgSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate snapshots")
}

func scanPgSnapshot(row scannable) (SnapshotInfo, error) {
	var info SnapshotInfo
	err := row.Scan(&info.ID, &info.Source, &info.CurrentYear, &info.Rows, &info.LoadedAt, &info.SavedAt)
	info.LoadedAt = info.LoadedAt.UTC()
	info.SavedAt = info.SavedAt.UTC()
	return info, err
}
