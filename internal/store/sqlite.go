package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/popmap/internal/census"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	keep int
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// keep bounds how many snapshots survive a save; 0 keeps all.
func NewSQLite(dsn string, keep int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Every connection to :memory: is a separate database.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, keep: keep}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	source       TEXT NOT NULL,
	current_year INTEGER NOT NULL,
	row_count    INTEGER NOT NULL,
	loaded_at    INTEGER NOT NULL,
	saved_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS areas (
	snapshot_id    TEXT NOT NULL,
	ordinal        INTEGER NOT NULL,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL,
	estimated_base INTEGER NOT NULL,
	population     TEXT NOT NULL,
	details        TEXT,
	PRIMARY KEY (snapshot_id, ordinal)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, t *census.Table) error {
	if t == nil {
		return eris.Wrap(census.ErrInvalidArgument, "sqlite: save nil table")
	}
	info := snapshotInfo(t, time.Now().UTC())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM areas WHERE snapshot_id = ?`, info.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear areas %s", info.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, info.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear snapshot %s", info.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO areas (snapshot_id, ordinal, name, status, estimated_base, population, details) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare area insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range t.Records() {
		row, err := encodeArea(info.ID, i, r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert area %d", i)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, source, current_year, row_count, loaded_at, saved_at) VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Source, info.CurrentYear, info.Rows, info.LoadedAt.UnixNano(), info.SavedAt.UnixNano(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert snapshot %s", info.ID)
	}

	if s.keep > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM areas WHERE snapshot_id IN (SELECT id FROM snapshots ORDER BY seq DESC LIMIT -1 OFFSET ?)`, s.keep,
		); err != nil {
			return eris.Wrap(err, "sqlite: prune areas")
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM snapshots WHERE id IN (SELECT id FROM snapshots ORDER BY seq DESC LIMIT -1 OFFSET ?)`, s.keep,
		); err != nil {
			return eris.Wrap(err, "sqlite: prune snapshots")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit snapshot")
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*census.Table, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, current_year, row_count, loaded_at, saved_at FROM snapshots ORDER BY seq DESC LIMIT 1`)
	info, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(census.ErrNotFound, "sqlite: no snapshots saved")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshot")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, estimated_base, population, details FROM areas WHERE snapshot_id = ? ORDER BY ordinal`, info.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query areas %s", info.ID)
	}
	defer rows.Close() //nolint:errcheck

	records := make([]census.AreaRecord, 0, info.Rows)
	for rows.Next() {
		r, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate areas")
	}
	return rebuild(info, records)
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, current_year, row_count, loaded_at, saved_at FROM snapshots ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var out []SnapshotInfo
	for rows.Next() {
		info, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate snapshots")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable) (SnapshotInfo, error) {
	var (
		info            SnapshotInfo
		loaded, savedAt int64
	)
	if err := row.Scan(&info.ID, &info.Source, &info.CurrentYear, &info.Rows, &loaded, &savedAt); err != nil {
		return info, err
	}
	info.LoadedAt = time.Unix(0, loaded).UTC()
	info.SavedAt = time.Unix(0, savedAt).UTC()
	return info, nil
}

func scanArea(row scannable) (census.AreaRecord, error) {
	var (
		name, status, pop string
		base              int64
		detail            sql.NullString
	)
	if err := row.Scan(&name, &status, &base, &pop, &detail); err != nil {
		return census.AreaRecord{}, eris.Wrap(err, "store: scan area")
	}
	var d *string
	if detail.Valid {
		d = &detail.String
	}
	return decodeArea(name, status, base, pop, d)
}
