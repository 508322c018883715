// Package store persists loaded census tables as snapshots.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
)

// Drivers accepted by Open.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SnapshotInfo describes one persisted table without its rows.
type SnapshotInfo struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	CurrentYear int       `json:"current_year"`
	Rows        int       `json:"rows"`
	LoadedAt    time.Time `json:"loaded_at"`
	SavedAt     time.Time `json:"saved_at"`
}

// Store defines snapshot persistence.
type Store interface {
	// SaveSnapshot writes t. Saving a table ID that already exists replaces it.
	SaveSnapshot(ctx context.Context, t *census.Table) error
	// LatestSnapshot rebuilds the most recently saved table, or returns
	// ErrNotFound when nothing has been saved.
	LatestSnapshot(ctx context.Context) (*census.Table, error)
	// ListSnapshots returns up to limit snapshots, newest first. limit <= 0 means all.
	ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and tunes a store.
type Options struct {
	Driver string
	DSN    string
	Pool   *PoolConfig
	Keep   int // snapshots retained after a save; 0 keeps all
}

// Open creates the store named by opts.Driver and migrates it. DriverNone (or
// an empty driver) returns a nil Store and no error.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		s, err = NewSQLite(opts.DSN, opts.Keep)
	case DriverPostgres:
		s, err = NewPostgres(ctx, opts.DSN, opts.Pool, opts.Keep)
	default:
		return nil, eris.Wrapf(census.ErrInvalidArgument, "store: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
