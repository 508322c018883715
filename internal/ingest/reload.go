package ingest

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/snapshot"
)

// TableLoader produces a fresh table. *Loader implements it.
type TableLoader interface {
	Load(ctx context.Context) (*Result, error)
}

// SnapshotStore persists served tables so the last good one can be restored.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, t *census.Table) error
	LatestSnapshot(ctx context.Context) (*census.Table, error)
}

// Reloader publishes new tables to a snapshot handle. Only one reload or
// replace runs at a time; readers keep using the previous table until the
// swap.
type Reloader struct {
	loader TableLoader
	handle *snapshot.Handle
	store  SnapshotStore // nil disables persistence

	mu  sync.Mutex
	log *zap.Logger
}

// NewReloader creates a Reloader. store may be nil.
func NewReloader(loader TableLoader, handle *snapshot.Handle, store SnapshotStore) *Reloader {
	return &Reloader{
		loader: loader,
		handle: handle,
		store:  store,
		log:    zap.L().With(zap.String("component", "ingest.reloader")),
	}
}

// Reload loads the sources and swaps the result in. On failure the served
// table is left as is; if nothing has been served yet, the latest persisted
// snapshot is restored instead. The load error is returned either way.
func (r *Reloader) Reload(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loader == nil {
		return nil, eris.Wrap(census.ErrMissingArgument, "ingest: no loader configured")
	}

	res, err := r.loader.Load(ctx)
	if err != nil {
		r.log.Error("ingest: reload failed", zap.Error(err))
		if !r.handle.Loaded() {
			r.restore(ctx)
		}
		return nil, err
	}

	r.publish(ctx, res.Table)
	return res, nil
}

// Replace swaps in a table built elsewhere, such as an upload.
func (r *Reloader) Replace(ctx context.Context, t *census.Table) error {
	if t == nil {
		return eris.Wrap(census.ErrInvalidArgument, "ingest: replace with nil table")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.publish(ctx, t)
	return nil
}

// Restore publishes the latest persisted snapshot.
func (r *Reloader) Restore(ctx context.Context) (*census.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store == nil {
		return nil, eris.Wrap(census.ErrDataUnavailable, "ingest: no snapshot store configured")
	}
	t, err := r.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: restore snapshot")
	}
	r.handle.Swap(t)
	return t, nil
}

func (r *Reloader) restore(ctx context.Context) {
	if r.store == nil {
		return
	}
	t, err := r.store.LatestSnapshot(ctx)
	if err != nil {
		r.log.Warn("ingest: no snapshot to restore", zap.Error(err))
		return
	}
	r.handle.Swap(t)
	r.log.Info("ingest: restored persisted snapshot",
		zap.String("table_id", t.ID()),
		zap.Time("loaded_at", t.LoadedAt()),
	)
}

// publish swaps t in, then persists it. A persistence failure is logged; the
// table stays served.
func (r *Reloader) publish(ctx context.Context, t *census.Table) {
	r.handle.Swap(t)
	if r.store == nil {
		return
	}
	if err := r.store.SaveSnapshot(ctx, t); err != nil {
		r.log.Warn("ingest: persist snapshot failed", zap.String("table_id", t.ID()), zap.Error(err))
	}
}
