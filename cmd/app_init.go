package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/config"
	"github.com/sells-group/popmap/internal/estimate"
	"github.com/sells-group/popmap/internal/fetcher"
	"github.com/sells-group/popmap/internal/ingest"
	"github.com/sells-group/popmap/internal/query"
	"github.com/sells-group/popmap/internal/snapshot"
	"github.com/sells-group/popmap/internal/store"
)

// appEnv holds the served table handle and everything that feeds it.
type appEnv struct {
	Handle    *snapshot.Handle
	Loader    *ingest.Loader // nil when no sources are configured
	Store     store.Store    // nil when store.driver is none
	Reloader  *ingest.Reloader
	Engine    *query.Engine
	Estimator *estimate.Estimator
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates cfg for mode and wires the loader, store, and engines.
// No table is loaded yet; call loadInitial. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DatabaseURL,
		Pool:   &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
		Keep:   cfg.Store.Keep,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	env := &appEnv{Handle: snapshot.New(), Store: st}

	var (
		tl ingest.TableLoader
		ss ingest.SnapshotStore
	)
	if sources := sourcesFromConfig(cfg.Data); len(sources) > 0 {
		env.Loader = ingest.NewLoader(ingest.LoaderOptions{
			Sources:     sources,
			CurrentYear: cfg.Data.CurrentYear,
			CacheDir:    cfg.Data.CacheDir,
			Fetcher:     newFetcher(cfg.Fetch),
		})
		tl = env.Loader
	}
	if st != nil {
		ss = st
	}
	env.Reloader = ingest.NewReloader(tl, env.Handle, ss)

	cache := query.NewResultCache(cfg.Cache.MaxEntries, cfg.Cache.TTL())
	env.Engine = query.NewEngine(env.Handle, cache)
	env.Estimator = estimate.NewEstimator(env.Handle)

	return env, nil
}

// loadInitial loads the configured sources, falling back to the latest
// persisted snapshot. It fails only when no table could be served.
func (e *appEnv) loadInitial(ctx context.Context) error {
	if e.Loader != nil {
		res, err := e.Reloader.Reload(ctx)
		if err == nil {
			logRowErrors(res.RowErrors)
			return nil
		}
		if e.Handle.Loaded() {
			zap.L().Warn("sources unavailable, serving restored snapshot", zap.Error(err))
			return nil
		}
		return err
	}

	if _, err := e.Reloader.Restore(ctx); err != nil {
		return eris.Wrap(err, "restore snapshot")
	}
	return nil
}

// sourcesFromConfig converts data.sources and data.paths into loader sources.
func sourcesFromConfig(d config.DataConfig) []ingest.Source {
	var out []ingest.Source
	for _, s := range d.AllSources() {
		out = append(out, ingest.Source{
			Path:     s.Path,
			Layout:   ingest.Layout(s.Layout),
			Format:   fetcher.Format(s.Format),
			Sheet:    s.Sheet,
			SkipRows: s.SkipRows,
			Charset:  s.Charset,
		})
	}
	return out
}

// newFetcher builds the HTTP fetcher for remote sources from fetch settings.
func newFetcher(fc config.FetchConfig) *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		UserAgent:  fc.UserAgent,
		Timeout:    time.Duration(fc.TimeoutSecs) * time.Second,
		MaxRetries: fc.MaxRetries,
	}
	if fc.RatePerSec > 0 {
		burst := int(fc.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(fc.RatePerSec), burst)
	}
	return fetcher.NewHTTPFetcher(opts)
}

func logRowErrors(errs []*ingest.RowError) {
	if len(errs) == 0 {
		return
	}
	zap.L().Warn("rows dropped during load", zap.Int("count", len(errs)))
}

// tableOrErr returns the served table with a hint when nothing is loaded.
func (e *appEnv) tableOrErr() (*census.Table, error) {
	t, err := e.Handle.Current()
	if err != nil {
		return nil, eris.Wrap(err, "no census table loaded: configure data.sources or a snapshot store")
	}
	return t, nil
}
