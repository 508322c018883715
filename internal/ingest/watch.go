package ingest

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

const defaultWatchInterval = 30 * time.Second

// Reload is the callback a Watcher runs when a watched file changes.
type Reload func(ctx context.Context) error

// Watcher polls local source files and reloads when any of them changes.
type Watcher struct {
	paths    []string
	interval time.Duration
	reload   Reload
	seen     map[string]fileStamp
}

type fileStamp struct {
	mod  time.Time
	size int64
	ok   bool
}

// NewWatcher creates a watcher over paths. A zero interval uses 30s.
func NewWatcher(paths []string, interval time.Duration, reload Reload) *Watcher {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	return &Watcher{paths: paths, interval: interval, reload: reload}
}

// Run polls until ctx is cancelled. The first poll only records the current
// state of the files.
func (w *Watcher) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "ingest.watcher"))
	if len(w.paths) == 0 {
		log.Debug("no local sources to watch")
		return
	}
	log.Info("starting source watcher",
		zap.Strings("paths", w.paths),
		zap.Duration("interval", w.interval),
	)

	w.seen = w.stamps()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("source watcher stopped")
			return
		case <-ticker.C:
			w.poll(ctx, log)
		}
	}
}

func (w *Watcher) poll(ctx context.Context, log *zap.Logger) bool {
	now := w.stamps()
	changed := false
	for p, s := range now {
		if w.seen[p] != s {
			log.Info("ingest: source changed", zap.String("path", p))
			changed = true
		}
	}
	w.seen = now
	if !changed {
		return false
	}
	if err := w.reload(ctx); err != nil {
		log.Error("ingest: reload after change failed", zap.Error(err))
	}
	return true
}

func (w *Watcher) stamps() map[string]fileStamp {
	out := make(map[string]fileStamp, len(w.paths))
	for _, p := range w.paths {
		fi, err := os.Stat(p)
		if err != nil {
			out[p] = fileStamp{}
			continue
		}
		out[p] = fileStamp{mod: fi.ModTime(), size: fi.Size(), ok: true}
	}
	return out
}
