package ingest

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/fetcher"
)

const defaultLoadConcurrency = 4

// Source is one configured dataset. Path is a local file or an http(s) URL.
type Source struct {
	Path     string         `mapstructure:"path"`
	Layout   Layout         `mapstructure:"layout"`
	Format   fetcher.Format `mapstructure:"format"`
	Sheet    string         `mapstructure:"sheet"`
	SkipRows int            `mapstructure:"skip_rows"`
	Charset  string         `mapstructure:"charset"`
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Sources     []Source
	CurrentYear int    // 0 picks the latest year present
	CacheDir    string // download directory for remote sources; os.TempDir()/popmap when empty
	Fetcher     fetcher.Fetcher
	Concurrency int
}

// Result is one completed load.
type Result struct {
	Table     *census.Table
	RowErrors []*RowError
}

// Loader reads the configured sources into a single table.
type Loader struct {
	opts LoaderOptions
	log  *zap.Logger
}

// NewLoader creates a Loader. Remote sources use an HTTPFetcher with default
// options unless one is supplied.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Fetcher == nil {
		opts.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "popmap")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultLoadConcurrency
	}
	return &Loader{opts: opts, log: zap.L().With(zap.String("component", "ingest.loader"))}
}

// Sources returns the configured sources.
func (l *Loader) Sources() []Source { return l.opts.Sources }

// LocalPaths returns the paths of sources that live on the local filesystem.
func (l *Loader) LocalPaths() []string {
	var out []string
	for _, s := range l.opts.Sources {
		if !fetcher.IsRemote(s.Path) {
			out = append(out, s.Path)
		}
	}
	return out
}

// Load reads every source concurrently and merges the records in configured
// order. Any source failing to open or decode fails the whole load; rows that
// cannot be mapped are logged and dropped.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	if len(l.opts.Sources) == 0 {
		return nil, eris.Wrap(census.ErrMissingArgument, "ingest: no data sources configured")
	}
	start := time.Now()

	mapped := make([]*Mapped, len(l.opts.Sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for i, src := range l.opts.Sources {
		g.Go(func() error {
			m, err := l.loadSource(gctx, src)
			if err != nil {
				return eris.Wrapf(err, "ingest: source %s", src.Path)
			}
			mapped[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	var records []census.AreaRecord
	for i, m := range mapped {
		records = append(records, m.Records...)
		res.RowErrors = append(res.RowErrors, m.RowErrors...)
		l.log.Info("ingest: source mapped",
			zap.String("source", l.opts.Sources[i].Path),
			zap.String("layout", string(m.Layout)),
			zap.Int("records", len(m.Records)),
			zap.Int("dropped", len(m.RowErrors)),
		)
	}
	for _, re := range res.RowErrors {
		l.log.Warn("ingest: row dropped",
			zap.String("source", re.Source),
			zap.Int("row", re.Row),
			zap.String("name", re.Name),
			zap.Error(re.Err),
		)
	}
	if len(records) == 0 {
		return nil, eris.Wrap(census.ErrDataUnavailable, "ingest: sources yielded no records")
	}

	paths := make([]string, len(l.opts.Sources))
	for i, s := range l.opts.Sources {
		paths[i] = s.Path
	}
	t, err := census.NewTable(records, census.TableOptions{
		Source:      strings.Join(paths, ", "),
		CurrentYear: l.opts.CurrentYear,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: build table")
	}
	res.Table = t

	l.log.Info("ingest: load complete",
		zap.String("table_id", t.ID()),
		zap.Int("rows", t.Len()),
		zap.Int("current_year", t.CurrentYear()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (l *Loader) loadSource(ctx context.Context, src Source) (*Mapped, error) {
	local := src.Path
	if fetcher.IsRemote(src.Path) {
		var err error
		if local, err = l.download(ctx, src.Path); err != nil {
			return nil, err
		}
	}

	ds, err := fetcher.Read(ctx, local, fetcher.Options{
		Format:   src.Format,
		Sheet:    src.Sheet,
		SkipRows: src.SkipRows,
		Charset:  src.Charset,
	})
	if err != nil {
		return nil, err
	}
	return MapRecords(ds, MapOptions{Layout: src.Layout, Source: src.Path, Year: l.opts.CurrentYear})
}

// download refreshes the cached copy of a remote source. The ETag of the last
// download is kept next to the file; a failed refresh falls back to the cached
// copy when one exists.
func (l *Loader) download(ctx context.Context, rawURL string) (string, error) {
	if err := os.MkdirAll(l.opts.CacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create cache dir")
	}
	local := cachePath(l.opts.CacheDir, rawURL)
	etagPath := local + ".etag"

	var etag string
	if _, err := os.Stat(local); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	newTag, changed, err := l.opts.Fetcher.DownloadIfChanged(ctx, rawURL, local, etag)
	if err != nil {
		if _, statErr := os.Stat(local); statErr == nil {
			l.log.Warn("ingest: download failed, using cached copy",
				zap.String("url", rawURL), zap.String("path", local), zap.Error(err))
			return local, nil
		}
		return "", eris.Wrapf(err, "ingest: download %s", rawURL)
	}
	if changed && newTag != "" {
		if err := os.WriteFile(etagPath, []byte(newTag), 0o644); err != nil {
			l.log.Warn("ingest: write etag", zap.String("path", etagPath), zap.Error(err))
		}
	}
	l.log.Debug("ingest: remote source ready",
		zap.String("url", rawURL), zap.Bool("changed", changed), zap.String("etag", newTag))
	return local, nil
}

// cachePath derives a stable file name for a URL, keeping its extension so the
// format can still be detected.
func cachePath(dir, rawURL string) string {
	ext := path.Ext(strings.SplitN(strings.SplitN(rawURL, "?", 2)[0], "#", 2)[0])
	return filepath.Join(dir, uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String()+ext)
}
