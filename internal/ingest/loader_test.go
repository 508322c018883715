package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/fetcher"
)

const placesCSV = "Geographic_Area,Status,Estimated_Base,2022_Population,2023_Population\n" +
	"\"Springfield city, Illinois\",City,114394,113800,114000\n" +
	"\"Peoria city, Illinois\",City,113150,111000,110000\n" +
	",City,1,1,1\n"

const countiesCSV = "NAME,Status,Total_Population\n" +
	"\"Clark County, Ohio\",County,134831\n"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func testFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		Limiter:    rate.NewLimiter(rate.Inf, 1),
	})
}

func TestLoader_MergesSourcesInOrder(t *testing.T) {
	dir := t.TempDir()
	places := writeFile(t, dir, "places.csv", placesCSV)
	counties := writeFile(t, dir, "counties.csv", countiesCSV)

	l := NewLoader(LoaderOptions{
		Sources:     []Source{{Path: places}, {Path: counties, Layout: LayoutCensus}},
		CurrentYear: 2023,
		CacheDir:    t.TempDir(),
	})
	res, err := l.Load(context.Background())
	require.NoError(t, err)

	tbl := res.Table
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "Springfield city, Illinois", tbl.At(0).Name)
	assert.Equal(t, "Peoria city, Illinois", tbl.At(1).Name)
	assert.Equal(t, "Clark County, Ohio", tbl.At(2).Name)
	assert.Equal(t, 2023, tbl.CurrentYear())
	assert.Equal(t, places+", "+counties, tbl.Source())

	pop, ok := tbl.At(2).CurrentPopulation()
	assert.True(t, ok)
	assert.Equal(t, int64(134831), pop)

	require.Len(t, res.RowErrors, 1)
	assert.Equal(t, places, res.RowErrors[0].Source)
	assert.Equal(t, 2, res.RowErrors[0].Row)

	assert.Equal(t, []string{places, counties}, l.LocalPaths())
}

func TestLoader_NoSources(t *testing.T) {
	_, err := NewLoader(LoaderOptions{}).Load(context.Background())
	assert.True(t, eris.Is(err, census.ErrMissingArgument))
}

func TestLoader_SourceFailureFailsLoad(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "places.csv", placesCSV)

	l := NewLoader(LoaderOptions{Sources: []Source{{Path: good}, {Path: filepath.Join(dir, "missing.csv")}}})
	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestLoader_NoRecords(t *testing.T) {
	p := writeFile(t, t.TempDir(), "empty.csv", "Geographic_Area,Total_Population\n")
	_, err := NewLoader(LoaderOptions{Sources: []Source{{Path: p}}}).Load(context.Background())
	assert.True(t, eris.Is(err, census.ErrDataUnavailable))
}

func TestLoader_RemoteSourceUsesETag(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(countiesCSV))
	}))
	defer srv.Close()

	cache := t.TempDir()
	l := NewLoader(LoaderOptions{
		Sources:  []Source{{Path: srv.URL + "/counties.csv?vintage=2023"}},
		CacheDir: cache,
		Fetcher:  testFetcher(),
	})

	for i := 0; i < 2; i++ {
		res, err := l.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Table.Len())
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
	assert.Empty(t, l.LocalPaths())

	cached := cachePath(cache, srv.URL+"/counties.csv?vintage=2023")
	assert.Equal(t, ".csv", filepath.Ext(cached))
	etag, err := os.ReadFile(cached + ".etag")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, string(etag))
}

func TestLoader_RemoteFailureFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(countiesCSV))
	}))
	defer srv.Close()

	l := NewLoader(LoaderOptions{
		Sources:  []Source{{Path: srv.URL + "/counties.csv"}},
		CacheDir: t.TempDir(),
		Fetcher:  testFetcher(),
	})
	_, err := l.Load(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	res, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Clark County, Ohio", res.Table.At(0).Name)
}

func TestLoader_RemoteFailureWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewLoader(LoaderOptions{
		Sources:  []Source{{Path: srv.URL + "/gone.csv"}},
		CacheDir: t.TempDir(),
		Fetcher:  testFetcher(),
	})
	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download")
}

func TestCachePath_Stable(t *testing.T) {
	a := cachePath("/tmp/c", "https://www2.census.gov/x/sub-est2023.csv")
	b := cachePath("/tmp/c", "https://www2.census.gov/x/sub-est2023.csv")
	c := cachePath("/tmp/c", "https://www2.census.gov/x/sub-est2022.csv")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, ".csv", filepath.Ext(a))
}
