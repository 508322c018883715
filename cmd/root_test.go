package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/config"
	"github.com/sells-group/popmap/internal/ingest"
	"github.com/sells-group/popmap/internal/store"
)

const placesCSV = `Geographic_Area,Status,Population,Latitude,Longitude
Illinois state,State,12549689,40.0,-89.0
"Sangamon County, Illinois",County,193000,39.76,-89.66
"Springfield city, Illinois",City,114000,39.78,-89.65
"Chatham village, Illinois",Village,14000,39.67,-89.7
Nowhere,City,5,,
`

// setupWorkspace chdirs into a temp dir holding places.csv and a config.yaml
// with the given extra YAML appended, and resets command flags.
func setupWorkspace(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	require.NoError(t, os.WriteFile(filepath.Join(dir, "places.csv"), []byte(placesCSV), 0o644))
	yaml := `data:
  current_year: 2023
  sources:
    - path: places.csv
      layout: upload
log:
  level: error
` + extra
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	searchMin, searchMax, searchStatus, searchJSON = "Min", "Max", "", false
	estimateFile, estimatePairs = "", nil
	loadPersist = false
	snapshotsLimit = 20
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "search", "lookup", "areas", "estimate", "load", "snapshots"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "popmap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAreasCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range areasCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"states", "counties", "cities"} {
		assert.True(t, names[name], "areas should have subcommand %q", name)
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmdName string
		flag    string
		def     string
	}{
		{"serve", "port", "0"},
		{"search", "min", "Min"},
		{"search", "max", "Max"},
		{"search", "status", ""},
		{"search", "json", "false"},
		{"estimate", "file", ""},
		{"estimate", "pair", "[]"},
		{"load", "persist", "false"},
		{"snapshots", "limit", "20"},
	}
	for _, tt := range tests {
		t.Run(tt.cmdName+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmdName})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "%s should have --%s", tt.cmdName, tt.flag)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestSourcesFromConfig(t *testing.T) {
	got := sourcesFromConfig(config.DataConfig{
		Sources: []config.SourceConfig{{Path: "combined.xlsx", Layout: "combined", SkipRows: 3, Sheet: "Data"}},
		Paths:   []string{"extra.csv"},
	})
	assert.Equal(t, []ingest.Source{
		{Path: "combined.xlsx", Layout: ingest.LayoutCombined, SkipRows: 3, Sheet: "Data"},
		{Path: "extra.csv", Layout: ingest.LayoutAuto},
	}, got)
}

func TestNewFetcher(t *testing.T) {
	assert.NotNil(t, newFetcher(config.FetchConfig{UserAgent: "x", TimeoutSecs: 5, MaxRetries: 1, RatePerSec: 0.5}))
	assert.NotNil(t, newFetcher(config.FetchConfig{}))
}

func TestParsePairs(t *testing.T) {
	rels, err := parsePairs([]string{"springfield=50", " Clark County = 12.5 "})
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "springfield", rels[0].Area)
	assert.InDelta(t, 50.0, rels[0].Percentage, 1e-9)
	assert.Equal(t, "Clark County", rels[1].Area)
	assert.InDelta(t, 12.5, rels[1].Percentage, 1e-9)

	_, err = parsePairs([]string{"springfield"})
	assert.Error(t, err)
	_, err = parsePairs([]string{"springfield=half"})
	assert.Error(t, err)

	for _, p := range []string{"Springfield=NaN", "Springfield=Inf", "Springfield=-Infinity"} {
		_, err = parsePairs([]string{p})
		require.Error(t, err, p)
		assert.True(t, eris.Is(err, census.ErrInvalidArgument), p)
	}
}

func TestFormatAreas(t *testing.T) {
	var buf bytes.Buffer
	formatAreas(&buf, []census.AreaRecord{
		{Name: "Springfield city, Illinois", Status: "City"},
	}, 2023)
	out := buf.String()
	assert.Contains(t, out, "AREA")
	assert.Contains(t, out, "2023 POPULATION")
	assert.Contains(t, out, "Springfield city, Illinois")
	assert.Regexp(t, `City\s+-\n`, out, "records without a current population show a dash")
}

func TestFormatSnapshots(t *testing.T) {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatSnapshots(&buf, []store.SnapshotInfo{
		{ID: "snap-1", Source: strings.Repeat("s", 60), CurrentYear: 2023, Rows: 3, LoadedAt: at, SavedAt: at},
	})
	out := buf.String()
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "snap-1")
	assert.Contains(t, out, "2026-10-01 12:00")
	assert.Contains(t, out, "...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
