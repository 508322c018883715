// Package fetcher reads area datasets from XLSX, CSV, GeoJSON, shapefile, and
// Parquet files, and downloads remote sources over HTTP.
package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Dataset is a header row plus data rows. Every source format reduces to it.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the header column with the given name, or -1.
// Names are compared after trimming surrounding space.
func (d *Dataset) Column(name string) int {
	for i, h := range d.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Cell returns row[col] trimmed, or "" when col is out of range.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Format names a supported source format.
type Format string

// Supported formats.
const (
	FormatXLSX      Format = "xlsx"
	FormatCSV       Format = "csv"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
	FormatParquet   Format = "parquet"
)

// DetectFormat picks a format from the file extension. A .zip is treated as a
// zipped shapefile.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".shp", ".zip":
		return FormatShapefile, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}
}

// Options controls how Read decodes a source.
type Options struct {
	Format    Format // detected from the extension when empty
	Sheet     string // XLSX sheet name; first sheet when empty
	SkipRows  int    // preamble rows before the header (XLSX, CSV)
	Charset   string // CSV text encoding label; UTF-8 when empty
	Delimiter rune   // CSV field delimiter; ',' when zero
}

// Read opens a local file and reduces it to a Dataset.
func Read(ctx context.Context, path string, opts Options) (*Dataset, error) {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatXLSX:
		return ReadXLSX(path, XLSXOptions{SheetName: opts.Sheet, SkipRows: opts.SkipRows})
	case FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "csv: open file")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f, opts.SkipRows, CSVOptions{
			Delimiter: opts.Delimiter,
			Charset:   opts.Charset,
			TrimSpace: true,
		})
	case FormatGeoJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "geojson: open file")
		}
		defer f.Close() //nolint:errcheck
		return ReadGeoJSON(f)
	case FormatShapefile:
		return ReadShapefile(path)
	case FormatParquet:
		return ReadParquet(ctx, path)
	default:
		return nil, eris.Errorf("fetcher: unsupported format %q", format)
	}
}
