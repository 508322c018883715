package ingest

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/fetcher"
)

// Upload column names. GeoJSON properties are matched case-insensitively, so
// "name" and "population" map onto these as well.
var uploadColumns = []string{"Geographic_Area", "Status", "Population"}

// ParseUpload maps an uploaded .csv or .geojson file onto area records using
// the upload layout. GeoJSON features without usable coordinates are skipped
// rather than reported; missing properties read as blank.
func ParseUpload(ctx context.Context, filename string, r io.Reader, year int) (*Mapped, error) {
	var (
		ds  *fetcher.Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		ds, err = fetcher.ReadCSV(ctx, r, 0, fetcher.CSVOptions{TrimSpace: true})
		if err != nil {
			return nil, eris.Wrapf(census.ErrInvalidArgument, "upload: %v", err)
		}
	case ".geojson":
		ds, err = fetcher.ReadGeoJSON(r)
		if err != nil {
			return nil, eris.Wrapf(census.ErrInvalidArgument, "upload: %v", err)
		}
		ds = located(ds)
		for _, col := range uploadColumns {
			if find(ds.Header, []string{col, geojsonAlias(col)}) < 0 {
				ds.Header = append(ds.Header, col)
			}
		}
	default:
		return nil, eris.Wrapf(census.ErrInvalidArgument, "invalid file type %q: use .csv or .geojson", filepath.Ext(filename))
	}

	return MapRecords(ds, MapOptions{Layout: LayoutUpload, Source: filename, Year: year})
}

func geojsonAlias(col string) string {
	if col == "Geographic_Area" {
		return "name"
	}
	return col
}

// located drops rows with a blank latitude or longitude.
func located(ds *fetcher.Dataset) *fetcher.Dataset {
	lat, lon := ds.Column(fetcher.LatitudeColumn), ds.Column(fetcher.LongitudeColumn)
	out := &fetcher.Dataset{Header: ds.Header, Rows: make([][]string, 0, len(ds.Rows))}
	for _, row := range ds.Rows {
		if fetcher.Cell(row, lat) == "" || fetcher.Cell(row, lon) == "" {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
