package fetcher

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Columns appended to geometry-bearing datasets.
const (
	LatitudeColumn  = "Latitude"
	LongitudeColumn = "Longitude"
)

// ReadGeoJSON reads a FeatureCollection. Each feature becomes one row holding
// its properties (columns sorted by name) followed by Latitude and Longitude:
// the point itself, or the centroid for any other geometry. Features without a
// usable geometry get blank coordinates.
func ReadGeoJSON(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: read")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geojson: decode feature collection")
	}

	keySet := make(map[string]struct{})
	for _, f := range fc.Features {
		for k := range f.Properties {
			if k == LatitudeColumn || k == LongitudeColumn {
				continue
			}
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ds := &Dataset{Header: append(append([]string{}, keys...), LatitudeColumn, LongitudeColumn)}
	var noGeom int
	for _, f := range fc.Features {
		row := make([]string, 0, len(ds.Header))
		for _, k := range keys {
			row = append(row, propertyString(f.Properties[k]))
		}
		lat, lon, ok := locate(f.Geometry)
		if ok {
			row = append(row, formatFloat(lat), formatFloat(lon))
		} else {
			noGeom++
			row = append(row, "", "")
		}
		ds.Rows = append(ds.Rows, row)
	}

	if noGeom > 0 {
		zap.L().Debug("geojson: features without usable geometry", zap.Int("count", noGeom))
	}
	return ds, nil
}

// locate returns latitude and longitude for g: the coordinates of a point or
// the centroid of anything else.
func locate(g geom.T) (lat, lon float64, ok bool) {
	if g == nil || len(g.FlatCoords()) < 2 {
		return 0, 0, false
	}
	if p, isPoint := g.(*geom.Point); isPoint {
		return p.Y(), p.X(), true
	}
	c, err := xy.Centroid(g)
	if err != nil || len(c) < 2 {
		return 0, 0, false
	}
	return c[1], c[0], true
}

func propertyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
