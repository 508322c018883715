package fetcher

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ReadShapefile reads a shapefile's attribute table plus a point location per
// shape (centroid for polygons and lines). path may be a .shp or a .zip
// archive holding one, as Census TIGER/Line files are published.
func ReadShapefile(path string) (*Dataset, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		dir, err := os.MkdirTemp("", "popmap-shp-*")
		if err != nil {
			return nil, eris.Wrap(err, "shapefile: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		shpPath, err := ExtractShapefile(path, dir)
		if err != nil {
			return nil, err
		}
		path = shpPath
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	ds := &Dataset{Header: make([]string, 0, len(fields)+2)}
	for _, f := range fields {
		ds.Header = append(ds.Header, strings.TrimRight(f.String(), "\x00"))
	}
	ds.Header = append(ds.Header, LatitudeColumn, LongitudeColumn)

	var noGeom int
	for reader.Next() {
		_, shape := reader.Shape()

		row := make([]string, 0, len(ds.Header))
		for i := range fields {
			row = append(row, strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00")))
		}

		lat, lon, ok := locate(shapeGeometry(shape))
		if ok {
			row = append(row, formatFloat(lat), formatFloat(lon))
		} else {
			noGeom++
			row = append(row, "", "")
		}
		ds.Rows = append(ds.Rows, row)
	}

	if noGeom > 0 {
		zap.L().Debug("shapefile: records without usable geometry",
			zap.String("path", path),
			zap.Int("count", noGeom),
		)
	}
	return ds, nil
}

// shapeGeometry converts a go-shp shape to a go-geom geometry, or nil for
// unsupported shapes.
func shapeGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.Polygon:
		return polygonGeometry(s.NumParts, s.Parts, s.Points)
	case *shp.PolyLine:
		return lineGeometry(s.NumParts, s.Parts, s.Points)
	default:
		return nil
	}
}

// partBounds returns the [start, end) point range of part i.
func partBounds(i, numParts int32, parts []int32, npoints int) (int32, int32) {
	start := parts[i]
	end := int32(npoints)
	if i+1 < numParts {
		end = parts[i+1]
	}
	return start, end
}

func polygonGeometry(numParts int32, parts []int32, points []shp.Point) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for i := range numParts {
		start, end := partBounds(i, numParts, parts, len(points))
		ring := geom.NewLinearRingFlat(geom.XY, flatPoints(points[start:end]))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func lineGeometry(numParts int32, parts []int32, points []shp.Point) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY)
	for i := range numParts {
		start, end := partBounds(i, numParts, parts, len(points))
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flatPoints(points[start:end]))); err != nil {
			continue
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
