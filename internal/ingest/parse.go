// Package ingest turns source datasets into census tables and keeps the
// served table fresh.
package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
)

// ParseCount parses a non-negative count cell. A blank cell returns ok=false.
// Thousands separators are stripped and decimal or exponent forms (as
// spreadsheets render numeric cells) are truncated toward zero.
func ParseCount(s string) (n int64, ok bool, err error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false, nil
	}

	n, err = strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
			return 0, false, eris.Wrapf(census.ErrInvalidArgument, "malformed count %q", s)
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, false, eris.Wrapf(census.ErrInvalidArgument, "negative count %q", s)
	}
	return n, true, nil
}

// ParseCoordinate parses a latitude or longitude cell. A blank cell returns ok=false.
func ParseCoordinate(s string, limit float64) (f float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err = strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.Abs(f) > limit {
		return 0, false, eris.Wrapf(census.ErrInvalidArgument, "malformed coordinate %q", s)
	}
	return f, true, nil
}
