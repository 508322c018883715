// Package query resolves free-text area searches, population ranges, and
// status filters against a census table.
package query

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
)

// Range sentinels accepted from callers in place of numbers.
const (
	MinToken = "Min"
	MaxToken = "Max"
)

// MaxPopulation is the ceiling substituted for MaxToken.
const MaxPopulation int64 = 1_000_000_000_000

// Params is a parsed filter request.
type Params struct {
	Query    string
	Min      int64
	Max      int64
	Statuses []string // empty means any status
}

// ParseParams parses raw caller tokens. minTok and maxTok accept MinToken and
// MaxToken respectively and may contain thousands separators. statTok is a
// comma-separated status list.
func ParseParams(q, minTok, maxTok, statTok string) (Params, error) {
	minPop, err := parseBound(minTok, MinToken, 0)
	if err != nil {
		return Params{}, eris.Wrap(err, "query: min population")
	}
	maxPop, err := parseBound(maxTok, MaxToken, MaxPopulation)
	if err != nil {
		return Params{}, eris.Wrap(err, "query: max population")
	}
	return Params{
		Query:    q,
		Min:      minPop,
		Max:      maxPop,
		Statuses: ParseStatuses(statTok),
	}, nil
}

func parseBound(tok, sentinel string, sentinelValue int64) (int64, error) {
	if tok == sentinel {
		return sentinelValue, nil
	}
	clean := strings.ReplaceAll(tok, ",", "")
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(census.ErrInvalidArgument, "malformed population bound %q", tok)
	}
	return n, nil
}

// ParseStatuses splits a comma-separated status list. Tokens are kept exactly
// as given, so an empty token selects rows with an empty status. An empty
// string yields nil (no filter).
func ParseStatuses(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Filter returns the records whose name contains p.Query (case-insensitive),
// whose current-year population is within [p.Min, p.Max], and whose status is
// in p.Statuses when that is non-empty. Results keep table order. An empty
// query or table yields an empty, non-nil slice.
func Filter(t *census.Table, p Params) []census.AreaRecord {
	out := []census.AreaRecord{}
	if p.Query == "" || t.Len() == 0 {
		return out
	}

	needle := census.Fold(p.Query)
	keep := func(r census.AreaRecord) bool {
		if !r.NameContains(needle) {
			return false
		}
		pop, ok := r.CurrentPopulation()
		return ok && pop >= p.Min && pop <= p.Max
	}

	if len(p.Statuses) > 0 {
		it := t.RowsWithStatus(p.Statuses...).Iterator()
		for it.HasNext() {
			if r := t.At(int(it.Next())); keep(r) {
				out = append(out, r)
			}
		}
		return out
	}

	for i := range t.Len() {
		if r := t.At(i); keep(r) {
			out = append(out, r)
		}
	}
	return out
}
