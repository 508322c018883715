package query

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
)

// Words used by the hierarchy heuristics below.
const (
	stateWord  = "state"
	countyWord = "county"
)

// Lookup returns the first record, in table order, whose name contains s
// case-insensitively. It returns ErrNotFound when nothing matches or s is empty.
func Lookup(t *census.Table, s string) (census.AreaRecord, error) {
	if s != "" {
		needle := census.Fold(s)
		for i := range t.Len() {
			if r := t.At(i); r.NameContains(needle) {
				return r, nil
			}
		}
	}
	return census.AreaRecord{}, eris.Wrapf(census.ErrNotFound, "query: no area matching %q", s)
}

// The functions below approximate an administrative hierarchy by substring
// matching on names. They are heuristics: a place literally named
// "Orange County City" is treated as a county, and "United States" as a state.

// States returns the sorted names containing the word "state".
func States(t *census.Table) []string {
	return names(t, func(r census.AreaRecord) bool {
		return r.NameContains(stateWord)
	})
}

// Counties returns the sorted names containing "county" and the state substring.
func Counties(t *census.Table, state string) []string {
	st := census.Fold(state)
	return names(t, func(r census.AreaRecord) bool {
		return r.NameContains(countyWord) && r.NameContains(st)
	})
}

// Cities returns the sorted names that contain neither "county" nor "state"
// and contain either the state or the county substring.
func Cities(t *census.Table, state, county string) []string {
	st, co := census.Fold(state), census.Fold(county)
	return names(t, func(r census.AreaRecord) bool {
		if r.NameContains(countyWord) || r.NameContains(stateWord) {
			return false
		}
		return r.NameContains(st) || r.NameContains(co)
	})
}

func names(t *census.Table, keep func(census.AreaRecord) bool) []string {
	out := []string{}
	for i := range t.Len() {
		if r := t.At(i); keep(r) {
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out
}
