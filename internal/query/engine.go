package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/snapshot"
)

// Engine runs queries against whatever table the snapshot handle currently serves.
type Engine struct {
	handle *snapshot.Handle
	cache  *ResultCache
}

// NewEngine creates an engine over h. cache may be nil. The cache is purged
// whenever h swaps tables.
func NewEngine(h *snapshot.Handle, cache *ResultCache) *Engine {
	if cache != nil {
		h.OnSwap(func(*census.Table) { cache.Purge() })
	}
	return &Engine{handle: h, cache: cache}
}

// Table returns the served table or ErrDataUnavailable.
func (e *Engine) Table() (*census.Table, error) {
	return e.handle.Current()
}

// CacheStats reports result cache statistics.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// All returns every record in table order. The records are read-only; see
// census.Table.Records.
func (e *Engine) All() ([]census.AreaRecord, error) {
	t, err := e.handle.Current()
	if err != nil {
		return nil, err
	}
	return t.Records(), nil
}

// Search parses raw tokens and filters. See ParseParams and Filter.
func (e *Engine) Search(q, minTok, maxTok, statTok string) ([]census.AreaRecord, error) {
	p, err := ParseParams(q, minTok, maxTok, statTok)
	if err != nil {
		return nil, err
	}
	return e.Filter(p)
}

// Filter runs Filter against the current table, consulting the result cache.
func (e *Engine) Filter(p Params) ([]census.AreaRecord, error) {
	t, err := e.handle.Current()
	if err != nil {
		return nil, err
	}
	if p.Query == "" {
		return []census.AreaRecord{}, nil
	}

	key := cacheKey(t.ID(), p)
	if recs, ok := e.cache.Get(key); ok {
		return recs, nil
	}
	recs := Filter(t, p)
	e.cache.Put(key, recs)
	return recs, nil
}

// Lookup resolves one area by substring. See Lookup.
func (e *Engine) Lookup(s string) (census.AreaRecord, error) {
	t, err := e.handle.Current()
	if err != nil {
		return census.AreaRecord{}, err
	}
	return Lookup(t, s)
}

// States lists state-level names. See States.
func (e *Engine) States() ([]string, error) {
	t, err := e.handle.Current()
	if err != nil {
		return nil, err
	}
	return States(t), nil
}

// Counties lists county names within state. See Counties.
func (e *Engine) Counties(state string) ([]string, error) {
	t, err := e.handle.Current()
	if err != nil {
		return nil, err
	}
	return Counties(t, state), nil
}

// Cities lists city names within state or county. See Cities.
func (e *Engine) Cities(state, county string) ([]string, error) {
	t, err := e.handle.Current()
	if err != nil {
		return nil, err
	}
	return Cities(t, state, county), nil
}

func cacheKey(tableID string, p Params) string {
	statuses := append([]string(nil), p.Statuses...)
	sort.Strings(statuses)

	var sb strings.Builder
	sb.WriteString(tableID)
	sb.WriteByte(0)
	sb.WriteString(census.Fold(p.Query))
	sb.WriteByte(0)
	sb.WriteString(strconv.FormatInt(p.Min, 10))
	sb.WriteByte(0)
	sb.WriteString(strconv.FormatInt(p.Max, 10))
	for _, s := range statuses {
		sb.WriteByte(0)
		sb.WriteString(s)
	}
	return sb.String()
}
