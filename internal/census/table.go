package census

import (
	"sort"
	"strings"
	"time"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// TableOptions configures NewTable.
type TableOptions struct {
	ID          string    // default: random uuid
	Source      string    // human-readable origin, e.g. a file path
	CurrentYear int       // default: largest year present in any record
	LoadedAt    time.Time // default: now
}

// Table is an immutable, ordered set of area records. It is safe for
// concurrent readers and is never mutated after NewTable returns.
type Table struct {
	id          string
	source      string
	currentYear int
	loadedAt    time.Time
	records     []AreaRecord
	byStatus    map[string]*roaring.Bitmap
}

// NewTable validates records and builds a table. It takes ownership of the
// slice and the maps inside each record; callers must not modify them after.
func NewTable(records []AreaRecord, opts TableOptions) (*Table, error) {
	for i, r := range records {
		if err := validate(r); err != nil {
			return nil, eris.Wrapf(err, "census: row %d (%q)", i, r.Name)
		}
	}

	year := opts.CurrentYear
	if year <= 0 {
		year = latestYear(records)
	}

	t := &Table{
		id:          opts.ID,
		source:      opts.Source,
		currentYear: year,
		loadedAt:    opts.LoadedAt,
		records:     records,
		byStatus:    make(map[string]*roaring.Bitmap),
	}
	if t.id == "" {
		t.id = uuid.New().String()
	}
	if t.loadedAt.IsZero() {
		t.loadedAt = time.Now().UTC()
	}

	fold := cases.Fold()
	for i := range t.records {
		r := &t.records[i]
		r.folded = fold.String(r.Name)
		r.current, r.hasCurrent = r.Population[year]

		bm, ok := t.byStatus[r.Status]
		if !ok {
			bm = roaring.New()
			t.byStatus[r.Status] = bm
		}
		bm.Add(uint32(i))
	}

	return t, nil
}

func validate(r AreaRecord) error {
	if strings.TrimSpace(r.Name) == "" {
		return eris.Wrap(ErrInvalidArgument, "empty name")
	}
	if r.EstimatedBase < 0 {
		return eris.Wrapf(ErrInvalidArgument, "negative estimated base %d", r.EstimatedBase)
	}
	for y, n := range r.Population {
		if y <= 0 {
			return eris.Wrapf(ErrInvalidArgument, "invalid year %d", y)
		}
		if n < 0 {
			return eris.Wrapf(ErrInvalidArgument, "negative population %d for %d", n, y)
		}
	}
	for c, n := range r.Demographics {
		if n < 0 {
			return eris.Wrapf(ErrInvalidArgument, "negative %s count %d", c, n)
		}
	}
	if h := r.Housing; h != nil && (h.TotalUnits < 0 || h.OwnerOccupied < 0 || h.RenterOccupied < 0) {
		return eris.Wrap(ErrInvalidArgument, "negative housing count")
	}
	if r.MedianHouseholdIncome != nil && *r.MedianHouseholdIncome < 0 {
		return eris.Wrap(ErrInvalidArgument, "negative median household income")
	}
	return nil
}

func latestYear(records []AreaRecord) int {
	var year int
	for _, r := range records {
		for y := range r.Population {
			if y > year {
				year = y
			}
		}
	}
	return year
}

// ID uniquely identifies this table build.
func (t *Table) ID() string { return t.id }

// Source describes where the table was loaded from.
func (t *Table) Source() string { return t.source }

// CurrentYear is the year used for range filtering and as the estimate base.
func (t *Table) CurrentYear() int { return t.currentYear }

// LoadedAt is when the table was built.
func (t *Table) LoadedAt() time.Time { return t.loadedAt }

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// At returns the record at row i.
func (t *Table) At(i int) AreaRecord { return t.records[i] }

// Records returns a new slice of the records in table order. The copy is
// shallow: records share their maps and pointers with the table, so callers
// must treat them as read-only.
func (t *Table) Records() []AreaRecord {
	out := make([]AreaRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Statuses returns the distinct status values, sorted.
func (t *Table) Statuses() []string {
	out := make([]string, 0, len(t.byStatus))
	for s := range t.byStatus {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RowsWithStatus returns the ascending row numbers whose status is one of
// statuses. The returned bitmap is a fresh copy owned by the caller.
func (t *Table) RowsWithStatus(statuses ...string) *roaring.Bitmap {
	out := roaring.New()
	for _, s := range statuses {
		if bm, ok := t.byStatus[s]; ok {
			out.Or(bm)
		}
	}
	return out
}

// Fold applies Unicode case folding for case-insensitive comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// NameContains reports whether the record name contains needle, which must
// already be case folded with Fold.
func (r AreaRecord) NameContains(needle string) bool {
	return strings.Contains(r.folded, needle)
}
