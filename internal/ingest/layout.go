package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/fetcher"
)

// Layout names how a dataset's columns map onto area records.
type Layout string

const (
	// LayoutAuto picks a layout from the header.
	LayoutAuto Layout = ""
	// LayoutCombined is the "Combined Population Data" workbook: columns are
	// positional (area, status, estimates base, then one population column
	// per year starting at CombinedFirstYear) whatever the header says.
	LayoutCombined Layout = "combined"
	// LayoutCensus is a header-driven dataset with named count columns.
	LayoutCensus Layout = "census"
	// LayoutUpload is a user upload: Geographic_Area, Status, Population,
	// Latitude, and Longitude are required.
	LayoutUpload Layout = "upload"
)

// CombinedFirstYear is the year of the first population column in the
// combined workbook.
const CombinedFirstYear = 2020

// DefaultYear receives unyeared population columns when no year is configured.
const DefaultYear = 2023

// DefaultStatus is assigned by the census layout when there is no Status column.
const DefaultStatus = "City"

var yearColumn = regexp.MustCompile(`^(\d{4})_Population$`)

// Column aliases, compared case-insensitively.
var (
	nameAliases       = []string{"Geographic_Area", "Geographic Area", "NAME", "Name", "Area"}
	statusAliases     = []string{"Status", "LSAD_Name", "Type"}
	baseAliases       = []string{"Estimated_Base", "Estimates_Base", "ESTIMATESBASE"}
	totalAliases      = []string{"Total_Population", "Population", "POP"}
	householdsIncome  = []string{"Median_Household_Income", "MedianHouseholdIncome"}
	totalUnitsAliases = []string{"Total_Housing_Units", "Housing_Units"}
	ownerAliases      = []string{"Owner_Occupied_Units", "Owner_Occupied"}
	renterAliases     = []string{"Renter_Occupied_Units", "Renter_Occupied"}
	latAliases        = []string{fetcher.LatitudeColumn, "Lat", "INTPTLAT"}
	lonAliases        = []string{fetcher.LongitudeColumn, "Lon", "Lng", "INTPTLON"}

	demographicAliases = map[census.Category][]string{
		census.CategoryWhite:          {"White_Population", "White_Alone", "White"},
		census.CategoryBlack:          {"Black_Population", "Black_Alone", "Black"},
		census.CategoryAsian:          {"Asian_Population", "Asian_Alone", "Asian"},
		census.CategoryNativeAmerican: {"Native_American_Population", "American_Indian_Alone", "Native_American"},
		census.CategoryHispanicLatino: {"Hispanic_Latino_Population", "Hispanic_Latino", "Hispanic"},
	}
)

// RowError describes one dataset row that could not become a record. Row is
// the zero-based data row index within its source.
type RowError struct {
	Source string
	Row    int
	Name   string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d (%q): %v", e.Source, e.Row, e.Name, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// MapOptions configures MapRecords.
type MapOptions struct {
	Layout Layout
	Source string // used in row errors
	Year   int    // year for unyeared population columns; DefaultYear when zero
}

// Mapped is the outcome of MapRecords. Rows listed in RowErrors were dropped.
type Mapped struct {
	Layout    Layout
	Records   []census.AreaRecord
	RowErrors []*RowError
}

// columns holds the resolved column index for every field; -1 when absent.
type columns struct {
	name, status, base, total    int
	years                        map[int]int
	demo                         map[census.Category]int
	units, owner, renter, income int
	lat, lon                     int

	// legacyYears receive the unyeared total when there are no year columns.
	legacyYears     []int
	defaultStatus   string
	coerceTotal     bool
	requireLocation bool
}

// DetectLayout guesses the layout from the header.
func DetectLayout(ds *fetcher.Dataset) Layout {
	has := func(aliases []string) bool { return find(ds.Header, aliases) >= 0 }
	if has(nameAliases) && has(statusAliases) && has([]string{"Population"}) && has(latAliases) && has(lonAliases) {
		return LayoutUpload
	}
	if has(nameAliases) && (has(totalAliases) || len(findYears(ds.Header)) > 0) {
		return LayoutCensus
	}
	return LayoutCombined
}

// MapRecords converts dataset rows into area records. Header problems (missing
// required columns) fail the whole dataset with ErrMissingArgument; bad cells
// only drop their row.
func MapRecords(ds *fetcher.Dataset, opts MapOptions) (*Mapped, error) {
	layout := opts.Layout
	if layout == LayoutAuto {
		layout = DetectLayout(ds)
	}
	year := opts.Year
	if year <= 0 {
		year = DefaultYear
	}

	cols, err := resolveColumns(ds.Header, layout, year)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: %s", opts.Source)
	}

	out := &Mapped{Layout: layout, Records: make([]census.AreaRecord, 0, len(ds.Rows))}
	for i, row := range ds.Rows {
		rec, err := cols.record(row)
		if err != nil {
			out.RowErrors = append(out.RowErrors, &RowError{
				Source: opts.Source,
				Row:    i,
				Name:   fetcher.Cell(row, cols.name),
				Err:    err,
			})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func resolveColumns(header []string, layout Layout, year int) (*columns, error) {
	c := &columns{
		name: -1, status: -1, base: -1, total: -1,
		units: -1, owner: -1, renter: -1, income: -1,
		lat: -1, lon: -1,
		years: map[int]int{},
		demo:  map[census.Category]int{},
	}

	switch layout {
	case LayoutCombined:
		if len(header) < 4 {
			return nil, eris.Wrapf(census.ErrMissingArgument,
				"combined layout needs area, status, estimates base and at least one year column, got %d columns", len(header))
		}
		c.name, c.status, c.base = 0, 1, 2
		for i := 3; i < len(header); i++ {
			c.years[CombinedFirstYear+i-3] = i
		}
		return c, nil

	case LayoutUpload:
		c.name = find(header, nameAliases)
		c.status = find(header, statusAliases)
		c.total = find(header, []string{"Population"})
		c.lat = find(header, latAliases)
		c.lon = find(header, lonAliases)
		var missing []string
		for _, req := range []struct {
			col  int
			name string
		}{
			{c.name, "Geographic_Area"},
			{c.status, "Status"},
			{c.total, "Population"},
			{c.lat, fetcher.LatitudeColumn},
			{c.lon, fetcher.LongitudeColumn},
		} {
			if req.col < 0 {
				missing = append(missing, req.name)
			}
		}
		if len(missing) > 0 {
			return nil, eris.Wrapf(census.ErrMissingArgument, "missing required columns: %s", strings.Join(missing, ", "))
		}
		c.legacyYears = []int{year}
		c.coerceTotal = true
		c.requireLocation = true
		c.resolveOptional(header)
		return c, nil

	case LayoutCensus:
		c.name = find(header, nameAliases)
		if c.name < 0 {
			return nil, eris.Wrap(census.ErrMissingArgument, "missing required columns: Geographic_Area")
		}
		c.status = find(header, statusAliases)
		c.base = find(header, baseAliases)
		c.total = find(header, totalAliases)
		c.years = findYears(header)
		if len(c.years) == 0 {
			if c.total < 0 {
				return nil, eris.Wrap(census.ErrMissingArgument, "missing population columns: need <year>_Population or Total_Population")
			}
			c.legacyYears = []int{year}
			if year > CombinedFirstYear {
				c.legacyYears = c.legacyYears[:0]
				for y := CombinedFirstYear; y <= year; y++ {
					c.legacyYears = append(c.legacyYears, y)
				}
			}
		}
		c.defaultStatus = DefaultStatus
		c.lat = find(header, latAliases)
		c.lon = find(header, lonAliases)
		c.resolveOptional(header)
		return c, nil

	default:
		return nil, eris.Wrapf(census.ErrInvalidArgument, "unknown layout %q", layout)
	}
}

func (c *columns) resolveOptional(header []string) {
	for cat, aliases := range demographicAliases {
		if i := find(header, aliases); i >= 0 {
			c.demo[cat] = i
		}
	}
	c.units = find(header, totalUnitsAliases)
	c.owner = find(header, ownerAliases)
	c.renter = find(header, renterAliases)
	c.income = find(header, householdsIncome)
	if c.base < 0 {
		c.base = find(header, baseAliases)
	}
}

func (c *columns) record(row []string) (census.AreaRecord, error) {
	rec := census.AreaRecord{
		Name:       fetcher.Cell(row, c.name),
		Status:     fetcher.Cell(row, c.status),
		Population: make(map[int]int64, len(c.years)+len(c.legacyYears)),
	}
	if rec.Name == "" {
		return rec, eris.Wrap(census.ErrInvalidArgument, "empty area name")
	}
	if c.status < 0 {
		rec.Status = c.defaultStatus
	}

	count := func(col int, field string) (int64, bool, error) {
		n, ok, err := ParseCount(fetcher.Cell(row, col))
		if err != nil {
			return 0, false, eris.Wrap(err, field)
		}
		return n, ok, nil
	}

	for y, col := range c.years {
		n, ok, err := count(col, strconv.Itoa(y)+"_Population")
		if err != nil {
			return rec, err
		}
		if ok {
			rec.Population[y] = n
		}
	}

	var total int64
	var hasTotal bool
	if c.total >= 0 {
		n, ok, err := count(c.total, "population")
		switch {
		case err != nil && c.coerceTotal:
			ok = true
		case err != nil:
			return rec, err
		case !ok && c.coerceTotal:
			ok = true
		}
		total, hasTotal = n, ok
	}
	if hasTotal {
		for _, y := range c.legacyYears {
			rec.Population[y] = total
		}
	}

	if c.base >= 0 {
		n, _, err := count(c.base, "estimates base")
		if err != nil {
			return rec, err
		}
		rec.EstimatedBase = n
	} else if hasTotal && len(c.legacyYears) > 0 {
		rec.EstimatedBase = total
	}

	for cat, col := range c.demo {
		n, ok, err := count(col, string(cat))
		if err != nil {
			return rec, err
		}
		if ok {
			if rec.Demographics == nil {
				rec.Demographics = make(map[census.Category]int64, len(c.demo))
			}
			rec.Demographics[cat] = n
		}
	}

	if c.units >= 0 || c.owner >= 0 || c.renter >= 0 {
		var h census.Housing
		var present bool
		for _, f := range []struct {
			col   int
			field string
			dst   *int64
		}{
			{c.units, "housing units", &h.TotalUnits},
			{c.owner, "owner occupied", &h.OwnerOccupied},
			{c.renter, "renter occupied", &h.RenterOccupied},
		} {
			if f.col < 0 {
				continue
			}
			n, ok, err := count(f.col, f.field)
			if err != nil {
				return rec, err
			}
			if ok {
				*f.dst = n
				present = true
			}
		}
		if present {
			rec.Housing = &h
		}
	}

	if c.income >= 0 {
		n, ok, err := count(c.income, "median household income")
		if err != nil {
			return rec, err
		}
		if ok {
			rec.MedianHouseholdIncome = &n
		}
	}

	if c.lat >= 0 && c.lon >= 0 {
		lat, latOK, err := ParseCoordinate(fetcher.Cell(row, c.lat), 90)
		if err != nil {
			return rec, eris.Wrap(err, "latitude")
		}
		lon, lonOK, err := ParseCoordinate(fetcher.Cell(row, c.lon), 180)
		if err != nil {
			return rec, eris.Wrap(err, "longitude")
		}
		if latOK && lonOK {
			rec.Location = &census.Location{Latitude: lat, Longitude: lon}
		}
	}
	if c.requireLocation && rec.Location == nil {
		return rec, eris.Wrap(census.ErrMissingArgument, "missing coordinates")
	}

	return rec, nil
}

// find returns the first header index matching any alias, or -1.
func find(header []string, aliases []string) int {
	for _, a := range aliases {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), a) {
				return i
			}
		}
	}
	return -1
}

func findYears(header []string) map[int]int {
	years := make(map[int]int)
	for i, h := range header {
		m := yearColumn.FindStringSubmatch(strings.TrimSpace(h))
		if m == nil {
			continue
		}
		y, err := strconv.Atoi(m[1])
		if err != nil || y <= 0 {
			continue
		}
		if _, dup := years[y]; !dup {
			years[y] = i
		}
	}
	return years
}
