// Package census defines the typed area records and the immutable table they live in.
package census

import (
	"math"
	"sort"
	"strconv"
)

// Category is a demographic group tracked per area.
type Category string

const (
	CategoryWhite          Category = "White"
	CategoryBlack          Category = "Black"
	CategoryAsian          Category = "Asian"
	CategoryNativeAmerican Category = "Native_American"
	CategoryHispanicLatino Category = "Hispanic_Latino"
)

// Categories lists every demographic category in output order.
var Categories = []Category{
	CategoryWhite,
	CategoryBlack,
	CategoryAsian,
	CategoryNativeAmerican,
	CategoryHispanicLatino,
}

// PopulationKey returns the field name holding the category count, e.g. "White_Population".
func (c Category) PopulationKey() string { return string(c) + "_Population" }

// PercentageKey returns the field name holding the derived share, e.g. "White_Percentage".
func (c Category) PercentageKey() string { return string(c) + "_Percentage" }

// Housing holds housing unit counts for an area.
type Housing struct {
	TotalUnits     int64 `json:"total_units"`
	OwnerOccupied  int64 `json:"owner_occupied"`
	RenterOccupied int64 `json:"renter_occupied"`
}

// Location is a point used to place an area on the map.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AreaRecord is one geographic area (nation, state, county, city, or tract).
type AreaRecord struct {
	Name                  string             `json:"name"`
	Status                string             `json:"status"`
	EstimatedBase         int64              `json:"estimated_base"`
	Population            map[int]int64      `json:"population"`
	Demographics          map[Category]int64 `json:"demographics,omitempty"`
	Housing               *Housing           `json:"housing,omitempty"`
	MedianHouseholdIncome *int64             `json:"median_household_income,omitempty"`
	Location              *Location          `json:"location,omitempty"`

	// Set by NewTable.
	current    int64
	hasCurrent bool
	folded     string
}

// CurrentPopulation returns the population for the table's current year.
// The second return is false when the record has no value for that year.
func (r AreaRecord) CurrentPopulation() (int64, bool) {
	return r.current, r.hasCurrent
}

// Years returns the years with a population value, ascending.
func (r AreaRecord) Years() []int {
	years := make([]int, 0, len(r.Population))
	for y := range r.Population {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// DemographicPercentage returns the category's share of the current population
// in percent, rounded to two decimals. Zero when the population is zero.
func (r AreaRecord) DemographicPercentage(c Category) float64 {
	return Percent(float64(r.Demographics[c]), float64(r.current))
}

// Fields renders the record as a plain field map using the dataset's column
// names. Values are only string, int64, or float64. Absent optional fields are
// omitted.
func (r AreaRecord) Fields() map[string]any {
	m := map[string]any{
		"Geographic_Area": r.Name,
		"Status":          r.Status,
		"Estimated_Base":  r.EstimatedBase,
	}
	for y, n := range r.Population {
		m[strconv.Itoa(y)+"_Population"] = n
	}
	if r.Demographics != nil {
		for _, c := range Categories {
			n, ok := r.Demographics[c]
			if !ok {
				continue
			}
			m[c.PopulationKey()] = n
			m[c.PercentageKey()] = r.DemographicPercentage(c)
		}
	}
	if r.Housing != nil {
		m["Total_Housing_Units"] = r.Housing.TotalUnits
		m["Owner_Occupied_Units"] = r.Housing.OwnerOccupied
		m["Renter_Occupied_Units"] = r.Housing.RenterOccupied
	}
	if r.MedianHouseholdIncome != nil {
		m["Median_Household_Income"] = *r.MedianHouseholdIncome
	}
	if r.Location != nil {
		m["Latitude"] = r.Location.Latitude
		m["Longitude"] = r.Location.Longitude
	}
	return m
}

// Percent returns part/whole*100 rounded to two decimals, or 0 when whole <= 0.
func Percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(part/whole*100*100) / 100
}
