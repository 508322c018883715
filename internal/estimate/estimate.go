// Package estimate builds percentage-weighted population estimates for a
// custom area from the areas that overlap it.
package estimate

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/query"
	"github.com/sells-group/popmap/internal/snapshot"
)

// Method labels every result produced by Estimate.
const Method = "Census-based percentage estimation"

// Relationship says that Percentage percent of the named area falls inside
// the target. Percentages are parts per hundred and need not sum to 100. A
// negative percentage subtracts its area's counts, so contributions and the
// estimate can come out negative.
type Relationship struct {
	Area       string  `json:"area"`
	Percentage float64 `json:"percentage"`
}

// Contribution is one resolved relationship.
type Contribution struct {
	Area           string  `json:"area"`
	ResolvedArea   string  `json:"resolved_area"`
	Percentage     float64 `json:"percentage"`
	BasePopulation int64   `json:"base_population"`
	Contribution   int64   `json:"contribution"`
}

// DemographicTotal is an estimated category count and its share of the
// estimated population.
type DemographicTotal struct {
	Population int64
	Percentage float64
}

// Demographics is keyed by category and renders as flat
// "<Category>_Population" / "<Category>_Percentage" fields.
type Demographics map[census.Category]DemographicTotal

// MarshalJSON implements json.Marshaler.
func (d Demographics) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d)*2)
	for c, v := range d {
		m[c.PopulationKey()] = v.Population
		m[c.PercentageKey()] = v.Percentage
	}
	return json.Marshal(m)
}

// Housing is the estimated housing stock. Rates are percentages.
type Housing struct {
	TotalUnits          int64   `json:"Total_Housing_Units"`
	OwnerOccupied       int64   `json:"Owner_Occupied_Units"`
	RenterOccupied      int64   `json:"Renter_Occupied_Units"`
	OccupancyRate       float64 `json:"Occupancy_Rate"`
	OwnerOccupancyRate  float64 `json:"Owner_Occupancy_Rate"`
	RenterOccupancyRate float64 `json:"Renter_Occupancy_Rate"`
}

// Result is the outcome of an estimate.
type Result struct {
	EstimatedPopulation   int64          `json:"estimated_population"`
	Contributions         []Contribution `json:"contributions"`
	Demographics          Demographics   `json:"demographics,omitempty"`
	Housing               *Housing       `json:"housing,omitempty"`
	MedianHouseholdIncome *int64         `json:"median_household_income,omitempty"`
	CalculationMethod     string         `json:"calculation_method"`
}

// maxCount is 2^63, the first float64 beyond the int64 range.
const maxCount = float64(math.MaxInt64)

// ValidatePercentage rejects NaN and infinite percentages.
func ValidatePercentage(pct float64) error {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return eris.Wrapf(census.ErrInvalidArgument, "estimate: percentage %v is not a finite number", pct)
	}
	return nil
}

// toCount truncates f to int64, failing when f is outside the int64 range.
func toCount(f float64, what string) (int64, error) {
	if math.IsNaN(f) || f >= maxCount || f < -maxCount {
		return 0, eris.Wrapf(census.ErrInvalidArgument, "estimate: %s %g is out of range", what, f)
	}
	return int64(f), nil
}

// Estimate resolves each relationship with a substring lookup and sums the
// weighted current-year populations. Unresolved relationships are skipped.
// Counts accumulate as float64 and are truncated on output. A non-finite
// percentage, or one whose weighted counts overflow int64, is
// ErrInvalidArgument.
func Estimate(t *census.Table, rels []Relationship) (*Result, error) {
	log := zap.L().With(zap.String("component", "estimate"))

	res := &Result{
		Contributions:     []Contribution{},
		CalculationMethod: Method,
	}

	var (
		total         float64
		demo          map[census.Category]float64
		housing       *[3]float64
		incomeWeight  float64
		incomeWeights float64
		hasIncome     bool
	)

	for _, rel := range rels {
		if err := ValidatePercentage(rel.Percentage); err != nil {
			return nil, eris.Wrapf(err, "estimate: relationship %q", rel.Area)
		}
		if rel.Area == "" {
			log.Debug("skipping relationship with empty area")
			continue
		}
		rec, err := query.Lookup(t, rel.Area)
		if err != nil {
			log.Debug("area not resolved, skipping", zap.String("area", rel.Area))
			continue
		}

		pct := rel.Percentage / 100
		base, _ := rec.CurrentPopulation()
		contribution := float64(base) * pct
		n, err := toCount(contribution, "contribution of "+rec.Name)
		if err != nil {
			return nil, err
		}
		total += contribution

		if rec.Demographics != nil {
			if demo == nil {
				demo = make(map[census.Category]float64, len(census.Categories))
			}
			for _, c := range census.Categories {
				if n, ok := rec.Demographics[c]; ok {
					demo[c] += float64(n) * pct
				}
			}
		}
		if rec.Housing != nil {
			if housing == nil {
				housing = &[3]float64{}
			}
			housing[0] += float64(rec.Housing.TotalUnits) * pct
			housing[1] += float64(rec.Housing.OwnerOccupied) * pct
			housing[2] += float64(rec.Housing.RenterOccupied) * pct
		}
		if rec.MedianHouseholdIncome != nil {
			hasIncome = true
			incomeWeight += float64(*rec.MedianHouseholdIncome) * contribution
			incomeWeights += contribution
		}

		res.Contributions = append(res.Contributions, Contribution{
			Area:           rel.Area,
			ResolvedArea:   rec.Name,
			Percentage:     rel.Percentage,
			BasePopulation: base,
			Contribution:   n,
		})
	}

	est, err := toCount(total, "estimated population")
	if err != nil {
		return nil, err
	}
	res.EstimatedPopulation = est

	if demo != nil {
		res.Demographics = make(Demographics, len(census.Categories))
		for _, c := range census.Categories {
			v := demo[c]
			n, err := toCount(v, string(c)+" population")
			if err != nil {
				return nil, err
			}
			res.Demographics[c] = DemographicTotal{
				Population: n,
				Percentage: census.Percent(v, total),
			}
		}
	}

	if housing != nil {
		var units [3]int64
		for i, what := range []string{"housing units", "owner occupied units", "renter occupied units"} {
			n, err := toCount(housing[i], what)
			if err != nil {
				return nil, err
			}
			units[i] = n
		}
		h := &Housing{
			TotalUnits:     units[0],
			OwnerOccupied:  units[1],
			RenterOccupied: units[2],
		}
		occupied := h.OwnerOccupied + h.RenterOccupied
		h.OccupancyRate = census.Percent(float64(occupied), float64(h.TotalUnits))
		h.OwnerOccupancyRate = census.Percent(float64(h.OwnerOccupied), float64(occupied))
		h.RenterOccupancyRate = census.Percent(float64(h.RenterOccupied), float64(occupied))
		res.Housing = h
	}

	if hasIncome {
		var income int64
		if incomeWeights > 0 {
			n, err := toCount(incomeWeight/incomeWeights, "median household income")
			if err != nil {
				return nil, err
			}
			income = n
		}
		res.MedianHouseholdIncome = &income
	}

	log.Debug("estimate computed",
		zap.Int("relationships", len(rels)),
		zap.Int("resolved", len(res.Contributions)),
		zap.Int64("estimated_population", res.EstimatedPopulation),
	)
	return res, nil
}

// Estimator runs estimates against the table currently served by a handle.
type Estimator struct {
	handle *snapshot.Handle
}

// NewEstimator creates an estimator over h.
func NewEstimator(h *snapshot.Handle) *Estimator {
	return &Estimator{handle: h}
}

// Estimate returns ErrDataUnavailable before the first load.
func (e *Estimator) Estimate(rels []Relationship) (*Result, error) {
	t, err := e.handle.Current()
	if err != nil {
		return nil, err
	}
	return Estimate(t, rels)
}
