package store

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popmap/internal/census"
)

// areaColumns is the column order of the areas table.
var areaColumns = []string{"snapshot_id", "ordinal", "name", "status", "estimated_base", "population", "details"}

// details holds the optional record fields, stored as one JSON document.
type details struct {
	Demographics          map[census.Category]int64 `json:"demographics,omitempty"`
	Housing               *census.Housing           `json:"housing,omitempty"`
	MedianHouseholdIncome *int64                    `json:"median_household_income,omitempty"`
	Location              *census.Location          `json:"location,omitempty"`
}

// encodeArea renders one record as an areas row.
func encodeArea(snapshotID string, ordinal int, r census.AreaRecord) ([]any, error) {
	pop := make(map[string]int64, len(r.Population))
	for y, n := range r.Population {
		pop[strconv.Itoa(y)] = n
	}
	popJSON, err := json.Marshal(pop)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal population")
	}

	var detailJSON []byte
	d := details{
		Demographics:          r.Demographics,
		Housing:               r.Housing,
		MedianHouseholdIncome: r.MedianHouseholdIncome,
		Location:              r.Location,
	}
	if d.Demographics != nil || d.Housing != nil || d.MedianHouseholdIncome != nil || d.Location != nil {
		if detailJSON, err = json.Marshal(d); err != nil {
			return nil, eris.Wrap(err, "store: marshal details")
		}
	}

	return []any{snapshotID, ordinal, r.Name, r.Status, r.EstimatedBase, string(popJSON), nullableString(detailJSON)}, nil
}

// decodeArea is the inverse of encodeArea.
func decodeArea(name, status string, base int64, popJSON string, detailJSON *string) (census.AreaRecord, error) {
	r := census.AreaRecord{Name: name, Status: status, EstimatedBase: base}

	var pop map[string]int64
	if err := json.Unmarshal([]byte(popJSON), &pop); err != nil {
		return r, eris.Wrapf(err, "store: decode population for %q", name)
	}
	r.Population = make(map[int]int64, len(pop))
	for k, n := range pop {
		y, err := strconv.Atoi(k)
		if err != nil {
			return r, eris.Wrapf(err, "store: decode year %q for %q", k, name)
		}
		r.Population[y] = n
	}

	if detailJSON != nil && *detailJSON != "" {
		var d details
		if err := json.Unmarshal([]byte(*detailJSON), &d); err != nil {
			return r, eris.Wrapf(err, "store: decode details for %q", name)
		}
		r.Demographics = d.Demographics
		r.Housing = d.Housing
		r.MedianHouseholdIncome = d.MedianHouseholdIncome
		r.Location = d.Location
	}
	return r, nil
}

// rebuild turns stored rows back into a table with its original identity.
func rebuild(info SnapshotInfo, records []census.AreaRecord) (*census.Table, error) {
	t, err := census.NewTable(records, census.TableOptions{
		ID:          info.ID,
		Source:      info.Source,
		CurrentYear: info.CurrentYear,
		LoadedAt:    info.LoadedAt,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "store: rebuild snapshot %s", info.ID)
	}
	return t, nil
}

func snapshotInfo(t *census.Table, savedAt time.Time) SnapshotInfo {
	return SnapshotInfo{
		ID:          t.ID(),
		Source:      t.Source(),
		CurrentYear: t.CurrentYear(),
		Rows:        t.Len(),
		LoadedAt:    t.LoadedAt().UTC(),
		SavedAt:     savedAt,
	}
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
