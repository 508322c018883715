package census

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func income(n int64) *int64 { return &n }

func sampleRecords() []AreaRecord {
	return []AreaRecord{
		{Name: "Springfield, Illinois", Status: "Incorporated Place", EstimatedBase: 114394,
			Population: map[int]int64{2020: 114394, 2023: 114000}},
		{Name: "Springfield, Ohio", Status: "Incorporated Place",
			Population: map[int]int64{2023: 58000}},
		{Name: "Ohio", Status: "State", Population: map[int]int64{2022: 11756058}},
	}
}

func TestNewTable_CurrentYearDefaultsToLatest(t *testing.T) {
	tbl, err := NewTable(sampleRecords(), TableOptions{Source: "test"})
	require.NoError(t, err)

	assert.Equal(t, 2023, tbl.CurrentYear())
	assert.Equal(t, 3, tbl.Len())
	assert.NotEmpty(t, tbl.ID())
	assert.Equal(t, "test", tbl.Source())
	assert.False(t, tbl.LoadedAt().IsZero())

	pop, ok := tbl.At(0).CurrentPopulation()
	assert.True(t, ok)
	assert.Equal(t, int64(114000), pop)

	// Ohio has no 2023 value.
	_, ok = tbl.At(2).CurrentPopulation()
	assert.False(t, ok)
}

func TestNewTable_ExplicitCurrentYear(t *testing.T) {
	tbl, err := NewTable(sampleRecords(), TableOptions{CurrentYear: 2020})
	require.NoError(t, err)

	pop, ok := tbl.At(0).CurrentPopulation()
	assert.True(t, ok)
	assert.Equal(t, int64(114394), pop)

	_, ok = tbl.At(1).CurrentPopulation()
	assert.False(t, ok)
}

func TestNewTable_Empty(t *testing.T) {
	tbl, err := NewTable(nil, TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, 0, tbl.CurrentYear())
	assert.Empty(t, tbl.Statuses())
	assert.True(t, tbl.RowsWithStatus("State").IsEmpty())
}

func TestNewTable_RejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name   string
		record AreaRecord
	}{
		{"empty name", AreaRecord{Name: "  "}},
		{"negative base", AreaRecord{Name: "X", EstimatedBase: -1}},
		{"negative population", AreaRecord{Name: "X", Population: map[int]int64{2023: -5}}},
		{"bad year", AreaRecord{Name: "X", Population: map[int]int64{0: 5}}},
		{"negative demographic", AreaRecord{Name: "X", Demographics: map[Category]int64{CategoryAsian: -1}}},
		{"negative housing", AreaRecord{Name: "X", Housing: &Housing{TotalUnits: -1}}},
		{"negative income", AreaRecord{Name: "X", MedianHouseholdIncome: income(-10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable([]AreaRecord{tt.record}, TableOptions{})
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidArgument))
		})
	}
}

func TestTable_StatusIndex(t *testing.T) {
	tbl, err := NewTable(sampleRecords(), TableOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Incorporated Place", "State"}, tbl.Statuses())
	assert.Equal(t, []uint32{0, 1}, tbl.RowsWithStatus("Incorporated Place").ToArray())
	assert.Equal(t, []uint32{0, 1, 2}, tbl.RowsWithStatus("State", "Incorporated Place").ToArray())
	assert.True(t, tbl.RowsWithStatus("state").IsEmpty(), "status match is case-sensitive")

	// Mutating the returned bitmap must not affect the index.
	bm := tbl.RowsWithStatus("State")
	bm.Add(0)
	assert.Equal(t, []uint32{2}, tbl.RowsWithStatus("State").ToArray())
}

func TestTable_RecordsIsShallowCopy(t *testing.T) {
	tbl, err := NewTable(sampleRecords(), TableOptions{})
	require.NoError(t, err)

	recs := tbl.Records()
	recs[0].Name = "changed"
	recs[1] = AreaRecord{Name: "replaced"}
	recs[2].Population = map[int]int64{2022: 1}
	assert.Equal(t, "Springfield, Illinois", tbl.At(0).Name)
	assert.Equal(t, "Springfield, Ohio", tbl.At(1).Name)
	assert.Equal(t, int64(11756058), tbl.At(2).Population[2022])

	// Map contents are shared with the table.
	assert.Equal(t, tbl.At(0).Population, recs[0].Population)
}

func TestAreaRecord_NameContains(t *testing.T) {
	tbl, err := NewTable([]AreaRecord{{Name: "Doña Ana County, New Mexico"}}, TableOptions{})
	require.NoError(t, err)

	r := tbl.At(0)
	assert.True(t, r.NameContains(Fold("DOÑA ANA")))
	assert.True(t, r.NameContains(Fold("new mexico")))
	assert.False(t, r.NameContains(Fold("texas")))
}

func TestAreaRecord_Fields(t *testing.T) {
	recs := []AreaRecord{{
		Name:          "Austin, Texas",
		Status:        "City",
		EstimatedBase: 961855,
		Population:    map[int]int64{2023: 1000},
		Demographics: map[Category]int64{
			CategoryWhite:          500,
			CategoryHispanicLatino: 333,
		},
		Housing:               &Housing{TotalUnits: 400, OwnerOccupied: 200, RenterOccupied: 150},
		MedianHouseholdIncome: income(80000),
		Location:              &Location{Latitude: 30.27, Longitude: -97.74},
	}}
	tbl, err := NewTable(recs, TableOptions{})
	require.NoError(t, err)

	f := tbl.At(0).Fields()
	assert.Equal(t, "Austin, Texas", f["Geographic_Area"])
	assert.Equal(t, "City", f["Status"])
	assert.Equal(t, int64(961855), f["Estimated_Base"])
	assert.Equal(t, int64(1000), f["2023_Population"])
	assert.Equal(t, int64(500), f["White_Population"])
	assert.InDelta(t, 50.0, f["White_Percentage"], 0.001)
	assert.InDelta(t, 33.3, f["Hispanic_Latino_Percentage"], 0.001)
	assert.NotContains(t, f, "Asian_Population")
	assert.Equal(t, int64(400), f["Total_Housing_Units"])
	assert.Equal(t, int64(80000), f["Median_Household_Income"])
	assert.InDelta(t, 30.27, f["Latitude"], 0.0001)
}

func TestAreaRecord_FieldsOmitsAbsent(t *testing.T) {
	f := AreaRecord{Name: "X", Status: "S"}.Fields()
	assert.Len(t, f, 3)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(5, 0))
	assert.Equal(t, 0.0, Percent(5, -1))
	assert.Equal(t, 50.0, Percent(1, 2))
	assert.Equal(t, 33.33, Percent(1, 3))
}

func TestAreaRecord_Years(t *testing.T) {
	r := AreaRecord{Population: map[int]int64{2023: 1, 2020: 1, 2021: 1}}
	assert.Equal(t, []int{2020, 2021, 2023}, r.Years())
}
