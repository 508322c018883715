package estimate

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/popmap/internal/census"
)

func TestDecodeRequest(t *testing.T) {
	body := `{"area_relationships": [
		{"area": "Springfield", "percentage": 50},
		{"area": "Clark County", "percentage": "25.5"},
		{"area": "Sangamon"}
	]}`

	rels, err := DecodeRequest([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []Relationship{
		{Area: "Springfield", Percentage: 50},
		{Area: "Clark County", Percentage: 25.5},
		{Area: "Sangamon", Percentage: 0},
	}, rels)
}

func TestDecodeRequest_EmptyListIsValid(t *testing.T) {
	rels, err := DecodeRequest([]byte(`{"area_relationships": []}`))
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestDecodeRequest_Missing(t *testing.T) {
	for _, body := range []string{"", "  ", `{}`, `{"area_relationships": null}`, `{"other": 1}`} {
		_, err := DecodeRequest([]byte(body))
		require.Error(t, err, body)
		assert.True(t, eris.Is(err, census.ErrMissingArgument), body)
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"area_relationships": [`},
		{"word percentage", `{"area_relationships": [{"area": "x", "percentage": "half"}]}`},
		{"bool percentage", `{"area_relationships": [{"area": "x", "percentage": true}]}`},
		{"nan percentage", `{"area_relationships": [{"area": "x", "percentage": "NaN"}]}`},
		{"inf percentage", `{"area_relationships": [{"area": "x", "percentage": "-Inf"}]}`},
		{"percentage beyond float64", `{"area_relationships": [{"area": "x", "percentage": 1e999}]}`},
		{"list is object", `{"area_relationships": {"area": "x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, eris.Is(err, census.ErrInvalidArgument))
		})
	}
}

func TestDecodeRequest_HugePercentageRejectedByEstimate(t *testing.T) {
	tbl, err := census.NewTable([]census.AreaRecord{
		{Name: "Springfield, Illinois", Status: "City", Population: map[int]int64{2023: 114000}},
	}, census.TableOptions{})
	require.NoError(t, err)

	rels, err := DecodeRequest([]byte(`{"area_relationships":[{"area":"Springfield, Illinois","percentage":1e30}]}`))
	require.NoError(t, err)

	res, err := Estimate(tbl, rels)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, eris.Is(err, census.ErrInvalidArgument))
}
