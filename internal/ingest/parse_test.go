package ingest

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/popmap/internal/census"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"", 0, false},
		{"   ", 0, false},
		{"0", 0, true},
		{"58000", 58000, true},
		{"1,234,567", 1234567, true},
		{" 42 ", 42, true},
		{"114000.0", 114000, true},
		{"1.14e+05", 114000, true},
		{"99.9", 99, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok, err := ParseCount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestParseCount_Invalid(t *testing.T) {
	for _, in := range []string{"abc", "-5", "NaN", "Inf", "12abc", "-0.5e3"} {
		_, _, err := ParseCount(in)
		require.Error(t, err, in)
		assert.True(t, eris.Is(err, census.ErrInvalidArgument), in)
	}
}

func TestParseCoordinate(t *testing.T) {
	f, ok, err := ParseCoordinate(" 39.9242 ", 90)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 39.9242, f, 1e-9)

	_, ok, err = ParseCoordinate("", 90)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseCoordinate("91", 90)
	assert.True(t, eris.Is(err, census.ErrInvalidArgument))
	_, _, err = ParseCoordinate("north", 180)
	assert.True(t, eris.Is(err, census.ErrInvalidArgument))
}
