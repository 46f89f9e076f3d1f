package curation

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/spike.metrics/internal/ephys"
)

func fourUnits() *ephys.MemorySorting {
	s := ephys.NewMemorySorting()
	for id := 1; id <= 4; id++ {
		s.AddUnit(ephys.UnitID(id), []int64{int64(10 * id), int64(100 * id)})
	}
	return s
}

func TestThresholdSorting(t *testing.T) {
	t.Parallel()

	metric := []float64{0.05, 0.2, 0.2, math.NaN()}
	tests := []struct {
		sign Sign
		kept []ephys.UnitID
	}{
		{Less, []ephys.UnitID{2, 3, 4}},
		{LessOrEqual, []ephys.UnitID{4}},
		{Greater, []ephys.UnitID{1, 2, 3, 4}},
		{GreaterOrEqual, []ephys.UnitID{1, 4}},
	}
	for _, tt := range tests {
		t.Run(string(tt.sign), func(t *testing.T) {
			t.Parallel()
			s := fourUnits()
			c, err := NewThresholdCurator(s, s.UnitIDs(), metric)
			require.NoError(t, err)
			require.NoError(t, c.ThresholdSorting(0.2, tt.sign))
			if diff := cmp.Diff(tt.kept, c.UnitIDs()); diff != "" {
				t.Errorf("kept units mismatch (-want +got):\n%s", diff)
			}
			assert.Len(t, c.Excluded(), 4-len(tt.kept))
		})
	}
}

func TestThresholdCurator_View(t *testing.T) {
	t.Parallel()
	s := fourUnits()
	c, err := NewThresholdCurator(s, []ephys.UnitID{1, 2}, []float64{0.9, 0.01})
	require.NoError(t, err)
	require.NoError(t, c.ThresholdSorting(0.5, Greater))

	_, err = c.SpikeTrain(1)
	assert.ErrorIs(t, err, ephys.ErrUnknownUnit)
	train, err := c.SpikeTrain(2)
	require.NoError(t, err)
	assert.Equal(t, []int64{20, 200}, train)

	assert.ErrorIs(t, c.SetUnitProperty(1, "x", 1), ephys.ErrUnknownUnit)
	require.NoError(t, c.SetUnitProperty(2, "x", 3))
	v, ok := c.UnitProperty(2, "x")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
	_, ok = c.UnitProperty(1, "x")
	assert.False(t, ok)

	// Exclusions accumulate.
	require.NoError(t, c.ThresholdSorting(0.05, Less))
	assert.Equal(t, []ephys.UnitID{3, 4}, c.UnitIDs())
	assert.Equal(t, []ephys.UnitID{1, 2}, c.Excluded())
}

func TestThresholdCurator_Errors(t *testing.T) {
	t.Parallel()
	s := fourUnits()
	_, err := NewThresholdCurator(s, s.UnitIDs(), []float64{1})
	assert.True(t, errors.Is(err, ErrMetricMismatch))

	c, err := NewThresholdCurator(s, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, c.ThresholdSorting(1, Sign("between")), ErrUnknownSign)
}

func TestParseSign(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"less", "less_or_equal", "greater", "greater_or_equal"} {
		got, err := ParseSign(s)
		require.NoError(t, err)
		assert.Equal(t, Sign(s), got)
	}
	_, err := ParseSign("lt")
	assert.ErrorIs(t, err, ErrUnknownSign)
}
