package ephys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampRecording(t *testing.T, frames int) *MemoryRecording {
	t.Helper()
	ch0 := make([]float32, frames)
	ch1 := make([]float32, frames)
	for i := range ch0 {
		ch0[i] = float32(i)
		ch1[i] = float32(-i)
	}
	rec, err := NewMemoryRecording([][]float32{ch0, ch1}, 1000)
	require.NoError(t, err)
	return rec
}

func TestMemoryRecording_Snippets(t *testing.T) {
	t.Parallel()
	rec := rampRecording(t, 10)

	clips, err := rec.Snippets([]int64{5, 0, 9}, 4)
	require.NoError(t, err)
	require.NoError(t, clips.Validate())
	assert.Equal(t, 3, clips.N)
	assert.Equal(t, 2, clips.Channels)
	assert.Equal(t, 4, clips.Samples)

	assert.Equal(t, []float64{3, 4, 5, 6, -3, -4, -5, -6}, clips.Clip(0))
	// Window before the first frame reads as zero.
	assert.Equal(t, []float64{0, 0, 0, 1, 0, 0, 0, -1}, clips.Clip(1))
	// Window past the last frame reads as zero.
	assert.Equal(t, []float64{7, 8, 9, 0, -7, -8, -9, 0}, clips.Clip(2))
	assert.Equal(t, 8.0, clips.At(2, 0, 1))
}

func TestMemoryRecording_OddClipLength(t *testing.T) {
	t.Parallel()
	rec := rampRecording(t, 10)

	clips, err := rec.Snippets([]int64{5}, 3)
	require.NoError(t, err)
	// (3+1)/2 = 2 samples before the centre, 1 from the centre on.
	assert.Equal(t, []float64{3, 4, 5}, clips.Clip(0)[:3])
}

func TestNewMemoryRecording_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryRecording(nil, 1000)
	assert.ErrorIs(t, err, ErrBadShape)

	_, err = NewMemoryRecording([][]float32{{1, 2}, {1}}, 1000)
	assert.ErrorIs(t, err, ErrBadShape)

	_, err = NewMemoryRecording([][]float32{{1, 2}}, 0)
	assert.Error(t, err)

	rec := rampRecording(t, 4)
	_, err = rec.Snippets([]int64{1}, 0)
	assert.ErrorIs(t, err, ErrBadShape)
}

func TestMemorySorting(t *testing.T) {
	t.Parallel()
	s := NewMemorySorting()
	s.AddUnit(7, []int64{30, 10, 20})
	s.AddUnit(3, []int64{5})
	s.AddUnit(9, nil)

	assert.Equal(t, []UnitID{7, 3, 9}, s.UnitIDs())

	train, err := s.SpikeTrain(7)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, train)

	_, err = s.SpikeTrain(42)
	assert.ErrorIs(t, err, ErrUnknownUnit)

	require.NoError(t, s.SetUnitProperty(3, "noise_overlap", 0.25))
	v, ok := s.UnitProperty(3, "noise_overlap")
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)

	_, ok = s.UnitProperty(7, "noise_overlap")
	assert.False(t, ok)
	assert.ErrorIs(t, s.SetUnitProperty(42, "noise_overlap", 1), ErrUnknownUnit)
}

func TestSpikeRange(t *testing.T) {
	t.Parallel()
	s := NewMemorySorting()
	s.AddUnit(1, []int64{100, 400})
	s.AddUnit(2, nil)
	s.AddUnit(3, []int64{50, 300})

	lo, hi, ok, err := SpikeRange(s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(50), lo)
	assert.Equal(t, int64(400), hi)

	_, _, ok, err = SpikeRange(NewMemorySorting())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClipSet_SubsetAndValidate(t *testing.T) {
	t.Parallel()
	cs := NewClipSet(3, 1, 2)
	copy(cs.Data, []float64{1, 2, 3, 4, 5, 6})

	sub := cs.Subset([]int{2, 0})
	assert.Equal(t, []float64{5, 6, 1, 2}, sub.Data)
	assert.True(t, sub.SameShape(cs))

	// Subset copies, so writes do not leak back.
	sub.Data[0] = 99
	assert.Equal(t, 5.0, cs.Data[4])

	bad := &ClipSet{N: 2, Channels: 1, Samples: 2, Data: []float64{1}}
	assert.ErrorIs(t, bad.Validate(), ErrBadShape)

	var nilSet *ClipSet
	assert.ErrorIs(t, nilSet.Validate(), ErrBadShape)
}
