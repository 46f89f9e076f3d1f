package ephys

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownUnit is returned when a unit ID is not part of a sorting.
	ErrUnknownUnit = errors.New("ephys: unknown unit id")
	// ErrBadShape is returned when a clip set or trace buffer has an invalid shape.
	ErrBadShape = errors.New("ephys: invalid shape")
	// ErrNonFinite is returned when clip data contains NaN or Inf.
	ErrNonFinite = errors.New("ephys: NaN or Inf in clip data")
)

// UnitID identifies a sorted unit. Values are opaque; order comes from Sorting.UnitIDs.
type UnitID int

// Recording provides random-access voltage snippets from a multi-channel trace.
type Recording interface {
	NumChannels() int
	NumFrames() int64
	SamplingFrequency() float64

	// Snippets returns one clip of clipLen samples per centre frame.
	// Windows run from c-(clipLen+1)/2 (inclusive) to c+clipLen-(clipLen+1)/2
	// (exclusive); samples outside the recording read as zero.
	Snippets(centers []int64, clipLen int) (*ClipSet, error)
}

// Sorting maps unit IDs to ordered spike frames and carries named per-unit properties.
type Sorting interface {
	UnitIDs() []UnitID
	SpikeTrain(id UnitID) ([]int64, error)

	SetUnitProperty(id UnitID, name string, value float64) error
	UnitProperty(id UnitID, name string) (float64, bool)
}

// ClipSet stores N clips of Channels x Samples, row-major and contiguous:
// Data[n*Channels*Samples + c*Samples + s].
type ClipSet struct {
	N        int
	Channels int
	Samples  int
	Data     []float64
}

// NewClipSet allocates a zeroed clip set.
func NewClipSet(n, channels, samples int) *ClipSet {
	if n < 0 || channels <= 0 || samples <= 0 {
		return &ClipSet{Channels: channels, Samples: samples}
	}
	return &ClipSet{
		N:        n,
		Channels: channels,
		Samples:  samples,
		Data:     make([]float64, n*channels*samples),
	}
}

// ClipLen is the flattened length of one clip.
func (c *ClipSet) ClipLen() int { return c.Channels * c.Samples }

// Clip returns a view (not a copy) of clip i.
func (c *ClipSet) Clip(i int) []float64 {
	d := c.ClipLen()
	return c.Data[i*d : (i+1)*d : (i+1)*d]
}

// At returns the value of clip i at channel ch and sample s.
func (c *ClipSet) At(i, ch, s int) float64 {
	return c.Data[i*c.ClipLen()+ch*c.Samples+s]
}

// SameShape reports whether two clip sets hold clips of the same channel and sample count.
func (c *ClipSet) SameShape(o *ClipSet) bool {
	return o != nil && c.Channels == o.Channels && c.Samples == o.Samples
}

// Validate checks that Data matches the declared shape.
func (c *ClipSet) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil clip set", ErrBadShape)
	}
	if c.N < 0 || c.Channels <= 0 || c.Samples <= 0 {
		return fmt.Errorf("%w: %dx%dx%d", ErrBadShape, c.N, c.Channels, c.Samples)
	}
	if len(c.Data) != c.N*c.ClipLen() {
		return fmt.Errorf("%w: data length %d, want %d", ErrBadShape, len(c.Data), c.N*c.ClipLen())
	}
	for i, x := range c.Data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: clip %d", ErrNonFinite, i/c.ClipLen())
		}
	}
	return nil
}

// Subset copies the clips at the given indices into a new clip set.
func (c *ClipSet) Subset(idx []int) *ClipSet {
	out := NewClipSet(len(idx), c.Channels, c.Samples)
	for j, i := range idx {
		copy(out.Clip(j), c.Clip(i))
	}
	return out
}

// SpikeRange returns the smallest first spike frame and the largest last spike
// frame across every unit of the sorting. Units without spikes are skipped;
// ok is false when no unit has any spike.
func SpikeRange(s Sorting) (lo, hi int64, ok bool, err error) {
	for _, id := range s.UnitIDs() {
		train, err := s.SpikeTrain(id)
		if err != nil {
			return 0, 0, false, err
		}
		if len(train) == 0 {
			continue
		}
		first, last := train[0], train[len(train)-1]
		if !ok || first < lo {
			lo = first
		}
		if !ok || last > hi {
			hi = last
		}
		ok = true
	}
	return lo, hi, ok, nil
}
