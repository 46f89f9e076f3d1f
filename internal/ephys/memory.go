package ephys

import (
	"fmt"
	"slices"
	"sync"
)

// MemoryRecording is a Recording backed by per-channel float32 traces.
type MemoryRecording struct {
	traces [][]float32 // [channel][frame]
	fs     float64
	frames int64
}

// NewMemoryRecording wraps traces (one slice per channel, equal lengths).
// The slices are retained, not copied.
func NewMemoryRecording(traces [][]float32, samplingFrequency float64) (*MemoryRecording, error) {
	if len(traces) == 0 {
		return nil, fmt.Errorf("%w: recording has no channels", ErrBadShape)
	}
	n := len(traces[0])
	for ch, tr := range traces {
		if len(tr) != n {
			return nil, fmt.Errorf("%w: channel %d has %d frames, want %d", ErrBadShape, ch, len(tr), n)
		}
	}
	if samplingFrequency <= 0 {
		return nil, fmt.Errorf("sampling frequency must be positive, got %f", samplingFrequency)
	}
	return &MemoryRecording{traces: traces, fs: samplingFrequency, frames: int64(n)}, nil
}

func (r *MemoryRecording) NumChannels() int           { return len(r.traces) }
func (r *MemoryRecording) NumFrames() int64           { return r.frames }
func (r *MemoryRecording) SamplingFrequency() float64 { return r.fs }

// Trace returns the raw trace of one channel.
func (r *MemoryRecording) Trace(ch int) []float32 { return r.traces[ch] }

// Snippets implements Recording.
func (r *MemoryRecording) Snippets(centers []int64, clipLen int) (*ClipSet, error) {
	if clipLen <= 0 {
		return nil, fmt.Errorf("%w: clip length %d", ErrBadShape, clipLen)
	}
	before := int64((clipLen + 1) / 2)
	out := NewClipSet(len(centers), len(r.traces), clipLen)
	for i, c := range centers {
		clip := out.Clip(i)
		start := c - before
		for ch, tr := range r.traces {
			row := clip[ch*clipLen : (ch+1)*clipLen]
			for s := range row {
				f := start + int64(s)
				if f >= 0 && f < r.frames {
					row[s] = float64(tr[f])
				}
			}
		}
	}
	return out, nil
}

// MemorySorting is a Sorting held in memory. It is safe for concurrent use.
type MemorySorting struct {
	mu         sync.RWMutex
	ids        []UnitID
	trains     map[UnitID][]int64
	properties map[UnitID]map[string]float64
}

// NewMemorySorting creates an empty sorting.
func NewMemorySorting() *MemorySorting {
	return &MemorySorting{
		trains:     make(map[UnitID][]int64),
		properties: make(map[UnitID]map[string]float64),
	}
}

// AddUnit adds or replaces a unit. Spike frames are copied and sorted.
func (s *MemorySorting) AddUnit(id UnitID, frames []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trains[id]; !ok {
		s.ids = append(s.ids, id)
	}
	train := slices.Clone(frames)
	slices.Sort(train)
	s.trains[id] = train
}

// UnitIDs returns unit IDs in insertion order.
func (s *MemorySorting) UnitIDs() []UnitID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

// SpikeTrain returns the sorted spike frames for a unit.
func (s *MemorySorting) SpikeTrain(id UnitID) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	train, ok := s.trains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, id)
	}
	return train, nil
}

// SetUnitProperty stores a named value on a unit.
func (s *MemorySorting) SetUnitProperty(id UnitID, name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trains[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownUnit, id)
	}
	props := s.properties[id]
	if props == nil {
		props = make(map[string]float64)
		s.properties[id] = props
	}
	props[name] = value
	return nil
}

// UnitProperty returns a named value previously stored on a unit.
func (s *MemorySorting) UnitProperty(id UnitID, name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.properties[id][name]
	return v, ok
}

var (
	_ Recording = (*MemoryRecording)(nil)
	_ Sorting   = (*MemorySorting)(nil)
)
