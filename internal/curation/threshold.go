// Package curation filters sorted units by per-unit quality metrics.
package curation

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/banshee-data/spike.metrics/internal/ephys"
)

// Sign is the comparison applied between a unit's metric and the threshold.
type Sign string

const (
	Less           Sign = "less"
	LessOrEqual    Sign = "less_or_equal"
	Greater        Sign = "greater"
	GreaterOrEqual Sign = "greater_or_equal"
)

var (
	ErrUnknownSign    = errors.New("curation: unknown threshold sign")
	ErrMetricMismatch = errors.New("curation: metric length does not match unit count")
)

// ParseSign validates s as a Sign.
func ParseSign(s string) (Sign, error) {
	switch sg := Sign(s); sg {
	case Less, LessOrEqual, Greater, GreaterOrEqual:
		return sg, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSign, s)
}

// Matches reports whether value <sign> threshold holds. NaN never matches.
func (s Sign) Matches(value, threshold float64) bool {
	switch s {
	case Less:
		return value < threshold
	case LessOrEqual:
		return value <= threshold
	case Greater:
		return value > threshold
	case GreaterOrEqual:
		return value >= threshold
	}
	return false
}

// ThresholdCurator is a view of a sorting with the units excluded by one or
// more threshold passes removed. It implements ephys.Sorting.
type ThresholdCurator struct {
	sorting ephys.Sorting
	ids     []ephys.UnitID
	metric  []float64

	mu       sync.RWMutex
	excluded map[ephys.UnitID]bool
}

var _ ephys.Sorting = (*ThresholdCurator)(nil)

// NewThresholdCurator pairs metric[i] with ids[i] of sorting.
func NewThresholdCurator(sorting ephys.Sorting, ids []ephys.UnitID, metric []float64) (*ThresholdCurator, error) {
	if len(ids) != len(metric) {
		return nil, fmt.Errorf("%w: %d values for %d units", ErrMetricMismatch, len(metric), len(ids))
	}
	return &ThresholdCurator{
		sorting:  sorting,
		ids:      slices.Clone(ids),
		metric:   slices.Clone(metric),
		excluded: make(map[ephys.UnitID]bool),
	}, nil
}

// ThresholdSorting excludes every unit whose metric satisfies
// metric <sign> threshold. Exclusions accumulate across calls.
func (c *ThresholdCurator) ThresholdSorting(threshold float64, sign Sign) error {
	if _, err := ParseSign(string(sign)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range c.ids {
		if sign.Matches(c.metric[i], threshold) {
			c.excluded[id] = true
		}
	}
	return nil
}

// Excluded returns the excluded units in the order of the underlying sorting.
func (c *ThresholdCurator) Excluded() []ephys.UnitID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ephys.UnitID
	for _, id := range c.sorting.UnitIDs() {
		if c.excluded[id] {
			out = append(out, id)
		}
	}
	return out
}

// UnitIDs returns the units that survived curation.
func (c *ThresholdCurator) UnitIDs() []ephys.UnitID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.DeleteFunc(c.sorting.UnitIDs(), func(id ephys.UnitID) bool { return c.excluded[id] })
}

func (c *ThresholdCurator) isExcluded(id ephys.UnitID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.excluded[id]
}

func (c *ThresholdCurator) SpikeTrain(id ephys.UnitID) ([]int64, error) {
	if c.isExcluded(id) {
		return nil, fmt.Errorf("%w: %d was curated out", ephys.ErrUnknownUnit, id)
	}
	return c.sorting.SpikeTrain(id)
}

func (c *ThresholdCurator) SetUnitProperty(id ephys.UnitID, name string, value float64) error {
	if c.isExcluded(id) {
		return fmt.Errorf("%w: %d was curated out", ephys.ErrUnknownUnit, id)
	}
	return c.sorting.SetUnitProperty(id, name, value)
}

func (c *ThresholdCurator) UnitProperty(id ephys.UnitID, name string) (float64, bool) {
	if c.isExcluded(id) {
		return 0, false
	}
	return c.sorting.UnitProperty(id, name)
}
