package quality

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// featurePoint is one feature row tagged with its row index so a query can
// drop itself from its own neighbour set.
type featurePoint struct {
	coords []float64
	index  int
}

func (p featurePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coords[d] - c.(featurePoint).coords[d]
}

func (p featurePoint) Dims() int { return len(p.coords) }

// Distance returns the squared Euclidean distance.
func (p featurePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(featurePoint)
	var sum float64
	for i, v := range p.coords {
		d := v - q.coords[i]
		sum += d * d
	}
	return sum
}

type featurePoints []featurePoint

func (p featurePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p featurePoints) Len() int                      { return len(p) }
func (p featurePoints) Pivot(d kdtree.Dim) int {
	return featurePlane{dim: d, points: p}.Pivot()
}
func (p featurePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type featurePlane struct {
	dim    kdtree.Dim
	points featurePoints
}

func (p featurePlane) Less(i, j int) bool {
	return p.points[i].coords[p.dim] < p.points[j].coords[p.dim]
}
func (p featurePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p featurePlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p featurePlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p featurePlane) Len() int      { return len(p.points) }

// neighbourCount is the number of non-self neighbours examined per point.
func neighbourCount(numKNN, points int) int {
	return min(numKNN, points-2)
}

// neighbourPurity scores the r×k row-major feature matrix feats, whose first
// nSpikes rows are spike clips and the rest noise clips. Each point's nearest
// non-self neighbours are compared against its own group and the result is
// one minus the fraction that match. Neighbours at equal distance are taken
// in row order.
func neighbourPurity(feats []float64, r, k, nSpikes, numKNN int) (float64, error) {
	count := neighbourCount(numKNN, r)
	if count < 1 {
		return math.NaN(), fmt.Errorf("%w: %d points leave no neighbours to compare", ErrInsufficientData, r)
	}

	points := make(featurePoints, r)
	for i := range points {
		points[i] = featurePoint{coords: feats[i*k : (i+1)*k], index: i}
	}
	// kdtree.New reorders its argument.
	tree := kdtree.New(slices.Clone(points), false)

	nearest := kdtree.NewNKeeper(count + 1)
	within := kdtree.NewDistKeeper(0)
	neighbours := make([]kdtree.ComparableDist, 0, count+1)
	var matches, total int
	for _, q := range points {
		nearest.Heap = nearest.Heap[:1]
		nearest.Heap[0] = kdtree.ComparableDist{Dist: math.Inf(1)}
		tree.NearestSet(nearest, q)

		// NKeeper drops tied points in tree walk order, so its largest
		// distance is only used as a radius. Every point inside it is
		// collected and the cut is made by (distance, index).
		radius := 0.0
		for _, cd := range nearest.Heap {
			if cd.Comparable != nil {
				radius = max(radius, cd.Dist)
			}
		}
		within.Heap = within.Heap[:1]
		within.Heap[0] = kdtree.ComparableDist{Dist: radius}
		tree.NearestSet(within, q)

		neighbours = neighbours[:0]
		for _, cd := range within.Heap {
			if cd.Comparable == nil || cd.Comparable.(featurePoint).index == q.index {
				continue
			}
			neighbours = append(neighbours, cd)
		}
		slices.SortFunc(neighbours, func(a, b kdtree.ComparableDist) int {
			if c := cmp.Compare(a.Dist, b.Dist); c != 0 {
				return c
			}
			return cmp.Compare(a.Comparable.(featurePoint).index, b.Comparable.(featurePoint).index)
		})

		spike := q.index < nSpikes
		for _, cd := range neighbours[:min(count, len(neighbours))] {
			if (cd.Comparable.(featurePoint).index < nSpikes) == spike {
				matches++
			}
			total++
		}
	}
	if total == 0 {
		return math.NaN(), fmt.Errorf("%w: no neighbour comparisons", ErrInsufficientData)
	}
	return 1 - float64(matches)/float64(total), nil
}
