package quality

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/spike.metrics/internal/ephys"
)

// samplePool draws size centre frames uniformly with replacement from the
// inclusive range [lo, hi] and fetches one clip of clipLen samples per frame.
func samplePool(rec ephys.Recording, rng *rand.Rand, lo, hi int64, size, clipLen int) (*ephys.ClipSet, error) {
	if hi < lo {
		return nil, fmt.Errorf("%w: empty noise range [%d, %d]", ErrInsufficientData, lo, hi)
	}
	span := hi - lo + 1
	centers := make([]int64, size)
	for i := range centers {
		centers[i] = lo + rng.Int64N(span)
	}
	pool, err := rec.Snippets(centers, clipLen)
	if err != nil {
		return nil, fmt.Errorf("noise snippets: %w", err)
	}
	if err := pool.Validate(); err != nil {
		return nil, fmt.Errorf("noise snippets: %w", err)
	}
	return pool, nil
}

// selectNoise returns the pool indices used for a unit with n clips: n
// distinct indices when n is below the pool size, otherwise the whole pool.
func selectNoise(rng *rand.Rand, n, poolSize int) []int {
	if n < poolSize {
		return rng.Perm(poolSize)[:n]
	}
	idx := make([]int, poolSize)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
