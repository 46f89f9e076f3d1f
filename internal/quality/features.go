package quality

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// pcaFeatures factorises the r×c row-major matrix rows and writes the first k
// left-singular vectors into dst as an r×k row-major matrix, one feature row
// per input row.
func pcaFeatures(rows []float64, r, c, k int, dst []float64) error {
	if k > min(r, c) {
		return fmt.Errorf("%w: num_features %d exceeds min(points %d, dims %d)", ErrInsufficientData, k, r, c)
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(r, c, rows), mat.SVDThin); !ok {
		return fmt.Errorf("%w: %d×%d matrix", ErrSVDFailed, r, c)
	}
	var u mat.Dense
	svd.UTo(&u)

	for i := 0; i < r; i++ {
		copy(dst[i*k:(i+1)*k], u.RawRowView(i)[:k])
	}
	return nil
}
