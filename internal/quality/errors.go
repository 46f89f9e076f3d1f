package quality

import (
	"errors"
	"fmt"

	"github.com/banshee-data/spike.metrics/internal/ephys"
)

var (
	// ErrMissingRecording is returned by constructors when no recording is attached.
	ErrMissingRecording = errors.New("quality: metric data must have a recording")

	// ErrMissingSorting is returned by constructors when no sorting is attached.
	ErrMissingSorting = errors.New("quality: metric data must have a sorting")

	// ErrDegenerateTemplate is returned when the noise template has zero
	// absolute sum or zero energy after mean removal.
	ErrDegenerateTemplate = errors.New("quality: degenerate noise template")

	// ErrInsufficientData is returned when a unit has too few clips for the
	// requested feature or neighbour count.
	ErrInsufficientData = errors.New("quality: insufficient data")

	// ErrSVDFailed is returned when the feature SVD does not converge.
	ErrSVDFailed = errors.New("quality: SVD did not converge")

	// ErrShapeMismatch is returned when a unit's clips differ in shape from the noise pool.
	ErrShapeMismatch = errors.New("quality: clip shape mismatch")

	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("quality: invalid parameters")
)

// UnitError records a failure scoped to a single unit. The unit's score is
// NaN and the remaining units are still computed.
type UnitError struct {
	UnitID ephys.UnitID
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %d: %v", e.UnitID, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
