package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation and assimilation.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnstable indicates the model integration became numerically unstable.
	ErrUnstable = errors.New("dynamo: simulation unstable (state diverged)")

	// ErrDimensionMismatch indicates mismatched state/observation dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrSingularCovariance indicates the observation noise or the inflated
	// forecast covariance is not invertible over the observed subspace.
	ErrSingularCovariance = errors.New("dynamo: singular covariance")

	// ErrEnsembleCollapse indicates all ensemble members are identical.
	ErrEnsembleCollapse = errors.New("dynamo: ensemble collapsed (zero spread)")

	// ErrInsufficientData indicates a statistics reduction over zero cycles.
	ErrInsufficientData = errors.New("dynamo: insufficient data")

	// ErrInvalidConfiguration indicates a configuration rejected before any cycle runs.
	ErrInvalidConfiguration = errors.New("dynamo: invalid configuration")
)

// CycleError wraps an error with assimilation-cycle context.
type CycleError struct {
	Cycle   int
	Time    float64
	Wrapped error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d (t=%.4f): %v", e.Cycle, e.Time, e.Wrapped)
}

func (e *CycleError) Unwrap() error {
	return e.Wrapped
}

// Invalidf returns an ErrInvalidConfiguration carrying a formatted reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
