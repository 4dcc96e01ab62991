package inflation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

// DefaultFloor is the smallest factor an estimator may return.
const DefaultFloor = 1e-2

// tiny marks a statistic as carrying no information.
const tiny = 1e-12

// Inflation is the outcome of one estimator update.
type Inflation struct {
	// Factor multiplies the ensemble anomalies.
	Factor float64
	// A and B are the parameters of the recursive belief, zero for
	// estimators without one.
	A, B float64
	// Dual is the finite-size factor of EnKF-N variants, 1 otherwise.
	Dual float64
}

// Estimator maintains the inflation belief of one run.
type Estimator interface {
	Name() string
	// Update folds one cycle's innovation statistics into the belief and
	// returns the factor to apply in that cycle's analysis.
	Update(s *Stats) (Inflation, error)
	// Current returns the belief without updating it.
	Current() Inflation
	// Cycles counts the updates applied since construction.
	Cycles() int
}

// Stats are the innovation statistics of one cycle in whitened observation
// space (observation noise covariance equal to the identity).
type Stats struct {
	N, P int
	// Y holds the observed anomalies, N×p, unscaled by inflation.
	Y *mat.Dense
	// D is the innovation y - mean(H(E)).
	D *mat.VecDense
	// Sigma are the singular values of Y.
	Sigma []float64
	// DU are the coordinates of D along the right singular vectors of Y.
	DU []float64
}

// NewStats computes the singular value decomposition of y once, for the
// estimators that need it.
func NewStats(y *mat.Dense, d *mat.VecDense) (*Stats, error) {
	n, p := y.Dims()
	if n < 2 {
		return nil, fmt.Errorf("%w: innovation statistics need at least 2 members, got %d", dynamo.ErrInvalidConfiguration, n)
	}
	if d.Len() != p {
		return nil, fmt.Errorf("%w: innovation has length %d, anomalies have %d columns", dynamo.ErrDimensionMismatch, d.Len(), p)
	}

	var svd mat.SVD
	if ok := svd.Factorize(y, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD of observed anomalies failed", dynamo.ErrSingularCovariance)
	}
	var v mat.Dense
	svd.VTo(&v)
	_, k := v.Dims()
	du := mat.NewVecDense(k, nil)
	du.MulVec(v.T(), d)

	return &Stats{
		N:     n,
		P:     p,
		Y:     y,
		D:     d,
		Sigma: svd.Values(nil),
		DU:    du.RawVector().Data,
	}, nil
}

// Dof is N-1.
func (s *Stats) Dof() float64 { return float64(s.N - 1) }

// Trace is tr(YᵀY)/(N-1), the expected innovation variance explained by the
// uninflated ensemble, summed over observations.
func (s *Stats) Trace() float64 {
	sum := 0.0
	for _, sv := range s.Sigma {
		sum += sv * sv
	}
	return sum / s.Dof()
}

// InnovationNorm2 is |D|².
func (s *Stats) InnovationNorm2() float64 {
	return mat.Dot(s.D, s.D)
}

// ComponentVar is the ensemble variance of observation j.
func (s *Stats) ComponentVar(j int) float64 {
	sum := 0.0
	for i := 0; i < s.N; i++ {
		v := s.Y.At(i, j)
		sum += v * v
	}
	return sum / s.Dof()
}

// Ratio compares the observed innovation norm with its expectation under
// the uninflated ensemble; 1 means the spread is consistent.
func (s *Stats) Ratio() float64 {
	return s.InnovationNorm2() / (s.Trace() + float64(s.P))
}

// clampFactor keeps a factor finite and at least floor.
func clampFactor(f, floor float64) float64 {
	if math.IsNaN(f) || f < floor {
		return floor
	}
	if math.IsInf(f, 1) {
		return math.MaxFloat64
	}
	return f
}

func validateFloor(floor float64) (float64, error) {
	if floor == 0 {
		return DefaultFloor, nil
	}
	if floor < 0 || math.IsNaN(floor) || math.IsInf(floor, 0) {
		return 0, dynamo.Invalidf("inflation floor must be positive, got %g", floor)
	}
	return floor, nil
}
