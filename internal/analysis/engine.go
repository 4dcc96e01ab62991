package analysis

import (
	"fmt"
	"math/rand"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/ensemble"
	"github.com/san-kum/adinf/internal/inflation"
	"github.com/san-kum/adinf/internal/obs"
)

// Diagnostics reports the inflation actually applied in one analysis.
type Diagnostics struct {
	Inflation float64
	A, B      float64
	Dual      float64
	// InnovationRatio is |d|² over its expectation under the uninflated
	// ensemble, in whitened units.
	InnovationRatio float64
}

type Engine struct {
	op        obs.Operator
	transform string
	radius    float64
	locs      []float64
	rng       *rand.Rand
}

// NewEngine validates cfg against the operator. rng is required by the
// perturbed-observations transform.
func NewEngine(op obs.Operator, cfg config.Filter, rng *rand.Rand) (*Engine, error) {
	if op == nil {
		return nil, dynamo.Invalidf("nil observation operator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	e := &Engine{op: op, transform: cfg.Transform, radius: cfg.L, rng: rng}
	if cfg.Transform == TransformPertObs && rng == nil {
		return nil, dynamo.Invalidf("%s transform needs a random source", TransformPertObs)
	}
	if cfg.L > 0 {
		loc, ok := op.(obs.Locator)
		if !ok {
			return nil, dynamo.Invalidf("localization needs an operator with observation locations")
		}
		e.locs = loc.Locations()
	}
	return e, nil
}

// Analyze returns the analysed ensemble. E is not modified.
func (e *Engine) Analyze(E *ensemble.Ensemble, ob obs.Observation, est inflation.Estimator) (*ensemble.Ensemble, Diagnostics, error) {
	n, m := E.Dims()
	p := e.op.Dim()
	if ob.Value == nil || ob.Value.Len() != p {
		return nil, Diagnostics{}, fmt.Errorf("%w: observation length does not match operator dimension %d", dynamo.ErrDimensionMismatch, p)
	}
	if ob.Noise == nil || ob.Noise.SymmetricDim() != p {
		return nil, Diagnostics{}, fmt.Errorf("%w: noise covariance must be %dx%d", dynamo.ErrDimensionMismatch, p, p)
	}

	A, mean := E.Anomalies()
	if mat.Norm(A, 2) == 0 {
		return nil, Diagnostics{}, dynamo.ErrEnsembleCollapse
	}

	Y, yMean := ensemble.Center(e.op.Apply(E.Members()))
	d := mat.NewVecDense(p, nil)
	d.SubVec(ob.Value, yMean)

	Yw, dw, err := whiten(Y, d, ob.Noise)
	if err != nil {
		return nil, Diagnostics{}, err
	}

	stats, err := inflation.NewStats(Yw, dw)
	if err != nil {
		return nil, Diagnostics{}, err
	}
	inf, err := est.Update(stats)
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("inflation update: %w", err)
	}
	diag := Diagnostics{
		Inflation:       inf.Factor,
		A:               inf.A,
		B:               inf.B,
		Dual:            inf.Dual,
		InnovationRatio: stats.Ratio(),
	}

	A.Scale(inf.Factor, A)
	Yw.Scale(inf.Factor, Yw)

	var post *mat.Dense
	switch {
	case e.radius > 0:
		post, err = localSqrt(A, Yw, dw, e.locs, e.radius)
	case e.transform == TransformPertObs:
		post, err = perturbedObs(A, Yw, dw, e.rng)
	default:
		post, err = sqrtTransform(A, Yw, dw)
	}
	if err != nil {
		return nil, diag, err
	}

	post.Apply(func(_, j int, v float64) float64 { return v + mean.AtVec(j) }, post)
	out, err := ensemble.New(post)
	if err != nil {
		return nil, diag, err
	}
	if !out.IsValid() {
		return nil, diag, fmt.Errorf("%w: analysis produced non-finite members", dynamo.ErrSingularCovariance)
	}

	log.WithFields(log.Fields{
		"N":         n,
		"m":         m,
		"p":         p,
		"inflation": inf.Factor,
		"ratio":     diag.InnovationRatio,
		"estimator": est.Name(),
	}).Debug("analysis complete")

	return out, diag, nil
}

// whiten returns Y L⁻ᵀ and L⁻¹d where R = L Lᵀ.
func whiten(Y *mat.Dense, d *mat.VecDense, R *mat.SymDense) (*mat.Dense, *mat.VecDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(R); !ok {
		return nil, nil, fmt.Errorf("%w: observation noise is not positive definite", dynamo.ErrSingularCovariance)
	}
	var L mat.TriDense
	chol.LTo(&L)

	var yt mat.Dense
	if err := yt.Solve(&L, Y.T()); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", dynamo.ErrSingularCovariance, err)
	}
	var dw mat.VecDense
	if err := dw.SolveVec(&L, d); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", dynamo.ErrSingularCovariance, err)
	}
	return mat.DenseCopyOf(yt.T()), &dw, nil
}
