package inflation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

// RecursiveVariance keeps a Gaussian belief N(λ, σ²) on the variance
// inflation factor and updates it one observation at a time following
// Anderson (2007). The anomaly factor is √λ.
type RecursiveVariance struct {
	floor float64
	varF  float64
	damp  float64

	mean     float64
	variance float64
	cycles   int
}

// NewRecursiveVariance starts the belief at mean prior and variance varF.
// damp in [0, 1] relaxes the prior mean toward 1 at the start of every
// cycle; 1 keeps it unchanged.
func NewRecursiveVariance(prior, varF, damp, floor float64) (*RecursiveVariance, error) {
	floor, err := validateFloor(floor)
	if err != nil {
		return nil, err
	}
	if !(varF > 0) || math.IsInf(varF, 0) {
		return nil, dynamo.Invalidf("var_f must be positive, got %g", varF)
	}
	if !(damp >= 0 && damp <= 1) {
		return nil, dynamo.Invalidf("damp must be within [0, 1], got %g", damp)
	}
	if !(prior > 0) || math.IsInf(prior, 0) {
		return nil, dynamo.Invalidf("prior variance factor must be positive, got %g", prior)
	}
	return &RecursiveVariance{
		floor:    floor,
		varF:     varF,
		damp:     damp,
		mean:     math.Max(prior, floor*floor),
		variance: varF,
	}, nil
}

func (r *RecursiveVariance) Name() string { return "recursive-variance" }

func (r *RecursiveVariance) Update(s *Stats) (Inflation, error) {
	lam := 1 + r.damp*(r.mean-1)
	v := r.varF
	for j := 0; j < s.P; j++ {
		sy := s.ComponentVar(j)
		if sy <= tiny {
			continue
		}
		d := s.D.AtVec(j)
		lam, v = andersonUpdate(lam, v, sy, 1, d*d)
	}

	floor2 := r.floor * r.floor
	if math.IsNaN(lam) || lam < floor2 {
		lam = floor2
	}
	r.mean, r.variance = lam, v
	r.cycles++
	return r.Current(), nil
}

func (r *RecursiveVariance) Current() Inflation {
	return Inflation{
		Factor: clampFactor(math.Sqrt(r.mean), r.floor),
		A:      r.mean,
		B:      r.variance,
		Dual:   1,
	}
}

func (r *RecursiveVariance) Cycles() int { return r.cycles }

// andersonUpdate folds a single scalar innovation with squared value d2,
// prior ensemble variance sy and noise variance so into the belief (lp, vp).
func andersonUpdate(lp, vp, sy, so, d2 float64) (float64, float64) {
	logPost := func(lam float64) float64 {
		u := lam*sy + so
		return -0.5*(lam-lp)*(lam-lp)/vp - 0.5*math.Log(u) - 0.5*d2/u
	}

	// Stationary points satisfy, with u = λ·sy + so,
	//   2u³ − 2(so + sy·λp)u² + sy²σp²u − sy²σp²d² = 0.
	c2 := -(so + sy*lp)
	c1 := 0.5 * sy * sy * vp
	c0 := -0.5 * sy * sy * vp * d2

	lu, ok := closestRoot(c2, c1, c0, func(u float64) (float64, bool) {
		lam := (u - so) / sy
		return lam, lam > 0
	}, lp)
	if !ok {
		return lp, vp
	}

	sp := math.Sqrt(vp)
	ratio := math.Exp(logPost(lu+sp) - logPost(lu))
	vu := vp
	if ratio > 0 && ratio < 1 {
		vu = -vp / (2 * math.Log(ratio))
	}
	if math.IsNaN(vu) || vu > vp {
		vu = vp
	}
	return lu, vu
}

// closestRoot solves u³ + c2u² + c1u + c0 = 0 through the eigenvalues of its
// companion matrix and returns the admissible mapped root closest to target.
func closestRoot(c2, c1, c0 float64, mapRoot func(u float64) (float64, bool), target float64) (float64, bool) {
	companion := mat.NewDense(3, 3, []float64{
		-c2, -c1, -c0,
		1, 0, 0,
		0, 1, 0,
	})
	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return 0, false
	}

	best, found := 0.0, false
	for _, z := range eig.Values(nil) {
		re, im := real(z), imag(z)
		if math.Abs(im) > 1e-8*math.Max(1, math.Abs(re)) {
			continue
		}
		lam, ok := mapRoot(re)
		if !ok {
			continue
		}
		if !found || math.Abs(lam-target) < math.Abs(best-target) {
			best, found = lam, true
		}
	}
	return best, found
}
