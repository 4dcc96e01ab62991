package inflation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/adinf/internal/dynamo"
)

// MaxCondition bounds the condition number of the ensemble-space precision
// when the dual factor is conditioned.
const MaxCondition = 1e6

// FiniteSize is the EnKF-N dual inflation. When adaptive, a recursive
// explicit belief β is updated first and the dual factor is computed on the
// β-scaled ensemble; the anomaly factor is then √β·l.
type FiniteSize struct {
	floor    float64
	cond     bool
	adaptive bool
	nuF      float64

	beta   float64
	nu     float64
	dual   float64
	cycles int
}

// NewFiniteSize returns the non-adaptive dual estimator (β ≡ 1).
func NewFiniteSize(floor float64, cond bool) (*FiniteSize, error) {
	floor, err := validateFloor(floor)
	if err != nil {
		return nil, err
	}
	return &FiniteSize{floor: floor, cond: cond, beta: 1, dual: 1}, nil
}

// NewFiniteSizeConditioned returns the hybrid of the explicit belief and the
// dual factor.
func NewFiniteSizeConditioned(prior, nuF, floor float64, cond bool) (*FiniteSize, error) {
	floor, err := validateFloor(floor)
	if err != nil {
		return nil, err
	}
	if err := validateBelief(prior, nuF); err != nil {
		return nil, err
	}
	return &FiniteSize{
		floor:    floor,
		cond:     cond,
		adaptive: true,
		nuF:      nuF,
		beta:     math.Max(prior, floor*floor),
		nu:       nuF,
		dual:     1,
	}, nil
}

func (f *FiniteSize) Name() string {
	if f.adaptive {
		return "finite-size-conditioned"
	}
	return "finite-size"
}

func (f *FiniteSize) Update(s *Stats) (Inflation, error) {
	beta := f.beta
	nu := f.nu
	if f.adaptive {
		beta, nu = blend(beta, nu, f.nuF, s, 1)
		if floor2 := f.floor * f.floor; beta < floor2 {
			beta = floor2
		}
	}

	l2, err := dualFactor(s, beta, f.cond)
	if err != nil {
		return f.Current(), err
	}

	f.beta, f.nu = beta, nu
	f.dual = math.Sqrt(l2)
	f.cycles++
	return f.Current(), nil
}

func (f *FiniteSize) Current() Inflation {
	inf := Inflation{
		Factor: clampFactor(math.Sqrt(f.beta)*f.dual, f.floor),
		Dual:   f.dual,
	}
	if f.adaptive {
		inf.A = f.nu / 2
		inf.B = f.nu * f.beta / 2
	}
	return inf
}

func (f *FiniteSize) Cycles() int { return f.cycles }

// dualFactor minimises the EnKF-N dual cost
//
//	J(l²) = Σ du²/(l²·β·σ² + N−1) + ε_N/l² + c_L·ln l²
//
// over x = ln l² and returns l².
func dualFactor(s *Stats, beta float64, cond bool) (float64, error) {
	n := float64(s.N)
	n1 := s.Dof()
	epsN := (n + 1) / n
	cL := n / n1

	sig2 := make([]float64, len(s.Sigma))
	maxSig2 := 0.0
	for i, sv := range s.Sigma {
		sig2[i] = beta * sv * sv
		maxSig2 = math.Max(maxSig2, sig2[i])
	}

	const xMax = 40.0
	bound := func(x float64) float64 {
		return math.Max(-xMax, math.Min(xMax, x))
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			t := math.Exp(bound(x[0]))
			j := epsN/t + cL*x[0]
			for i, du := range s.DU {
				j += du * du / (t*sig2[i] + n1)
			}
			return j
		},
		Grad: func(grad, x []float64) {
			t := math.Exp(bound(x[0]))
			g := cL - epsN/t
			for i, du := range s.DU {
				den := t*sig2[i] + n1
				g -= du * du * sig2[i] * t / (den * den)
			}
			grad[0] = g
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-10,
		MajorIterations:   200,
	}
	result, err := optimize.Minimize(problem, []float64{0}, settings, &optimize.BFGS{})
	if result == nil || len(result.X) == 0 || math.IsNaN(result.X[0]) {
		return 0, fmt.Errorf("%w: dual inflation did not converge: %v", dynamo.ErrSingularCovariance, err)
	}

	l2 := math.Exp(bound(result.X[0]))
	if cond && maxSig2 > 0 {
		if lMax := (MaxCondition - 1) * n1 / maxSig2; l2 > lMax {
			l2 = lMax
		}
	}
	return l2, nil
}
