package inflation

import (
	"math"

	"github.com/san-kum/adinf/internal/dynamo"
)

// ExplicitFiniteSize keeps a scaled inverse-chi-square belief (β, ν) on the
// variance inflation factor, updated in closed form from the innovation
// norm. The anomaly factor is √β.
type ExplicitFiniteSize struct {
	floor float64
	nuF   float64

	beta   float64
	nu     float64
	cycles int
}

// NewExplicitFiniteSize starts the belief at β = prior with nuF degrees of
// freedom. Smaller nuF forgets faster.
func NewExplicitFiniteSize(prior, nuF, floor float64) (*ExplicitFiniteSize, error) {
	floor, err := validateFloor(floor)
	if err != nil {
		return nil, err
	}
	if err := validateBelief(prior, nuF); err != nil {
		return nil, err
	}
	return &ExplicitFiniteSize{
		floor: floor,
		nuF:   nuF,
		beta:  math.Max(prior, floor*floor),
		nu:    nuF,
	}, nil
}

func (x *ExplicitFiniteSize) Name() string { return "explicit-finite-size" }

func (x *ExplicitFiniteSize) Update(s *Stats) (Inflation, error) {
	eps := float64(s.N+1) / float64(s.N)
	x.beta, x.nu = blend(x.beta, x.nu, x.nuF, s, eps)
	if floor2 := x.floor * x.floor; x.beta < floor2 {
		x.beta = floor2
	}
	x.cycles++
	return x.Current(), nil
}

func (x *ExplicitFiniteSize) Current() Inflation {
	return Inflation{
		Factor: clampFactor(math.Sqrt(x.beta), x.floor),
		A:      x.nu / 2,
		B:      x.nu * x.beta / 2,
		Dual:   1,
	}
}

func (x *ExplicitFiniteSize) Cycles() int { return x.cycles }

// blend forgets the belief down to nuF degrees of freedom and merges it with
// the point estimate implied by the innovation norm, weighted by p.
func blend(beta, nu, nuF float64, s *Stats, eps float64) (float64, float64) {
	nu = math.Min(nu, nuF)
	tr := s.Trace()
	if tr <= tiny*float64(s.P) {
		return beta, nu
	}
	p := float64(s.P)
	estimate := math.Max(s.InnovationNorm2()-p, 0) / (eps * tr)
	posterior := nu + p
	return (nu*beta + p*estimate) / posterior, posterior
}

func validateBelief(prior, nuF float64) error {
	if !(prior > 0) || math.IsInf(prior, 0) {
		return dynamo.Invalidf("prior variance factor must be positive, got %g", prior)
	}
	if !(nuF > 0) || math.IsInf(nuF, 0) {
		return dynamo.Invalidf("nu_f must be positive, got %g", nuF)
	}
	return nil
}
