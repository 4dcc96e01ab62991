// Package obs describes how the state is observed: the observation operator,
// the observation-noise covariance and the sampling of noisy observations.
package obs

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

// Operator maps states to expected observations.
type Operator interface {
	// Dim is the length p of an observation.
	Dim() int
	// Apply maps every row of states (N×m) to an observation row (N×p).
	Apply(states mat.Matrix) *mat.Dense
}

// Locator is implemented by operators whose observations have a position
// on the periodic state domain, which enables localization.
type Locator interface {
	Locations() []float64
}

// Observation is one cycle's observed vector and its noise covariance.
type Observation struct {
	Value *mat.VecDense
	Noise *mat.SymDense
}

// Dim returns p.
func (o Observation) Dim() int { return o.Value.Len() }

// PartialDirect observes a subset of state coordinates directly.
type PartialDirect struct {
	m       int
	indices []int
}

// NewPartialDirect observes the given indices of an m-dimensional state.
func NewPartialDirect(m int, indices []int) (*PartialDirect, error) {
	if len(indices) == 0 {
		return nil, dynamo.Invalidf("no observed indices")
	}
	idx := make([]int, len(indices))
	for i, j := range indices {
		if j < 0 || j >= m {
			return nil, dynamo.Invalidf("observed index %d outside state of dimension %d", j, m)
		}
		idx[i] = j
	}
	return &PartialDirect{m: m, indices: idx}, nil
}

// Direct observes all m coordinates.
func Direct(m int) *PartialDirect {
	idx := make([]int, m)
	for i := range idx {
		idx[i] = i
	}
	return &PartialDirect{m: m, indices: idx}
}

func (h *PartialDirect) Dim() int { return len(h.indices) }

func (h *PartialDirect) Apply(states mat.Matrix) *mat.Dense {
	n, _ := states.Dims()
	out := mat.NewDense(n, len(h.indices), nil)
	for i := 0; i < n; i++ {
		for k, j := range h.indices {
			out.Set(i, k, states.At(i, j))
		}
	}
	return out
}

// Locations are the observed state indices.
func (h *PartialDirect) Locations() []float64 {
	loc := make([]float64, len(h.indices))
	for k, j := range h.indices {
		loc[k] = float64(j)
	}
	return loc
}

// Project returns the observed part of a single state.
func (h *PartialDirect) Project(x dynamo.State) *mat.VecDense {
	v := mat.NewVecDense(len(h.indices), nil)
	for k, j := range h.indices {
		v.SetVec(k, x[j])
	}
	return v
}

// Noise is a Gaussian observation-noise model with a fixed covariance.
type Noise struct {
	cov  *mat.SymDense
	chol mat.TriDense
}

// NewNoise factorizes cov; it must be symmetric positive definite.
func NewNoise(cov *mat.SymDense) (*Noise, error) {
	var c mat.Cholesky
	if ok := c.Factorize(cov); !ok {
		return nil, fmt.Errorf("%w: observation noise is not positive definite", dynamo.ErrInvalidConfiguration)
	}
	n := &Noise{cov: mat.NewSymDense(cov.SymmetricDim(), nil)}
	n.cov.CopySym(cov)
	c.LTo(&n.chol)
	return n, nil
}

// IsotropicNoise is variance·I of dimension p.
func IsotropicNoise(p int, variance float64) (*Noise, error) {
	if variance <= 0 || math.IsNaN(variance) {
		return nil, dynamo.Invalidf("observation noise variance must be positive, got %g", variance)
	}
	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		cov.SetSym(i, i, variance)
	}
	return NewNoise(cov)
}

// Cov returns the covariance matrix.
func (n *Noise) Cov() *mat.SymDense { return n.cov }

// Sample draws one noise realisation from rng.
func (n *Noise) Sample(rng *rand.Rand) *mat.VecDense {
	p := n.cov.SymmetricDim()
	z := mat.NewVecDense(p, nil)
	for i := 0; i < p; i++ {
		z.SetVec(i, rng.NormFloat64())
	}
	out := mat.NewVecDense(p, nil)
	out.MulVec(&n.chol, z)
	return out
}

// Observe returns h(x) + noise as an Observation.
func (n *Noise) Observe(h *PartialDirect, x dynamo.State, rng *rand.Rand) Observation {
	y := h.Project(x)
	y.AddVec(y, n.Sample(rng))
	return Observation{Value: y, Noise: n.cov}
}
