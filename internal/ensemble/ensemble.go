// Package ensemble holds the N×m ensemble matrix passed through the
// forecast/analysis cycles, and the moment computations shared by the
// analysis engine and the statistics accumulator.
package ensemble

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

// Ensemble is an ordered collection of N state vectors of dimension m,
// stored row-wise. It is owned by the cycle processing it.
type Ensemble struct {
	members *mat.Dense
}

// New wraps an N×m matrix. The matrix is not copied.
func New(members *mat.Dense) (*Ensemble, error) {
	n, m := members.Dims()
	if n < 2 {
		return nil, fmt.Errorf("%w: ensemble needs at least 2 members, got %d", dynamo.ErrInvalidConfiguration, n)
	}
	if m < 1 {
		return nil, fmt.Errorf("%w: ensemble members have zero dimension", dynamo.ErrInvalidConfiguration)
	}
	return &Ensemble{members: members}, nil
}

// FromStates copies the given states into a new ensemble.
func FromStates(states []dynamo.State) (*Ensemble, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: empty ensemble", dynamo.ErrInvalidConfiguration)
	}
	m := len(states[0])
	data := make([]float64, 0, len(states)*m)
	for i, s := range states {
		if len(s) != m {
			return nil, fmt.Errorf("%w: member %d has dimension %d, want %d", dynamo.ErrDimensionMismatch, i, len(s), m)
		}
		data = append(data, s...)
	}
	if m == 0 {
		return nil, fmt.Errorf("%w: ensemble members have zero dimension", dynamo.ErrInvalidConfiguration)
	}
	return New(mat.NewDense(len(states), m, data))
}

// Dims returns the ensemble size N and the state dimension m.
func (e *Ensemble) Dims() (n, m int) { return e.members.Dims() }

// Members exposes the underlying matrix.
func (e *Ensemble) Members() *mat.Dense { return e.members }

// Member returns a copy of member i.
func (e *Ensemble) Member(i int) dynamo.State {
	_, m := e.members.Dims()
	s := make(dynamo.State, m)
	copy(s, e.members.RawRowView(i))
	return s
}

// SetMember overwrites member i.
func (e *Ensemble) SetMember(i int, s dynamo.State) {
	e.members.SetRow(i, s)
}

func (e *Ensemble) Clone() *Ensemble {
	return &Ensemble{members: mat.DenseCopyOf(e.members)}
}

// Mean returns the ensemble mean.
func (e *Ensemble) Mean() *mat.VecDense {
	return RowMean(e.members)
}

// Anomalies returns the deviations of every member from the mean, along
// with the mean itself.
func (e *Ensemble) Anomalies() (*mat.Dense, *mat.VecDense) {
	return Center(e.members)
}

// Variance returns the per-coordinate sample variance (N-1 normalisation).
func (e *Ensemble) Variance() []float64 {
	n, m := e.members.Dims()
	a, _ := e.Anomalies()
	v := make([]float64, m)
	for i := 0; i < n; i++ {
		row := a.RawRowView(i)
		for j := range v {
			v[j] += row[j] * row[j]
		}
	}
	for j := range v {
		v[j] /= float64(n - 1)
	}
	return v
}

// Spread is the root of the mean sample variance over coordinates.
func (e *Ensemble) Spread() float64 {
	v := e.Variance()
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return math.Sqrt(sum / float64(len(v)))
}

// IsValid reports whether every entry is finite.
func (e *Ensemble) IsValid() bool {
	n, _ := e.members.Dims()
	for i := 0; i < n; i++ {
		if !dynamo.State(e.members.RawRowView(i)).IsValid() {
			return false
		}
	}
	return true
}

// RowMean returns the mean of the rows of a.
func RowMean(a mat.Matrix) *mat.VecDense {
	n, m := a.Dims()
	mean := mat.NewVecDense(m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			mean.SetVec(j, mean.AtVec(j)+a.At(i, j))
		}
	}
	mean.ScaleVec(1/float64(n), mean)
	return mean
}

// Center subtracts the row mean from every row of a.
func Center(a mat.Matrix) (*mat.Dense, *mat.VecDense) {
	n, m := a.Dims()
	mean := RowMean(a)
	out := mat.NewDense(n, m, nil)
	out.Apply(func(i, j int, v float64) float64 { return v - mean.AtVec(j) }, a)
	return out, mean
}
