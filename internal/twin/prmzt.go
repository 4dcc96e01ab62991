package twin

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

// MaxOrder is the highest parameterization order fitted.
const MaxOrder = 3

// Polynomial is a parameterization g(x) = Σ Coeffs[i]·xⁱ.
type Polynomial struct {
	coeffs []float64
}

func NewPolynomial(coeffs ...float64) Polynomial {
	return Polynomial{coeffs: append([]float64(nil), coeffs...)}
}

func (p Polynomial) Tendency(x float64) float64 {
	v := 0.0
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		v = v*x + p.coeffs[i]
	}
	return v
}

func (p Polynomial) Order() int { return len(p.coeffs) - 1 }

// Coeffs returns a copy of the coefficients, lowest power first.
func (p Polynomial) Coeffs() []float64 {
	return append([]float64(nil), p.coeffs...)
}

func (p Polynomial) String() string {
	terms := make([]string, len(p.coeffs))
	for i, c := range p.coeffs {
		switch i {
		case 0:
			terms[i] = fmt.Sprintf("%.4g", c)
		case 1:
			terms[i] = fmt.Sprintf("%.4g·x", c)
		default:
			terms[i] = fmt.Sprintf("%.4g·x^%d", c, i)
		}
	}
	return strings.Join(terms, " + ")
}

// momentFitter accumulates the normal equations of polynomial least squares
// without storing the samples.
type momentFitter struct {
	pow [2*MaxOrder + 1]float64 // Σ xᵏ
	rhs [MaxOrder + 1]float64   // Σ xᵏ·g
	n   int
}

func (f *momentFitter) Add(x, g float64) {
	xk := 1.0
	for k := range f.pow {
		f.pow[k] += xk
		if k < len(f.rhs) {
			f.rhs[k] += xk * g
		}
		xk *= x
	}
	f.n++
}

// Fit solves for the least-squares polynomial of the given order.
func (f *momentFitter) Fit(order int) (Polynomial, error) {
	if order < 0 || order > MaxOrder {
		return Polynomial{}, dynamo.Invalidf("parameterization order %d outside [0, %d]", order, MaxOrder)
	}
	if f.n <= order {
		return Polynomial{}, fmt.Errorf("%w: %d samples for an order %d fit", dynamo.ErrInsufficientData, f.n, order)
	}

	k := order + 1
	normal := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			normal.SetSym(i, j, f.pow[i+j])
		}
	}
	b := mat.NewVecDense(k, f.rhs[:k])

	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return Polynomial{}, fmt.Errorf("%w: degenerate parameterization samples", dynamo.ErrSingularCovariance)
	}
	var c mat.VecDense
	if err := chol.SolveVecTo(&c, b); err != nil {
		return Polynomial{}, fmt.Errorf("%w: %v", dynamo.ErrSingularCovariance, err)
	}
	return NewPolynomial(c.RawVector().Data...), nil
}

// FitAll returns one polynomial per order 0..MaxOrder.
func (f *momentFitter) FitAll() (map[int]Polynomial, error) {
	out := make(map[int]Polynomial, MaxOrder+1)
	for order := 0; order <= MaxOrder; order++ {
		p, err := f.Fit(order)
		if err != nil {
			return nil, err
		}
		out[order] = p
	}
	return out, nil
}
