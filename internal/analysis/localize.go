package analysis

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// GaspariCohn is the fifth-order piecewise rational taper of Gaspari and
// Cohn (1999) evaluated at r = distance/radius. It is 1 at r = 0 and zero
// for r >= 2.
func GaspariCohn(r float64) float64 {
	r = math.Abs(r)
	switch {
	case r >= 2:
		return 0
	case r <= 1:
		r2 := r * r
		return -0.25*r2*r2*r + 0.5*r2*r2 + 0.625*r2*r - 5.0/3.0*r2 + 1
	default:
		r2 := r * r
		return r2*r2*r/12 - 0.5*r2*r2 + 0.625*r2*r + 5.0/3.0*r2 - 5*r + 4 - 2.0/(3*r)
	}
}

// periodicDistance is the distance between grid positions a and b on a ring
// of m points.
func periodicDistance(a, b float64, m int) float64 {
	dx := math.Abs(a - b)
	return math.Min(dx, float64(m)-dx)
}

// localSqrt runs one symmetric square-root analysis per state coordinate
// using only the observations within reach of the taper, weighted by it.
func localSqrt(A, S *mat.Dense, d *mat.VecDense, locs []float64, radius float64) (*mat.Dense, error) {
	n, m := A.Dims()
	post := mat.DenseCopyOf(A)

	for j := 0; j < m; j++ {
		var sel []int
		var taper []float64
		for k, loc := range locs {
			if c := GaspariCohn(periodicDistance(float64(j), loc, m) / radius); c > 0 {
				sel = append(sel, k)
				taper = append(taper, math.Sqrt(c))
			}
		}
		if len(sel) == 0 {
			continue
		}

		Sl := mat.NewDense(n, len(sel), nil)
		dl := mat.NewVecDense(len(sel), nil)
		for c, k := range sel {
			dl.SetVec(c, d.AtVec(k)*taper[c])
			for i := 0; i < n; i++ {
				Sl.Set(i, c, S.At(i, k)*taper[c])
			}
		}

		w, T, err := ensembleWeights(Sl, dl)
		if err != nil {
			return nil, err
		}
		col := A.ColView(j)
		var xa mat.VecDense
		xa.MulVec(T, col)
		inc := mat.Dot(w, col)
		for i := 0; i < n; i++ {
			post.Set(i, j, xa.AtVec(i)+inc)
		}
	}
	return post, nil
}
