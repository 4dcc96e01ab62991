package analysis

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

// sqrtTransform applies the ETKF symmetric square root to the inflated
// anomalies A (N×m) given the inflated whitened observed anomalies S (N×p)
// and whitened innovation d. It returns the analysed members minus the
// prior mean.
func sqrtTransform(A, S *mat.Dense, d *mat.VecDense) (*mat.Dense, error) {
	w, T, err := ensembleWeights(S, d)
	if err != nil {
		return nil, err
	}
	n, m := A.Dims()

	// Mean increment wᵀA, broadcast over the transformed anomalies T·A.
	var inc mat.VecDense
	inc.MulVec(A.T(), w)
	post := mat.NewDense(n, m, nil)
	post.Mul(T, A)
	post.Apply(func(_, j int, v float64) float64 { return v + inc.AtVec(j) }, post)
	return post, nil
}

// ensembleWeights returns the mean weights w = (SSᵀ + (N−1)I)⁻¹ S d and the
// symmetric transform T = √(N−1)·(SSᵀ + (N−1)I)^{-1/2}.
func ensembleWeights(S *mat.Dense, d *mat.VecDense) (*mat.VecDense, *mat.Dense, error) {
	n, _ := S.Dims()
	n1 := float64(n - 1)

	C := mat.NewSymDense(n, nil)
	C.SymOuterK(1, S)
	for i := 0; i < n; i++ {
		C.SetSym(i, i, C.At(i, i)+n1)
	}

	V, vals, err := clampedEigen(C, n1)
	if err != nil {
		return nil, nil, fmt.Errorf("ensemble space: %w", err)
	}

	Pw := spectralFunc(V, vals, func(v float64) float64 { return 1 / v })
	T := spectralFunc(V, vals, func(v float64) float64 { return math.Sqrt(n1 / v) })

	var sd, w mat.VecDense
	sd.MulVec(S, d)
	w.MulVec(Pw, &sd)
	return &w, T, nil
}

// clampedEigen factorizes C = B + floor·I with B positive semi-definite.
// Every eigenvalue of such a matrix is at least floor, so smaller computed
// values are rounding error and are raised to floor.
func clampedEigen(C *mat.SymDense, floor float64) (*mat.Dense, []float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(C, true); !ok {
		return nil, nil, fmt.Errorf("%w: eigendecomposition failed", dynamo.ErrSingularCovariance)
	}
	vals := eig.Values(nil)
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("%w: non-finite eigenvalue", dynamo.ErrSingularCovariance)
		}
		vals[i] = math.Max(v, floor)
	}
	var V mat.Dense
	eig.VectorsTo(&V)
	return &V, vals, nil
}

// spectralFunc returns V·diag(f(vals))·Vᵀ.
func spectralFunc(V *mat.Dense, vals []float64, f func(float64) float64) *mat.Dense {
	n := len(vals)
	scaled := mat.DenseCopyOf(V)
	for j := 0; j < n; j++ {
		fj := f(vals[j])
		for i := 0; i < n; i++ {
			scaled.Set(i, j, scaled.At(i, j)*fj)
		}
	}
	out := mat.NewDense(n, n, nil)
	out.Mul(scaled, V.T())
	return out
}

// perturbedObs applies the stochastic EnKF update with centred whitened
// observation perturbations drawn from rng.
func perturbedObs(A, S *mat.Dense, d *mat.VecDense, rng *rand.Rand) (*mat.Dense, error) {
	n, m := A.Dims()
	_, p := S.Dims()
	n1 := float64(n - 1)

	// Innovation covariance SᵀS + (N−1)I in whitened units.
	C := mat.NewSymDense(p, nil)
	C.SymOuterK(1, S.T())
	for i := 0; i < p; i++ {
		C.SetSym(i, i, C.At(i, i)+n1)
	}
	V, vals, err := clampedEigen(C, n1)
	if err != nil {
		return nil, fmt.Errorf("innovation covariance: %w", err)
	}

	eps := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for k := 0; k < p; k++ {
			eps.Set(i, k, rng.NormFloat64())
		}
	}
	for k := 0; k < p; k++ {
		col := mat.Col(nil, k, eps)
		mu := 0.0
		for _, v := range col {
			mu += v
		}
		mu /= float64(n)
		for i := 0; i < n; i++ {
			eps.Set(i, k, eps.At(i, k)-mu)
		}
	}

	// Member innovations d + εᵢ − Sᵢ, one per row.
	D := mat.NewDense(n, p, nil)
	D.Apply(func(i, k int, v float64) float64 { return d.AtVec(k) + v - S.At(i, k) }, eps)

	var Z mat.Dense
	Z.Mul(spectralFunc(V, vals, func(v float64) float64 { return 1 / v }), D.T())

	// Increments Zᵀ Sᵀ A, one per member.
	var G mat.Dense
	G.Mul(Z.T(), S.T())
	post := mat.NewDense(n, m, nil)
	post.Mul(&G, A)
	post.Add(post, A)
	return post, nil
}
