package inflation

import (
	"math"
	"math/rand"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"
)

func TestInflation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Inflation Suite")
}

// observedAnomalies returns centred N×p anomalies with entries of the given scale.
func observedAnomalies(rng *rand.Rand, n, p int, scale float64) *mat.Dense {
	y := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		mean := 0.0
		for i := 0; i < n; i++ {
			v := scale * rng.NormFloat64()
			y.Set(i, j, v)
			mean += v
		}
		mean /= float64(n)
		for i := 0; i < n; i++ {
			y.Set(i, j, y.At(i, j)-mean)
		}
	}
	return y
}

func constantInnovation(p int, v float64) *mat.VecDense {
	d := mat.NewVecDense(p, nil)
	for j := 0; j < p; j++ {
		d.SetVec(j, v)
	}
	return d
}

func mustStats(y *mat.Dense, d *mat.VecDense) *Stats {
	s, err := NewStats(y, d)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
