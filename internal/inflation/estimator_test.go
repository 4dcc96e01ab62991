package inflation

import (
	"errors"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

var _ = Describe("Stats", func() {
	It("should decompose the observed anomalies", func() {
		rng := rand.New(rand.NewSource(1))
		y := observedAnomalies(rng, 8, 3, 1)
		d := mat.NewVecDense(3, []float64{1, -2, 0.5})
		s := mustStats(y, d)

		Expect(s.N).To(Equal(8))
		Expect(s.P).To(Equal(3))
		Expect(s.Sigma).To(HaveLen(3))
		Expect(s.InnovationNorm2()).To(BeNumerically("~", 5.25, 1e-12))

		// |DU| equals |D| when p <= N.
		norm := 0.0
		for _, v := range s.DU {
			norm += v * v
		}
		Expect(norm).To(BeNumerically("~", 5.25, 1e-9))

		total := 0.0
		for j := 0; j < 3; j++ {
			total += s.ComponentVar(j)
		}
		Expect(s.Trace()).To(BeNumerically("~", total, 1e-9))
	})

	It("should reject mismatched innovations", func() {
		y := mat.NewDense(4, 2, nil)
		_, err := NewStats(y, mat.NewVecDense(3, nil))
		Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
	})
})

var _ = Describe("Estimators", func() {
	const (
		n = 20
		p = 6
	)
	var y *mat.Dense

	BeforeEach(func() {
		y = observedAnomalies(rand.New(rand.NewSource(42)), n, p, 0.8)
	})

	builders := []struct {
		name string
		mk   func() Estimator
	}{
		{"fixed", func() Estimator {
			e, err := NewFixed(1.3, 0)
			Expect(err).NotTo(HaveOccurred())
			return e
		}},
		{"recursive-variance", func() Estimator {
			e, err := NewRecursiveVariance(1, 1e-2, 0.9, 0)
			Expect(err).NotTo(HaveOccurred())
			return e
		}},
		{"explicit-finite-size", func() Estimator {
			e, err := NewExplicitFiniteSize(1, 1e3, 0)
			Expect(err).NotTo(HaveOccurred())
			return e
		}},
		{"finite-size", func() Estimator {
			e, err := NewFiniteSize(0, true)
			Expect(err).NotTo(HaveOccurred())
			return e
		}},
		{"finite-size-conditioned", func() Estimator {
			e, err := NewFiniteSizeConditioned(1, 1e4, 0, false)
			Expect(err).NotTo(HaveOccurred())
			return e
		}},
	}

	for _, b := range builders {
		name, mk := b.name, b.mk
		Context(name, func() {
			It("should report its name and count cycles", func() {
				est := mk()
				Expect(est.Name()).To(Equal(name))
				Expect(est.Cycles()).To(Equal(0))
				_, err := est.Update(mustStats(y, constantInnovation(p, 1)))
				Expect(err).NotTo(HaveOccurred())
				Expect(est.Cycles()).To(Equal(1))
			})

			It("should stay above the floor for zero innovations", func() {
				est := mk()
				for k := 0; k < 50; k++ {
					inf, err := est.Update(mustStats(y, constantInnovation(p, 0)))
					Expect(err).NotTo(HaveOccurred())
					Expect(finite(inf.Factor)).To(BeTrue())
					Expect(inf.Factor).To(BeNumerically(">=", DefaultFloor))
				}
			})

			It("should stay finite for huge innovations", func() {
				est := mk()
				for k := 0; k < 5; k++ {
					inf, err := est.Update(mustStats(y, constantInnovation(p, 1e8)))
					Expect(err).NotTo(HaveOccurred())
					Expect(finite(inf.Factor)).To(BeTrue())
					Expect(inf.Factor).To(BeNumerically(">=", DefaultFloor))
				}
			})

			It("should leave Current unchanged", func() {
				est := mk()
				before := est.Current()
				Expect(est.Current()).To(Equal(before))
				Expect(est.Cycles()).To(Equal(0))
			})
		})
	}

	Describe("construction", func() {
		It("should reject invalid parameters", func() {
			_, err := NewFixed(0, 0)
			Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
			_, err = NewRecursiveVariance(1, 0, 1, 0)
			Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
			_, err = NewRecursiveVariance(1, 1e-2, 1.5, 0)
			Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
			_, err = NewExplicitFiniteSize(1, -1, 0)
			Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
			_, err = NewFiniteSize(-0.1, false)
			Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
		})
	})

	Describe("RecursiveVariance", func() {
		It("should keep the belief when innovations match the prior", func() {
			est, err := NewRecursiveVariance(1.2, 1e-2, 1, 0)
			Expect(err).NotTo(HaveOccurred())

			s := mustStats(y, mat.NewVecDense(p, nil))
			d := mat.NewVecDense(p, nil)
			for j := 0; j < p; j++ {
				d.SetVec(j, math.Sqrt(1.2*s.ComponentVar(j)+1))
			}
			inf, err := est.Update(mustStats(y, d))
			Expect(err).NotTo(HaveOccurred())
			Expect(inf.A).To(BeNumerically("~", 1.2, 1e-6))
			Expect(inf.Factor).To(BeNumerically("~", math.Sqrt(1.2), 1e-6))
			Expect(inf.B).To(BeNumerically("<=", 1e-2))
		})

		It("should grow with large innovations and shrink with small ones", func() {
			grow, _ := NewRecursiveVariance(1, 1e-2, 1, 0)
			inf, err := grow.Update(mustStats(y, constantInnovation(p, 5)))
			Expect(err).NotTo(HaveOccurred())
			Expect(inf.A).To(BeNumerically(">", 1))

			shrink, _ := NewRecursiveVariance(1, 1e-2, 1, 0)
			inf, err = shrink.Update(mustStats(y, constantInnovation(p, 0)))
			Expect(err).NotTo(HaveOccurred())
			Expect(inf.A).To(BeNumerically("<", 1))
			Expect(inf.A).To(BeNumerically(">", 0.5))
		})

		It("should damp the prior toward one", func() {
			est, _ := NewRecursiveVariance(2, 1e-2, 0.5, 0)
			// Zero-variance anomalies carry no information; only damping acts.
			inf, err := est.Update(mustStats(mat.NewDense(n, p, nil), constantInnovation(p, 1)))
			Expect(err).NotTo(HaveOccurred())
			Expect(inf.A).To(BeNumerically("~", 1.5, 1e-12))
		})
	})

	Describe("ExplicitFiniteSize", func() {
		consistent := func(s *Stats, beta float64) *mat.VecDense {
			eps := float64(s.N+1) / float64(s.N)
			v := math.Sqrt((float64(s.P) + eps*beta*s.Trace()) / float64(s.P))
			return constantInnovation(s.P, v)
		}

		It("should keep beta when the innovation norm matches it", func() {
			est, _ := NewExplicitFiniteSize(1.1, 1e3, 0)
			s := mustStats(y, mat.NewVecDense(p, nil))
			inf, err := est.Update(mustStats(y, consistent(s, 1.1)))
			Expect(err).NotTo(HaveOccurred())
			Expect(inf.Factor).To(BeNumerically("~", math.Sqrt(1.1), 1e-9))
			Expect(inf.A).To(BeNumerically("~", (1e3+p)/2, 1e-9))
			Expect(inf.B).To(BeNumerically("~", (1e3+p)*1.1/2, 1e-6))
		})

		It("should blend toward zero innovations without snapping to the floor", func() {
			est, _ := NewExplicitFiniteSize(1, 1e3, 0)
			inf, err := est.Update(mustStats(y, constantInnovation(p, 0)))
			Expect(err).NotTo(HaveOccurred())
			Expect(inf.Factor).To(BeNumerically("<", 1))
			Expect(inf.Factor).To(BeNumerically(">", 0.99))
		})

		It("should forget faster with fewer degrees of freedom", func() {
			s := mustStats(y, constantInnovation(p, 4))
			var prev float64
			for i, nuF := range []float64{1e4, 1e3, 1e2, 1e1} {
				est, _ := NewExplicitFiniteSize(1, nuF, 0)
				inf, err := est.Update(s)
				Expect(err).NotTo(HaveOccurred())
				if i > 0 {
					Expect(inf.Factor).To(BeNumerically(">", prev))
				}
				prev = inf.Factor
			}
		})

		It("should converge more slowly with more degrees of freedom", func() {
			s := mustStats(y, constantInnovation(p, 2))
			eps := float64(n+1) / float64(n)
			steady := math.Sqrt((s.InnovationNorm2() - p) / (eps * s.Trace()))

			cyclesToSteady := func(nuF float64) int {
				est, err := NewExplicitFiniteSize(1, nuF, 0)
				Expect(err).NotTo(HaveOccurred())
				for k := 1; k <= 10000; k++ {
					inf, err := est.Update(s)
					Expect(err).NotTo(HaveOccurred())
					if math.Abs(inf.Factor-steady) <= 0.05*steady {
						return k
					}
				}
				return math.MaxInt
			}

			fast := cyclesToSteady(10)
			medium := cyclesToSteady(100)
			slow := cyclesToSteady(1000)
			Expect(fast).To(BeNumerically("<", medium))
			Expect(medium).To(BeNumerically("<", slow))
			Expect(slow).To(BeNumerically("<", math.MaxInt))
		})

		It("should cap the degrees of freedom at nu_f", func() {
			est, _ := NewExplicitFiniteSize(1, 50, 0)
			s := mustStats(y, constantInnovation(p, 1))
			for k := 0; k < 10; k++ {
				_, err := est.Update(s)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(est.Current().A).To(BeNumerically("~", (50.0+p)/2, 1e-12))
		})
	})

	Describe("FiniteSize", func() {
		It("should return the prior-only dual factor for zero innovations", func() {
			est, _ := NewFiniteSize(0, false)
			inf, err := est.Update(mustStats(y, constantInnovation(p, 0)))
			Expect(err).NotTo(HaveOccurred())
			want := math.Sqrt(float64((n+1)*(n-1)) / float64(n*n))
			Expect(inf.Dual).To(BeNumerically("~", want, 1e-4))
			Expect(inf.Factor).To(BeNumerically("~", want, 1e-4))
		})

		It("should cap the dual factor when conditioned", func() {
			big := observedAnomalies(rand.New(rand.NewSource(3)), 10, 1, 1e3)
			d := constantInnovation(1, 1e6)

			free, _ := NewFiniteSize(0, false)
			unc, err := free.Update(mustStats(big, d))
			Expect(err).NotTo(HaveOccurred())

			capped, _ := NewFiniteSize(0, true)
			con, err := capped.Update(mustStats(big, d))
			Expect(err).NotTo(HaveOccurred())

			s := mustStats(big, d)
			lMax := (MaxCondition - 1) * s.Dof() / (s.Sigma[0] * s.Sigma[0])
			Expect(con.Dual * con.Dual).To(BeNumerically("<=", lMax*(1+1e-9)))
			Expect(unc.Dual).To(BeNumerically(">", con.Dual))
		})

		It("should converge its belief more slowly with more degrees of freedom", func() {
			s := mustStats(y, constantInnovation(p, 2))
			steady := (s.InnovationNorm2() - p) / s.Trace()

			cyclesToSteady := func(nuF float64) int {
				est, err := NewFiniteSizeConditioned(1, nuF, 0, false)
				Expect(err).NotTo(HaveOccurred())
				for k := 1; k <= 10000; k++ {
					inf, err := est.Update(s)
					Expect(err).NotTo(HaveOccurred())
					if beta := inf.B / inf.A; math.Abs(beta-steady) <= 0.05*steady {
						return k
					}
				}
				return math.MaxInt
			}

			fast := cyclesToSteady(10)
			medium := cyclesToSteady(100)
			slow := cyclesToSteady(1000)
			Expect(fast).To(BeNumerically("<", medium))
			Expect(medium).To(BeNumerically("<", slow))
			Expect(slow).To(BeNumerically("<", math.MaxInt))
		})

		It("should combine the explicit belief with the dual factor", func() {
			est, _ := NewFiniteSizeConditioned(1.5, 1e4, 0, false)
			inf, err := est.Update(mustStats(y, constantInnovation(p, 1)))
			Expect(err).NotTo(HaveOccurred())
			beta := 2 * inf.B / (2 * inf.A)
			Expect(inf.Factor).To(BeNumerically("~", math.Sqrt(beta)*inf.Dual, 1e-12))
			Expect(inf.A).To(BeNumerically("~", (1e4+p)/2, 1e-9))
		})
	})
})
