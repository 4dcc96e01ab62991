package experiment

import (
	"context"
	"errors"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/obs"
	"github.com/san-kum/adinf/internal/twin"
)

var _ = Describe("Registry", func() {
	reg := NewRegistry()

	It("should list every configured method", func() {
		Expect(reg.ListMethods()).To(ConsistOf(config.Methods))
	})

	for _, m := range config.Methods {
		method := m
		It("should build "+method, func() {
			f, err := reg.Build(config.Filter{Method: method, N: 10}, obs.Direct(8), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Estimator).NotTo(BeNil())
			Expect(f.Engine).NotTo(BeNil())
			Expect(f.Config.Method).To(Equal(method))
		})
	}

	It("should reject unknown methods", func() {
		_, err := reg.Build(config.Filter{Method: "enkf_magic", N: 10}, obs.Direct(8), 1)
		Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
	})

	It("should square the anomaly factor into the variance prior", func() {
		est, err := reg.GetEstimator(config.Filter{Method: config.MethodA07, N: 10, Infl: 1.2})
		Expect(err).NotTo(HaveOccurred())
		Expect(est.Current().Factor).To(BeNumerically("~", 1.2, 1e-12))
	})
})

var _ = Describe("Experiment", func() {
	var (
		setup *twin.Setup
		truth *twin.Truth
		reg   *Registry
	)

	BeforeEach(func() {
		var err error
		setup, err = twin.NewSetup(smallSuite(), 10)
		Expect(err).NotTo(HaveOccurred())
		truth, err = twin.Simulate(context.Background(), setup, rand.New(rand.NewSource(3)))
		Expect(err).NotTo(HaveOccurred())
		reg = NewRegistry()
	})

	It("should record every cycle", func() {
		exp, err := New(reg, setup, truth, config.Filter{Method: config.MethodA07, N: 10}, 7)
		Expect(err).NotTo(HaveOccurred())

		acc, err := exp.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(acc.Len()).To(Equal(setup.Chrono.Cycles))

		avg, err := acc.AverageInTime(setup.Chrono.BurnInCycles)
		Expect(err).NotTo(HaveOccurred())
		Expect(avg.Cycles).To(Equal(setup.Chrono.Cycles - setup.Chrono.BurnInCycles))
		Expect(math.IsInf(avg.RMSE, 0) || math.IsNaN(avg.RMSE)).To(BeFalse())
		Expect(avg.RMSE).To(BeNumerically(">", 0))
		Expect(avg.Infl).To(BeNumerically(">", 0))
	})

	It("should be reproducible from the seed", func() {
		run := func() float64 {
			exp, err := New(reg, setup, truth, config.Filter{Method: config.MethodXplct, N: 10}, 11)
			Expect(err).NotTo(HaveOccurred())
			acc, err := exp.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			avg, err := acc.AverageInTime(setup.Chrono.BurnInCycles)
			Expect(err).NotTo(HaveOccurred())
			return avg.RMSE
		}
		Expect(run()).To(Equal(run()))
	})

	It("should stop when cancelled", func() {
		exp, err := New(reg, setup, truth, config.Filter{Method: config.MethodPre, N: 10, Infl: 1.1}, 1)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		acc, err := exp.Run(ctx)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(acc.Len()).To(Equal(0))
	})

	It("should reject a parameterization order that was not fitted", func() {
		delete(truth.Prmzt, 2)
		detp := 2
		_, err := New(reg, setup, truth, config.Filter{Method: config.MethodPre, N: 10, Detp: &detp}, 1)
		Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
	})
})
