package experiment

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
)

var _ = Describe("Sweep", func() {
	It("should order cells by value, repetition and filter", func() {
		s := smallSuite()
		s.Values = []float64{8, 10}
		s.Reps = 2
		sw, err := NewSweep(s, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(sw.Total()).To(Equal(8))

		res, err := sw.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Cells).To(HaveLen(8))

		i := 0
		for _, v := range s.Values {
			for rep := 0; rep < 2; rep++ {
				for fi, f := range s.Filters {
					c := res.Cells[i]
					Expect(c.Value).To(Equal(v))
					Expect(c.Rep).To(Equal(rep))
					Expect(c.Seed).To(Equal(RunSeed(s.Seed, rep)))
					Expect(c.Index).To(Equal(fi))
					Expect(c.Label).To(Equal(f.Label()))
					Expect(c.Failed()).To(BeFalse(), c.Err)
					i++
				}
			}
		}
		Expect(math.IsNaN(res.Mean(8, 0, "rmse_a"))).To(BeFalse())
	})

	It("should not depend on the number of workers", func() {
		rmse := func(workers int) []float64 {
			s := smallSuite()
			s.Workers = workers
			sw, err := NewSweep(s, nil)
			Expect(err).NotTo(HaveOccurred())
			res, err := sw.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			var out []float64
			for _, c := range res.Cells {
				out = append(out, c.Averages.RMSE)
			}
			return out
		}
		Expect(rmse(1)).To(Equal(rmse(4)))
	})

	It("should report every finished cell once", func() {
		sw, err := NewSweep(smallSuite(), nil)
		Expect(err).NotTo(HaveOccurred())
		var done []int
		sw.OnResult = func(d, total int, _ Cell) {
			Expect(total).To(Equal(2))
			done = append(done, d)
		}
		_, err = sw.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(done).To(Equal([]int{1, 2}))
	})

	It("should record a diverging truth as missing and continue", func() {
		s := smallSuite()
		s.Values = []float64{1e6, 10}
		sw, err := NewSweep(s, nil)
		Expect(err).NotTo(HaveOccurred())

		res, err := sw.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		for _, c := range res.Cells[:2] {
			Expect(c.Failed()).To(BeTrue())
			Expect(math.IsNaN(c.Averages.RMSE)).To(BeTrue())
		}
		for _, c := range res.Cells[2:] {
			Expect(c.Failed()).To(BeFalse(), c.Err)
		}
		Expect(math.IsNaN(res.Mean(1e6, 0, "rmse_a"))).To(BeTrue())
	})

	It("should reject an invalid suite", func() {
		s := smallSuite()
		s.Filters = nil
		_, err := NewSweep(s, nil)
		Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
	})

	It("should return the cancellation error", func() {
		sw, err := NewSweep(smallSuite(), nil)
		Expect(err).NotTo(HaveOccurred())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = sw.Run(ctx)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})

var _ = Describe("Tune", func() {
	It("should keep the grid point with the lowest error", func() {
		sw, err := NewSweep(smallSuite(), nil)
		Expect(err).NotTo(HaveOccurred())

		base := config.Filter{Method: config.MethodPre, N: 10}
		res, err := sw.Tune(context.Background(), base, []float64{1.0, 1.1, 1.3})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Param).To(Equal("infl"))
		Expect(res.Trials).To(HaveLen(3))

		best := math.Inf(1)
		for _, tr := range res.Trials {
			if tr.Err == nil && tr.Score < best {
				best = tr.Score
			}
		}
		Expect(res.Score).To(Equal(best))
		Expect([]float64{1.0, 1.1, 1.3}).To(ContainElement(res.Best.Infl))
	})

	It("should reject methods without a tuning parameter", func() {
		sw, err := NewSweep(smallSuite(), nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = sw.Tune(context.Background(), config.Filter{Method: config.MethodFiniteSize, N: 10}, nil)
		Expect(errors.Is(err, dynamo.ErrInvalidConfiguration)).To(BeTrue())
	})
})
