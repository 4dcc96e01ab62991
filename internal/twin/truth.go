package twin

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/obs"
	"github.com/san-kum/adinf/internal/physics"
	"github.com/san-kum/adinf/internal/sim"
)

// Truth is a simulated reality: the slow variables at every truncated step,
// the observations taken from them and the parameterizations fitted on the
// full-resolution trajectory.
type Truth struct {
	States []dynamo.State
	Obs    []obs.Observation
	Prmzt  map[int]Polynomial
}

// StateAt returns the truth at observation cycle k.
func (t *Truth) StateAt(c Chronology, k int) dynamo.State {
	return t.States[(k+1)*c.KObs]
}

// Simulate integrates the two-scale model over the experiment, drawing the
// initial condition and observation noise from rng.
func Simulate(ctx context.Context, s *Setup, rng *rand.Rand) (*Truth, error) {
	c := s.Chrono
	nU := s.Truth.NU

	x0 := make(dynamo.State, s.Truth.StateDim())
	sd := math.Sqrt(s.Suite.X0Var)
	for i := range x0 {
		x0[i] = sd * rng.NormFloat64()
	}

	truth := &Truth{
		States: make([]dynamo.State, 0, c.KMax+1),
		Obs:    make([]obs.Observation, 0, c.Cycles),
	}

	// Unparameterized truncated model, stepped at the full resolution to
	// measure the tendency it misses.
	bare := physics.NewLorenz96(nU, s.Truth.F)
	bareStep := s.NewIntegrator()
	var fitter momentFitter
	var prev dynamo.State

	simulator := sim.New(s.Truth, s.NewIntegrator())
	cfg := sim.Config{Dt: c.DtFull, Duration: float64(c.KMax*c.DK) * c.DtFull, ValidateState: true}
	err := simulator.RunWithCallback(ctx, x0, cfg, func(k int, x dynamo.State, t float64) bool {
		u := x[:nU]
		if prev != nil && t-c.DtFull > c.BurnIn {
			pred := bareStep.Step(bare, prev, t-c.DtFull, c.DtFull)
			for i := 0; i < nU; i++ {
				fitter.Add(prev[i], (u[i]-pred[i])/c.DtFull)
			}
		}
		prev = dynamo.State(u).Clone()

		if k%c.DK != 0 {
			return true
		}
		truth.States = append(truth.States, prev.Clone())
		if kk := k / c.DK; kk > 0 && kk%c.KObs == 0 && len(truth.Obs) < c.Cycles {
			truth.Obs = append(truth.Obs, s.Noise.Observe(s.Op, prev, rng))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("truth %s: %w", s.Label(), err)
	}

	truth.Prmzt, err = fitter.FitAll()
	if err != nil {
		return nil, fmt.Errorf("parameterization %s: %w", s.Label(), err)
	}

	log.WithFields(log.Fields{
		"setting": s.Label(),
		"cycles":  len(truth.Obs),
		"samples": fitter.n,
		"linear":  truth.Prmzt[1].String(),
	}).Debug("truth simulated")

	return truth, nil
}
