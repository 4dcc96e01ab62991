package twin

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/ensemble"
	"github.com/san-kum/adinf/internal/integrators"
	"github.com/san-kum/adinf/internal/obs"
	"github.com/san-kum/adinf/internal/physics"
	"github.com/san-kum/adinf/internal/sim"
)

// Chronology fixes the time steps of the experiment.
type Chronology struct {
	T, BurnIn              float64
	DtFull, DtTrunc, DtObs float64
	DK                     int // full steps per truncated step
	KObs                   int // truncated steps per observation
	KMax                   int // truncated steps in T
	Cycles                 int // observations in T
	BurnInCycles           int // observations at or before BurnIn
}

func NewChronology(s *config.Suite) Chronology {
	c := Chronology{
		T:       s.T,
		BurnIn:  s.BurnIn,
		DtFull:  s.DtFull,
		DtTrunc: s.DtTrunc,
		DtObs:   s.DtObs,
		DK:      int(math.Round(s.DtTrunc / s.DtFull)),
		KObs:    int(math.Round(s.DtObs / s.DtTrunc)),
	}
	c.KMax = int(math.Round(s.T / s.DtTrunc))
	c.Cycles = c.KMax / c.KObs
	c.BurnInCycles = int(math.Floor(s.BurnIn/s.DtObs + 1e-9))
	return c
}

// ObsTime is the time of observation cycle k (k = 0 is the first
// observation, at DtObs).
func (c Chronology) ObsTime(k int) float64 {
	return float64((k+1)*c.KObs) * c.DtTrunc
}

// Setup is one experimental condition: the truth model with the swept
// parameter applied, the observation model and the chronology.
type Setup struct {
	Suite   *config.Suite
	Setting string
	Value   float64
	Chrono  Chronology
	Truth   *physics.LorenzUV
	Op      *obs.PartialDirect
	Noise   *obs.Noise

	integrator string
}

// NewSetup applies value to the suite's setting.
func NewSetup(s *config.Suite, value float64) (*Setup, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	luv := &physics.LorenzUV{
		NU: s.Model.NU, J: s.Model.J,
		F: s.Model.F, H: s.Model.H, B: s.Model.B, C: s.Model.C,
	}
	if err := luv.SetParam(s.Setting, value); err != nil {
		return nil, err
	}
	if _, err := integrators.New(s.Integrator); err != nil {
		return nil, err
	}
	noise, err := obs.IsotropicNoise(luv.NU, s.R)
	if err != nil {
		return nil, err
	}
	return &Setup{
		Suite:   s,
		Setting: s.Setting,
		Value:   value,
		Chrono:  NewChronology(s),
		Truth:   luv,
		Op:      obs.Direct(luv.NU),
		Noise:   noise,

		integrator: s.Integrator,
	}, nil
}

// Label names the condition, as in "c=10".
func (s *Setup) Label() string {
	return fmt.Sprintf("%s=%g", s.Setting, s.Value)
}

// ForecastModel is the truncated slow-variable model using the fitted
// parameterization of the given order; nil parameterization means none.
func (s *Setup) ForecastModel(p physics.Parameterization) *physics.Lorenz96 {
	l96 := physics.NewLorenz96(s.Truth.NU, s.Truth.F)
	l96.Prmzt = p
	return l96
}

// InitialEnsemble draws N members around zero with the suite's x0 variance.
func (s *Setup) InitialEnsemble(n int, rng *rand.Rand) (*ensemble.Ensemble, error) {
	m := s.Truth.NU
	sd := math.Sqrt(s.Suite.X0Var)
	members := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			members.Set(i, j, sd*rng.NormFloat64())
		}
	}
	return ensemble.New(members)
}

// NewIntegrator returns a fresh stepper of the configured kind.
func (s *Setup) NewIntegrator() dynamo.Integrator {
	integ, _ := integrators.New(s.integrator)
	return integ
}

// Forecaster advances ensembles with the truncated model between
// observations.
type Forecaster struct {
	ens   *sim.Ensemble
	dt    float64
	steps int
}

func (s *Setup) NewForecaster(model dynamo.System) *Forecaster {
	return &Forecaster{
		ens:   sim.NewEnsemble(model, s.NewIntegrator),
		dt:    s.Chrono.DtTrunc,
		steps: s.Chrono.KObs,
	}
}

// Forecast advances E in place from time t to the next observation.
func (f *Forecaster) Forecast(E *ensemble.Ensemble, t float64) error {
	return f.ens.Advance(E.Members(), t, f.dt, f.steps)
}
