package experiment

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/inflation"
	"github.com/san-kum/adinf/internal/stats"
	"github.com/san-kum/adinf/internal/twin"
)

// Experiment assimilates one truth with one filter.
type Experiment struct {
	setup  *twin.Setup
	truth  *twin.Truth
	filter *Filter
	seed   int64
}

// New reseeds the filter with seed, so every filter of a condition sees the
// same initial ensemble draws.
func New(reg *Registry, setup *twin.Setup, truth *twin.Truth, cfg config.Filter, seed int64) (*Experiment, error) {
	f, err := reg.Build(cfg, setup.Op, seed)
	if err != nil {
		return nil, err
	}
	if _, ok := truth.Prmzt[f.Config.Order()]; !ok {
		return nil, dynamo.Invalidf("no parameterization of order %d", f.Config.Order())
	}
	return &Experiment{setup: setup, truth: truth, filter: f, seed: seed}, nil
}

// Filter returns the strategy in use.
func (e *Experiment) Filter() *Filter { return e.filter }

// Run cycles forecast and analysis over every observation. A failing cycle
// aborts the run with a *dynamo.CycleError.
func (e *Experiment) Run(ctx context.Context) (*stats.Accumulator, error) {
	c := e.setup.Chrono
	cfg := e.filter.Config
	fields := log.Fields{
		"method":  cfg.Label(),
		"N":       cfg.N,
		"seed":    e.seed,
		"setting": e.setup.Label(),
	}
	log.WithFields(fields).Info("run started")
	start := time.Now()

	E, err := e.setup.InitialEnsemble(cfg.N, e.filter.RNG)
	if err != nil {
		return nil, err
	}
	model := e.setup.ForecastModel(e.truth.Prmzt[cfg.Order()])
	forecaster := e.setup.NewForecaster(model)
	acc := stats.NewAccumulator(e.setup.Truth.NU)
	floor := cfg.Floor
	if floor == 0 {
		floor = inflation.DefaultFloor
	}
	floored := false

	for k := 0; k < c.Cycles; k++ {
		select {
		case <-ctx.Done():
			return acc, ctx.Err()
		default:
		}

		t := c.ObsTime(k)
		if err := forecaster.Forecast(E, t-c.DtObs); err != nil {
			return acc, &dynamo.CycleError{Cycle: k, Time: t, Wrapped: err}
		}
		Ea, diag, err := e.filter.Engine.Analyze(E, e.truth.Obs[k], e.filter.Estimator)
		if err != nil {
			return acc, &dynamo.CycleError{Cycle: k, Time: t, Wrapped: err}
		}
		if !floored && diag.Inflation <= floor {
			log.WithFields(fields).WithField("cycle", k).Warn("inflation clamped to floor")
			floored = true
		}
		if err := acc.Record(k, e.truth.StateAt(c, k), Ea); err != nil {
			return acc, &dynamo.CycleError{Cycle: k, Time: t, Wrapped: err}
		}
		if err := acc.Annotate(k, diag); err != nil {
			return acc, &dynamo.CycleError{Cycle: k, Time: t, Wrapped: err}
		}
		E = Ea
	}

	avg, err := acc.AverageInTime(c.BurnInCycles)
	if err != nil {
		return acc, fmt.Errorf("%s: %w", cfg.Label(), err)
	}
	fields["rmse_a"] = avg.RMSE
	fields["infl"] = avg.Infl
	fields["elapsed"] = time.Since(start).Round(time.Millisecond)
	log.WithFields(fields).Info("run finished")
	return acc, nil
}
