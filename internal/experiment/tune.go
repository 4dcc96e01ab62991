package experiment

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/optim"
)

// TuneResult is the outcome of tuning one method.
type TuneResult struct {
	Method string
	Param  string
	Best   config.Filter
	Score  float64
	Trials []optim.Trial
}

// Tune grid-searches the tuning parameter of method over values and keeps
// the filter with the lowest analysis RMSE, averaged over every setting
// value and repetition of the sweep's suite. Truths are simulated once and
// shared by all grid points.
func (s *Sweep) Tune(ctx context.Context, base config.Filter, values []float64) (*TuneResult, error) {
	param, err := config.TuningParam(base.Method)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		fs, err := config.TuningFilters(base.Method, base.N)
		if err != nil {
			return nil, err
		}
		for _, f := range fs {
			values = append(values, paramValue(f, param))
		}
	}
	grid, err := optim.NewGridSearch([]string{param}, [][]float64{values})
	if err != nil {
		return nil, err
	}

	conds, err := s.simulate(ctx)
	if err != nil {
		return nil, err
	}

	objective := func(ctx context.Context, p map[string]float64) (float64, error) {
		f, err := base.With(param, p[param])
		if err != nil {
			return 0, err
		}
		if err := f.Validate(); err != nil {
			return 0, err
		}
		res, err := s.assimilate(ctx, conds, []config.Filter{f})
		if err != nil {
			return 0, err
		}
		score := meanOrNaN(okValues(res.Cells, "rmse_a"))
		log.WithFields(log.Fields{
			"method": f.Label(),
			"rmse_a": score,
		}).Debug("tuning trial")
		if math.IsNaN(score) {
			return score, fmt.Errorf("%w: every run of %s failed", dynamo.ErrInsufficientData, f.Label())
		}
		return score, nil
	}

	best, score, trials, err := grid.Search(ctx, objective)
	if err != nil {
		return &TuneResult{Method: base.Method, Param: param, Trials: trials}, err
	}
	bestFilter, _ := base.With(param, best[param])
	log.WithFields(log.Fields{
		"method": bestFilter.Label(),
		"rmse_a": score,
		"trials": len(trials),
	}).Info("tuning finished")
	return &TuneResult{Method: base.Method, Param: param, Best: bestFilter, Score: score, Trials: trials}, nil
}

func paramValue(f config.Filter, param string) float64 {
	switch param {
	case "infl":
		return f.Infl
	case "var_f":
		return f.VarF
	case "damp":
		return f.Damping()
	case "nu_f":
		return f.NuF
	case "n":
		return float64(f.N)
	case "l":
		return f.L
	}
	return 0
}

func okValues(cells []Cell, key string) []float64 {
	var xs []float64
	for _, c := range cells {
		if !c.Failed() {
			xs = append(xs, c.Averages.Map()[key])
		}
	}
	return xs
}
