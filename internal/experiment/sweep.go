package experiment

import (
	"context"
	"math"
	"math/rand"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/stats"
	"github.com/san-kum/adinf/internal/twin"
)

// filterSeedOffset separates the filter's random stream from the truth's,
// which is drawn from the bare run seed.
const filterSeedOffset = 1_000_003

// RunSeed is the seed of repetition rep.
func RunSeed(base int64, rep int) int64 { return base + int64(rep) }

// FilterSeed is the seed every filter of a run is reseeded with.
func FilterSeed(runSeed int64) int64 { return runSeed + filterSeedOffset }

// Cell is the outcome of one filter on one condition.
type Cell struct {
	Value    float64        `json:"value"`
	Rep      int            `json:"rep"`
	Index    int            `json:"filter_index"`
	Seed     int64          `json:"seed"`
	Filter   config.Filter  `json:"filter"`
	Label    string         `json:"label"`
	Averages stats.Averages `json:"averages"`
	Err      string         `json:"error,omitempty"`

	Stats *stats.Accumulator `json:"-"`
}

// Failed reports whether the run produced no averages.
func (c Cell) Failed() bool { return c.Err != "" }

// SweepResult holds every cell of a suite, ordered value-major, then
// repetition, then filter.
type SweepResult struct {
	Suite *config.Suite
	Cells []Cell
}

// Mean averages a key over the repetitions of (value, filter index).
// Failed repetitions are skipped; the result is NaN when all failed.
func (r *SweepResult) Mean(value float64, filter int, key string) float64 {
	var xs []float64
	for _, c := range r.Cells {
		if c.Value != value || c.Index != filter || c.Failed() {
			continue
		}
		xs = append(xs, c.Averages.Map()[key])
	}
	return meanOrNaN(xs)
}

// Sweep runs every filter of a suite over every setting value and
// repetition.
type Sweep struct {
	suite    *config.Suite
	registry *Registry

	// KeepStats retains each cell's accumulator for storage.
	KeepStats bool
	// OnResult is called once per finished cell, never concurrently.
	OnResult func(done, total int, c Cell)
}

func NewSweep(suite *config.Suite, reg *Registry) (*Sweep, error) {
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Sweep{suite: suite, registry: reg}, nil
}

// Total is the number of cells Run produces.
func (s *Sweep) Total() int {
	return len(s.suite.Values) * s.reps() * len(s.suite.Filters)
}

func (s *Sweep) reps() int {
	if s.suite.Reps < 1 {
		return 1
	}
	return s.suite.Reps
}

type condition struct {
	value float64
	setup *twin.Setup
	truth *twin.Truth
	seed  int64
	rep   int
	err   error
}

// Run simulates one truth per (value, repetition), then assimilates it with
// every filter. A failing run is recorded as missing and does not stop the
// sweep; only cancellation does.
func (s *Sweep) Run(ctx context.Context) (*SweepResult, error) {
	conds, err := s.simulate(ctx)
	if err != nil {
		return nil, err
	}
	return s.assimilate(ctx, conds, s.suite.Filters)
}

func (s *Sweep) workers() int {
	if s.suite.Workers < 1 {
		return config.DefaultWorkers
	}
	return s.suite.Workers
}

// simulate builds the truths. Setup and simulation failures stay attached to
// their condition so that its cells are reported as missing.
func (s *Sweep) simulate(ctx context.Context) ([]condition, error) {
	suite := s.suite
	reps := s.reps()
	conds := make([]condition, len(suite.Values)*reps)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for vi, value := range suite.Values {
		for rep := 0; rep < reps; rep++ {
			i, value, rep := vi*reps+rep, value, rep
			g.Go(func() error {
				c := &conds[i]
				c.value, c.rep = value, rep
				c.seed = RunSeed(suite.Seed, rep)
				c.setup, c.err = twin.NewSetup(suite, value)
				if c.err != nil {
					return nil
				}
				c.truth, c.err = twin.Simulate(gctx, c.setup, rand.New(rand.NewSource(c.seed)))
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return conds, nil
}

func (s *Sweep) assimilate(ctx context.Context, conds []condition, filters []config.Filter) (*SweepResult, error) {
	suite := s.suite.Clone()
	suite.Filters = filters
	result := &SweepResult{Suite: suite, Cells: make([]Cell, len(conds)*len(filters))}
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for ci := range conds {
		for fi, f := range filters {
			idx := ci*len(filters) + fi
			cond, fi, f := &conds[ci], fi, f
			g.Go(func() error {
				cell := s.runCell(gctx, cond, fi, f)
				if err := gctx.Err(); err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				result.Cells[idx] = cell
				done++
				if s.OnResult != nil {
					s.OnResult(done, len(result.Cells), cell)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Sweep) runCell(ctx context.Context, cond *condition, fi int, f config.Filter) Cell {
	cell := Cell{
		Value:    cond.value,
		Rep:      cond.rep,
		Index:    fi,
		Seed:     cond.seed,
		Filter:   f,
		Label:    f.Label(),
		Averages: stats.Missing(),
	}
	if cond.err != nil {
		cell.Err = cond.err.Error()
		return cell
	}

	exp, err := New(s.registry, cond.setup, cond.truth, f, FilterSeed(cond.seed))
	if err != nil {
		cell.Err = err.Error()
		return cell
	}
	acc, err := exp.Run(ctx)
	if s.KeepStats {
		cell.Stats = acc
	}
	if err != nil {
		log.WithFields(log.Fields{
			"method":  cell.Label,
			"seed":    cond.seed,
			"setting": cond.setup.Label(),
		}).WithError(err).Warn("run failed")
		cell.Err = err.Error()
		return cell
	}
	avg, err := acc.AverageInTime(cond.setup.Chrono.BurnInCycles)
	if err != nil {
		cell.Err = err.Error()
		return cell
	}
	cell.Averages = avg
	return cell
}

func meanOrNaN(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}
