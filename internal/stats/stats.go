// Package stats accumulates per-cycle truth-versus-ensemble diagnostics and
// reduces them to time averages.
package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/adinf/internal/analysis"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/ensemble"
)

// Keys are the averaged fields, in presentation order.
var Keys = []string{"rmse_a", "rmv_a", "infl", "a", "b"}

// Fields are the per-cycle series available through Series.
var Fields = []string{"k", "rmse", "spread", "infl", "a", "b", "dual", "ratio"}

// Record holds the diagnostics of one analysed cycle.
type Record struct {
	K         int
	RMSE      float64
	Spread    float64
	Infl      float64
	A, B      float64
	Dual      float64
	Ratio     float64
	Annotated bool

	sqErr    []float64
	variance []float64
}

// Averages are time means over the retained cycles. Inflation fields are
// NaN when no retained cycle was annotated.
type Averages struct {
	RMSE   float64
	Spread float64
	Infl   float64
	A, B   float64
	Cycles int
}

// Map keys the averages by Keys.
func (a Averages) Map() map[string]float64 {
	return map[string]float64{
		"rmse_a": a.RMSE,
		"rmv_a":  a.Spread,
		"infl":   a.Infl,
		"a":      a.A,
		"b":      a.B,
	}
}

// Missing is the average of a run that produced no statistics.
func Missing() Averages {
	nan := math.NaN()
	return Averages{RMSE: nan, Spread: nan, Infl: nan, A: nan, B: nan}
}

// Accumulator is an append-only sequence of Records for one run.
type Accumulator struct {
	m       int
	records []Record
}

func NewAccumulator(m int) *Accumulator {
	return &Accumulator{m: m}
}

func (a *Accumulator) Len() int { return len(a.records) }

// Records returns the recorded cycles. The slice must not be modified.
func (a *Accumulator) Records() []Record { return a.records }

// Record appends the error and spread of E against truth for cycle k.
func (a *Accumulator) Record(k int, truth []float64, E *ensemble.Ensemble) error {
	_, m := E.Dims()
	if m != a.m || len(truth) != a.m {
		return fmt.Errorf("%w: expected dimension %d, got truth %d and ensemble %d", dynamo.ErrDimensionMismatch, a.m, len(truth), m)
	}
	if n := len(a.records); n > 0 && k <= a.records[n-1].K {
		return fmt.Errorf("%w: cycle %d recorded after cycle %d", dynamo.ErrInvalidState, k, a.records[n-1].K)
	}

	mean := E.Mean()
	sqErr := make([]float64, m)
	for j := range sqErr {
		e := mean.AtVec(j) - truth[j]
		sqErr[j] = e * e
	}
	variance := E.Variance()

	a.records = append(a.records, Record{
		K:        k,
		RMSE:     math.Sqrt(stat.Mean(sqErr, nil)),
		Spread:   math.Sqrt(stat.Mean(variance, nil)),
		Infl:     math.NaN(),
		A:        math.NaN(),
		B:        math.NaN(),
		Dual:     math.NaN(),
		Ratio:    math.NaN(),
		sqErr:    sqErr,
		variance: variance,
	})
	return nil
}

// Annotate attaches the analysis diagnostics of cycle k.
func (a *Accumulator) Annotate(k int, d analysis.Diagnostics) error {
	i := sort.Search(len(a.records), func(i int) bool { return a.records[i].K >= k })
	if i == len(a.records) || a.records[i].K != k {
		return fmt.Errorf("%w: cycle %d not recorded", dynamo.ErrInvalidState, k)
	}
	r := &a.records[i]
	r.Infl, r.A, r.B, r.Dual, r.Ratio = d.Inflation, d.A, d.B, d.Dual, d.InnovationRatio
	r.Annotated = true
	return nil
}

// AverageInTime averages every cycle after the first burnIn.
func (a *Accumulator) AverageInTime(burnIn int) (Averages, error) {
	kept, err := a.retained(burnIn)
	if err != nil {
		return Averages{}, err
	}
	rmse := make([]float64, len(kept))
	spread := make([]float64, len(kept))
	for i, r := range kept {
		rmse[i], spread[i] = r.RMSE, r.Spread
	}
	return reduce(kept, rmse, spread), nil
}

// AverageSubset is AverageInTime with error and spread restricted to the
// given state coordinates.
func (a *Accumulator) AverageSubset(indices []int, burnIn int) (Averages, error) {
	if len(indices) == 0 {
		return Averages{}, fmt.Errorf("%w: empty subset", dynamo.ErrDimensionMismatch)
	}
	for _, j := range indices {
		if j < 0 || j >= a.m {
			return Averages{}, fmt.Errorf("%w: index %d outside state of dimension %d", dynamo.ErrDimensionMismatch, j, a.m)
		}
	}
	kept, err := a.retained(burnIn)
	if err != nil {
		return Averages{}, err
	}

	rmse := make([]float64, len(kept))
	spread := make([]float64, len(kept))
	se := make([]float64, len(indices))
	va := make([]float64, len(indices))
	for i, r := range kept {
		for c, j := range indices {
			se[c], va[c] = r.sqErr[j], r.variance[j]
		}
		rmse[i] = math.Sqrt(stat.Mean(se, nil))
		spread[i] = math.Sqrt(stat.Mean(va, nil))
	}
	return reduce(kept, rmse, spread), nil
}

func (a *Accumulator) retained(burnIn int) ([]Record, error) {
	if burnIn < 0 {
		burnIn = 0
	}
	if burnIn >= len(a.records) {
		return nil, fmt.Errorf("%w: %d cycles recorded, burn-in %d", dynamo.ErrInsufficientData, len(a.records), burnIn)
	}
	return a.records[burnIn:], nil
}

func reduce(kept []Record, rmse, spread []float64) Averages {
	avg := Averages{
		RMSE:   stat.Mean(rmse, nil),
		Spread: stat.Mean(spread, nil),
		Cycles: len(kept),
	}
	var infl, ca, cb []float64
	for _, r := range kept {
		if !r.Annotated {
			continue
		}
		infl = append(infl, r.Infl)
		ca = append(ca, r.A)
		cb = append(cb, r.B)
	}
	avg.Infl, avg.A, avg.B = meanOrNaN(infl), meanOrNaN(ca), meanOrNaN(cb)
	return avg
}

func meanOrNaN(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// Series returns one field of every record, in cycle order.
func (a *Accumulator) Series(field string) ([]float64, error) {
	pick, ok := map[string]func(Record) float64{
		"k":      func(r Record) float64 { return float64(r.K) },
		"rmse":   func(r Record) float64 { return r.RMSE },
		"spread": func(r Record) float64 { return r.Spread },
		"infl":   func(r Record) float64 { return r.Infl },
		"a":      func(r Record) float64 { return r.A },
		"b":      func(r Record) float64 { return r.B },
		"dual":   func(r Record) float64 { return r.Dual },
		"ratio":  func(r Record) float64 { return r.Ratio },
	}[field]
	if !ok {
		return nil, dynamo.Invalidf("unknown series %q", field)
	}
	out := make([]float64, len(a.records))
	for i, r := range a.records {
		out[i] = pick(r)
	}
	return out, nil
}
