package stats

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/analysis"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/ensemble"
)

func newEnsemble(t *testing.T, n, m int, data []float64) *ensemble.Ensemble {
	t.Helper()
	E, err := ensemble.New(mat.NewDense(n, m, data))
	if err != nil {
		t.Fatal(err)
	}
	return E
}

func TestRecordSingleCycle(t *testing.T) {
	acc := NewAccumulator(2)
	E := newEnsemble(t, 3, 2, []float64{
		1, 1,
		1, 1,
		3, 3,
	})

	if err := acc.Record(0, []float64{1, 1}, E); err != nil {
		t.Fatal(err)
	}

	r := acc.Records()[0]
	if math.Abs(r.RMSE-2.0/3.0) > 1e-12 {
		t.Errorf("expected rmse 0.667, got %f", r.RMSE)
	}
	if math.Abs(r.Spread-math.Sqrt(4.0/3.0)) > 1e-12 {
		t.Errorf("expected spread %f, got %f", math.Sqrt(4.0/3.0), r.Spread)
	}
	if math.Abs(r.Spread-E.Spread()) > 1e-12 {
		t.Errorf("spread %f differs from ensemble spread %f", r.Spread, E.Spread())
	}
	if r.Annotated || !math.IsNaN(r.Infl) {
		t.Error("unannotated record should carry NaN inflation")
	}
}

func TestRecordOrdering(t *testing.T) {
	acc := NewAccumulator(1)
	E := newEnsemble(t, 2, 1, []float64{0, 1})

	if err := acc.Record(3, []float64{0}, E); err != nil {
		t.Fatal(err)
	}
	if err := acc.Record(3, []float64{0}, E); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for repeated cycle, got %v", err)
	}
	if err := acc.Record(4, []float64{0, 0}, E); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestBurnInExhaustion(t *testing.T) {
	acc := NewAccumulator(1)
	E := newEnsemble(t, 2, 1, []float64{0, 1})
	for k := 0; k < 5; k++ {
		if err := acc.Record(k, []float64{0}, E); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := acc.AverageInTime(5); !errors.Is(err, dynamo.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := acc.AverageSubset([]int{0}, 7); !errors.Is(err, dynamo.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := NewAccumulator(1).AverageInTime(0); !errors.Is(err, dynamo.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData on empty accumulator, got %v", err)
	}

	avg, err := acc.AverageInTime(4)
	if err != nil {
		t.Fatal(err)
	}
	if avg.Cycles != 1 {
		t.Errorf("expected 1 retained cycle, got %d", avg.Cycles)
	}
}

func TestAverageSubsetIgnoresOtherCoordinates(t *testing.T) {
	acc := NewAccumulator(2)
	for k := 0; k < 4; k++ {
		E := newEnsemble(t, 2, 2, []float64{
			0.5, 1e6,
			1.5, -1e6,
		})
		if err := acc.Record(k, []float64{1, 1e9}, E); err != nil {
			t.Fatal(err)
		}
	}

	sub, err := acc.AverageSubset([]int{0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sub.RMSE != 0 {
		t.Errorf("expected zero subset rmse, got %g", sub.RMSE)
	}
	if math.Abs(sub.Spread-math.Sqrt(0.5)) > 1e-12 {
		t.Errorf("expected subset spread %f, got %f", math.Sqrt(0.5), sub.Spread)
	}

	full, err := acc.AverageInTime(0)
	if err != nil {
		t.Fatal(err)
	}
	if full.RMSE < 1e8 {
		t.Errorf("expected huge full rmse, got %g", full.RMSE)
	}

	for _, bad := range [][]int{nil, {2}, {-1}} {
		if _, err := acc.AverageSubset(bad, 0); !errors.Is(err, dynamo.ErrDimensionMismatch) {
			t.Errorf("subset %v: expected ErrDimensionMismatch, got %v", bad, err)
		}
	}
}

func TestAnnotateAndAverages(t *testing.T) {
	acc := NewAccumulator(1)
	E := newEnsemble(t, 2, 1, []float64{0, 2})
	for k := 1; k <= 4; k++ {
		if err := acc.Record(k, []float64{1}, E); err != nil {
			t.Fatal(err)
		}
		if k%2 == 0 {
			d := analysis.Diagnostics{Inflation: float64(k), A: 1, B: 2, Dual: 1}
			if err := acc.Annotate(k, d); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := acc.Annotate(9, analysis.Diagnostics{}); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	avg, err := acc.AverageInTime(0)
	if err != nil {
		t.Fatal(err)
	}
	m := avg.Map()
	for _, key := range Keys {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %s", key)
		}
	}
	if avg.Infl != 3 {
		t.Errorf("expected mean inflation 3, got %g", avg.Infl)
	}
	if avg.B != 2 {
		t.Errorf("expected mean b 2, got %g", avg.B)
	}

	// Only cycle 4 remains after burn-in 3.
	avg, err = acc.AverageInTime(3)
	if err != nil {
		t.Fatal(err)
	}
	if avg.Infl != 4 {
		t.Errorf("expected inflation 4, got %g", avg.Infl)
	}
}

func TestSeries(t *testing.T) {
	acc := NewAccumulator(1)
	E := newEnsemble(t, 2, 1, []float64{0, 2})
	for k := 0; k < 3; k++ {
		if err := acc.Record(k*2, []float64{1}, E); err != nil {
			t.Fatal(err)
		}
	}

	ks, err := acc.Series("k")
	if err != nil {
		t.Fatal(err)
	}
	if len(ks) != 3 || ks[2] != 4 {
		t.Errorf("unexpected k series %v", ks)
	}
	for _, f := range Fields {
		if _, err := acc.Series(f); err != nil {
			t.Errorf("field %s: %v", f, err)
		}
	}
	if _, err := acc.Series("bogus"); !errors.Is(err, dynamo.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestMissing(t *testing.T) {
	for k, v := range Missing().Map() {
		if !math.IsNaN(v) {
			t.Errorf("%s: expected NaN, got %g", k, v)
		}
	}
}
