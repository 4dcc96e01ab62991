package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/adinf/internal/dynamo"
)

const (
	DefaultT       = 500.0
	DefaultDtObs   = 0.15
	DefaultDtFull  = 0.005
	DefaultDtTrunc = 0.05
	DefaultBurnIn  = 6.0
	DefaultR       = 1.0
	DefaultX0Var   = 0.01
	DefaultSeed    = 14
	DefaultN       = 20
	DefaultDamp    = 0.9
	DefaultVarF    = 1e-2
	DefaultNuF     = 1e3
	DefaultDetp    = 1
	DefaultWorkers = 4
)

// Filter methods.
const (
	MethodPre        = "enkf_pre"
	MethodA07        = "eakf_a07"
	MethodXplct      = "etkf_xplct"
	MethodNXplct     = "enkf_n_xplct"
	MethodFiniteSize = "enkf_n"
)

// Analysis transforms.
const (
	TransformSqrt    = "sqrt"
	TransformPertObs = "pertobs"
)

// Methods lists every supported filter method.
var Methods = []string{MethodPre, MethodA07, MethodXplct, MethodNXplct, MethodFiniteSize}

// Suite is a complete twin experiment: chronology, truth model, the
// experimental setting to sweep and the filters to compare.
type Suite struct {
	T       float64   `yaml:"t"`
	DtObs   float64   `yaml:"dt_obs"`
	DtFull  float64   `yaml:"dt_full"`
	DtTrunc float64   `yaml:"dt_trunc"`
	BurnIn  float64   `yaml:"burn_in"`
	R       float64   `yaml:"r"`
	X0Var   float64   `yaml:"x0_var"`
	Seed    int64     `yaml:"seed"`
	Setting string    `yaml:"setting"`
	Values  []float64 `yaml:"values"`
	Reps    int       `yaml:"reps"`
	Workers int       `yaml:"workers"`
	// Integrator steps both the truth and the forecast model (rk4, euler).
	Integrator string   `yaml:"integrator,omitempty"`
	Model      Model    `yaml:"model"`
	Filters    []Filter `yaml:"filters"`
}

// Model holds the two-scale Lorenz parameters of the truth.
type Model struct {
	NU int     `yaml:"nu"`
	J  int     `yaml:"j"`
	F  float64 `yaml:"f"`
	H  float64 `yaml:"h"`
	B  float64 `yaml:"b"`
	C  float64 `yaml:"c"`
}

// Filter configures one data assimilation method. Zero fields take the
// defaults of WithDefaults.
type Filter struct {
	Name      string   `yaml:"name,omitempty"`
	Method    string   `yaml:"method"`
	N         int      `yaml:"n,omitempty"`
	Infl      float64  `yaml:"infl,omitempty"`
	VarF      float64  `yaml:"var_f,omitempty"`
	Damp      *float64 `yaml:"damp,omitempty"`
	NuF       float64  `yaml:"nu_f,omitempty"`
	Cond      bool     `yaml:"cond,omitempty"`
	L         float64  `yaml:"l,omitempty"`
	Detp      *int     `yaml:"detp,omitempty"`
	Transform string   `yaml:"transform,omitempty"`
	Floor     float64  `yaml:"floor,omitempty"`
}

func DefaultModel() Model {
	return Model{NU: 36, J: 10, F: 10, H: 1, B: 10, C: 10}
}

func DefaultSuite() *Suite {
	return &Suite{
		T:       DefaultT,
		DtObs:   DefaultDtObs,
		DtFull:  DefaultDtFull,
		DtTrunc: DefaultDtTrunc,
		BurnIn:  DefaultBurnIn,
		R:       DefaultR,
		X0Var:   DefaultX0Var,
		Seed:    DefaultSeed,
		Setting: "c",
		Values:  []float64{10},
		Reps:    1,
		Workers: DefaultWorkers,
		Model:   DefaultModel(),
		Filters: BenchFilters(),
	}
}

func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := DefaultSuite()
	s.Filters = nil
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if len(s.Filters) == 0 {
		s.Filters = BenchFilters()
	}
	return s, s.Validate()
}

func Save(path string, s *Suite) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (s *Suite) Clone() *Suite {
	c := *s
	c.Values = append([]float64(nil), s.Values...)
	c.Filters = make([]Filter, len(s.Filters))
	for i, f := range s.Filters {
		c.Filters[i] = f.Clone()
	}
	return &c
}

// Validate rejects suites that cannot produce a single analysed cycle.
func (s *Suite) Validate() error {
	for name, v := range map[string]float64{
		"t": s.T, "dt_obs": s.DtObs, "dt_full": s.DtFull, "dt_trunc": s.DtTrunc, "r": s.R, "x0_var": s.X0Var,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return dynamo.Invalidf("%s must be positive, got %g", name, v)
		}
	}
	if !isMultiple(s.DtTrunc, s.DtFull) {
		return dynamo.Invalidf("dt_trunc %g is not a multiple of dt_full %g", s.DtTrunc, s.DtFull)
	}
	if !isMultiple(s.DtObs, s.DtTrunc) {
		return dynamo.Invalidf("dt_obs %g is not a multiple of dt_trunc %g", s.DtObs, s.DtTrunc)
	}
	if s.BurnIn < 0 || s.BurnIn >= s.T {
		return dynamo.Invalidf("burn_in %g must lie in [0, t=%g)", s.BurnIn, s.T)
	}
	switch s.Setting {
	case "c", "h", "F", "b":
	default:
		return dynamo.Invalidf("unknown setting %q", s.Setting)
	}
	if len(s.Values) == 0 {
		return dynamo.Invalidf("no values for setting %q", s.Setting)
	}
	if s.Reps < 1 {
		return dynamo.Invalidf("reps must be at least 1, got %d", s.Reps)
	}
	if s.Model.NU < 4 || s.Model.J < 1 {
		return dynamo.Invalidf("model needs nu >= 4 and j >= 1, got nu=%d j=%d", s.Model.NU, s.Model.J)
	}
	if len(s.Filters) == 0 {
		return dynamo.Invalidf("no filters configured")
	}
	for i, f := range s.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("filter %d (%s): %w", i, f.Label(), err)
		}
	}
	return nil
}

func isMultiple(a, b float64) bool {
	k := a / b
	return k >= 1 && math.Abs(k-math.Round(k)) < 1e-9
}

// WithDefaults fills unset fields.
func (f Filter) WithDefaults() Filter {
	if f.N == 0 {
		f.N = DefaultN
	}
	if f.Infl == 0 {
		f.Infl = 1
	}
	if f.VarF == 0 {
		f.VarF = DefaultVarF
	}
	if f.Damp == nil {
		d := DefaultDamp
		f.Damp = &d
	}
	if f.NuF == 0 {
		f.NuF = DefaultNuF
	}
	if f.Detp == nil {
		d := DefaultDetp
		f.Detp = &d
	}
	if f.Transform == "" {
		f.Transform = TransformSqrt
	}
	return f
}

// Order is the parameterization polynomial order.
func (f Filter) Order() int {
	if f.Detp == nil {
		return DefaultDetp
	}
	return *f.Detp
}

// Damping is the relaxation of the recursive belief toward 1. Zero relaxes
// it fully every cycle.
func (f Filter) Damping() float64 {
	if f.Damp == nil {
		return DefaultDamp
	}
	return *f.Damp
}

func (f Filter) Clone() Filter {
	if f.Detp != nil {
		d := *f.Detp
		f.Detp = &d
	}
	if f.Damp != nil {
		d := *f.Damp
		f.Damp = &d
	}
	return f
}

func (f Filter) Validate() error {
	// Zero means unset for these, anything else must be a positive finite value.
	for name, v := range map[string]float64{"infl": f.Infl, "var_f": f.VarF, "nu_f": f.NuF} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return dynamo.Invalidf("%s must be positive, got %g", name, v)
		}
	}
	f = f.WithDefaults()
	known := false
	for _, m := range Methods {
		known = known || f.Method == m
	}
	if !known {
		return dynamo.Invalidf("unknown method %q", f.Method)
	}
	if f.N < 2 {
		return dynamo.Invalidf("ensemble size must be at least 2, got %d", f.N)
	}
	if f.Transform != TransformSqrt && f.Transform != TransformPertObs {
		return dynamo.Invalidf("unknown transform %q", f.Transform)
	}
	if f.L < 0 {
		return dynamo.Invalidf("localization radius must be non-negative, got %g", f.L)
	}
	if f.L > 0 && f.Transform != TransformSqrt {
		return dynamo.Invalidf("localization requires the %s transform", TransformSqrt)
	}
	if d := f.Damping(); !(d >= 0 && d <= 1) {
		return dynamo.Invalidf("damp must be within [0, 1], got %g", d)
	}
	if f.Floor < 0 || (f.Floor > 0 && f.Infl < f.Floor) {
		return dynamo.Invalidf("floor %g invalid for infl %g", f.Floor, f.Infl)
	}
	if d := f.Order(); d < 0 || d > 3 {
		return dynamo.Invalidf("detp must be within [0, 3], got %d", d)
	}
	return nil
}

// Label is Name when set, otherwise the method with its distinguishing
// parameters.
func (f Filter) Label() string {
	if f.Name != "" {
		return f.Name
	}
	d := f.WithDefaults()
	parts := []string{f.Method, fmt.Sprintf("N:%d", d.N)}
	switch f.Method {
	case MethodPre:
		parts = append(parts, fmt.Sprintf("infl:%.3g", d.Infl))
	case MethodA07:
		parts = append(parts, fmt.Sprintf("var_f:%.3g", d.VarF))
	case MethodXplct, MethodNXplct:
		parts = append(parts, fmt.Sprintf("nu_f:%.3g", d.NuF))
	}
	if f.Method == MethodNXplct || f.Method == MethodFiniteSize {
		if !f.Cond {
			parts = append(parts, "Cond:0")
		}
	}
	if d.Transform != TransformSqrt {
		parts = append(parts, d.Transform)
	}
	if f.L > 0 {
		parts = append(parts, fmt.Sprintf("L:%.3g", f.L))
	}
	if d.Order() != DefaultDetp {
		parts = append(parts, fmt.Sprintf("detp:%d", d.Order()))
	}
	return strings.Join(parts, " ")
}

// TuningParams are the filter parameters accepted by With.
var TuningParams = []string{"infl", "var_f", "damp", "nu_f", "n", "l"}

// With returns a copy of f with one named parameter replaced.
func (f Filter) With(name string, v float64) (Filter, error) {
	f = f.Clone()
	switch name {
	case "infl":
		f.Infl = v
	case "var_f":
		f.VarF = v
	case "damp":
		f.Damp = &v
	case "nu_f":
		f.NuF = v
	case "n":
		f.N = int(math.Round(v))
	case "l":
		f.L = v
	default:
		return f, dynamo.Invalidf("unknown filter parameter %q", name)
	}
	f.Name = ""
	return f, nil
}

// TuningParam names the parameter swept by TuningFilters for method.
func TuningParam(method string) (string, error) {
	switch method {
	case MethodA07:
		return "var_f", nil
	case MethodXplct, MethodNXplct:
		return "nu_f", nil
	case MethodPre:
		return "infl", nil
	}
	return "", dynamo.Invalidf("method %q has no tuning parameter", method)
}
