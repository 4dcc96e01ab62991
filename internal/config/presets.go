package config

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/adinf/internal/dynamo"
)

// BenchFilters are the adaptive inflation methods compared in the model
// error benchmark, plus a tuned fixed-inflation baseline.
func BenchFilters() []Filter {
	return []Filter{
		{Method: MethodA07, N: 20, VarF: 1e-2},
		{Method: MethodXplct, N: 20, NuF: 1e3},
		{Method: MethodNXplct, N: 20, NuF: 1e4, Cond: false},
		{Method: MethodPre, N: 20, Infl: 1.30, Transform: TransformSqrt},
	}
}

// TuningFilters returns one filter per value of the method's tuning
// parameter.
func TuningFilters(method string, n int) ([]Filter, error) {
	var out []Filter
	switch method {
	case MethodA07:
		for _, v := range CurvedSpace(1e-3, 1, 10, 1) {
			out = append(out, Filter{Method: method, N: n, VarF: v})
		}
	case MethodXplct:
		for _, v := range CurvedSpace(10, 1e4, 10, 1) {
			out = append(out, Filter{Method: method, N: n, NuF: v})
		}
	case MethodNXplct:
		for _, v := range CurvedSpace(10, 1e5, 10, 1) {
			out = append(out, Filter{Method: method, N: n, NuF: v})
		}
	case MethodPre:
		for _, v := range CurvedSpace(1, 5, 40, 3) {
			out = append(out, Filter{Method: method, N: n, Infl: v})
		}
	default:
		return nil, dynamo.Invalidf("method %q has no tuning range", method)
	}
	return out, nil
}

// SettingValues is the default abscissa of an experimental setting.
func SettingValues(setting string) ([]float64, error) {
	switch setting {
	case "c":
		v := append(CurvedSpace(0.01, 40, 20, 2), 14, 15)
		sort.Float64s(v)
		return dedup(v), nil
	case "h":
		return CurvedSpace(0.01, 10, 40, 2), nil
	case "F":
		return []float64{15}, nil
	case "b":
		return CurvedSpace(1, 40, 10, 2), nil
	default:
		return nil, dynamo.Invalidf("unknown setting %q", setting)
	}
}

// CurvedSpace returns n log-spaced values in [lo, hi] rounded to sig
// significant figures.
func CurvedSpace(lo, hi float64, n, sig int) []float64 {
	v := floats.LogSpan(make([]float64, n), lo, hi)
	for i := range v {
		v[i] = roundSigFig(v[i], sig)
	}
	return dedup(v)
}

func roundSigFig(x float64, sig int) float64 {
	if x == 0 {
		return 0
	}
	scale := math.Pow(10, float64(sig)-math.Ceil(math.Log10(math.Abs(x))))
	return math.Round(x*scale) / scale
}

func dedup(v []float64) []float64 {
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

// Presets are named suites grouped by the setting they sweep.
var Presets = map[string]map[string]*Suite{
	"c": {
		"bench": benchSuite("c", mustValues("c"), 1),
		"quick": quickSuite("c", []float64{10}),
		"tune":  tuneSuite("c", []float64{10}),
	},
	"h": {
		"bench": benchSuite("h", mustValues("h"), 1),
		"quick": quickSuite("h", []float64{0.5, 1}),
	},
	"F": {
		"bench": benchSuite("F", mustValues("F"), 1),
		"quick": quickSuite("F", []float64{15}),
	},
}

func benchSuite(setting string, values []float64, reps int) *Suite {
	s := DefaultSuite()
	s.Setting = setting
	s.Values = values
	s.Reps = reps
	return s
}

func quickSuite(setting string, values []float64) *Suite {
	s := benchSuite(setting, values, 1)
	s.T = 30
	s.BurnIn = 3
	return s
}

func tuneSuite(setting string, values []float64) *Suite {
	s := benchSuite(setting, values, 1)
	s.T = 100
	s.Filters = nil
	for _, m := range []string{MethodA07, MethodXplct, MethodNXplct} {
		fs, _ := TuningFilters(m, DefaultN)
		s.Filters = append(s.Filters, fs...)
	}
	return s
}

func mustValues(setting string) []float64 {
	v, err := SettingValues(setting)
	if err != nil {
		panic(err)
	}
	return v
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(setting, preset string) *Suite {
	settingPresets, ok := Presets[setting]
	if !ok {
		return nil
	}
	s, ok := settingPresets[preset]
	if !ok {
		return nil
	}
	return s.Clone()
}

func ListPresets(setting string) []string {
	settingPresets, ok := Presets[setting]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(settingPresets))
	for name := range settingPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
