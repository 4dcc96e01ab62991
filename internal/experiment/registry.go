package experiment

import (
	"math/rand"
	"sort"

	"github.com/san-kum/adinf/internal/analysis"
	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/inflation"
	"github.com/san-kum/adinf/internal/obs"
)

// Filter is the strategy of one run: an inflation estimator and the
// analysis engine that consults it, both built from the same configuration.
type Filter struct {
	Config    config.Filter
	Estimator inflation.Estimator
	Engine    *analysis.Engine
	RNG       *rand.Rand
}

type Registry struct {
	estimators map[string]func(cfg config.Filter) (inflation.Estimator, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		estimators: make(map[string]func(config.Filter) (inflation.Estimator, error)),
	}

	// Infl is an anomaly factor; variance-factor beliefs start at its square.
	r.estimators[config.MethodPre] = func(cfg config.Filter) (inflation.Estimator, error) {
		return inflation.NewFixed(cfg.Infl, cfg.Floor)
	}
	r.estimators[config.MethodA07] = func(cfg config.Filter) (inflation.Estimator, error) {
		return inflation.NewRecursiveVariance(cfg.Infl*cfg.Infl, cfg.VarF, cfg.Damping(), cfg.Floor)
	}
	r.estimators[config.MethodXplct] = func(cfg config.Filter) (inflation.Estimator, error) {
		return inflation.NewExplicitFiniteSize(cfg.Infl*cfg.Infl, cfg.NuF, cfg.Floor)
	}
	r.estimators[config.MethodNXplct] = func(cfg config.Filter) (inflation.Estimator, error) {
		return inflation.NewFiniteSizeConditioned(cfg.Infl*cfg.Infl, cfg.NuF, cfg.Floor, cfg.Cond)
	}
	r.estimators[config.MethodFiniteSize] = func(cfg config.Filter) (inflation.Estimator, error) {
		return inflation.NewFiniteSize(cfg.Floor, cfg.Cond)
	}

	return r
}

func (r *Registry) GetEstimator(cfg config.Filter) (inflation.Estimator, error) {
	fn, ok := r.estimators[cfg.Method]
	if !ok {
		return nil, dynamo.Invalidf("unknown method: %s", cfg.Method)
	}
	return fn(cfg.WithDefaults())
}

// Build returns a fresh strategy whose random draws all come from seed.
func (r *Registry) Build(cfg config.Filter, op obs.Operator, seed int64) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	est, err := r.GetEstimator(cfg)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	eng, err := analysis.NewEngine(op, cfg, rng)
	if err != nil {
		return nil, err
	}
	return &Filter{Config: cfg, Estimator: est, Engine: eng, RNG: rng}, nil
}

func (r *Registry) ListMethods() []string {
	names := make([]string, 0, len(r.estimators))
	for name := range r.estimators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
