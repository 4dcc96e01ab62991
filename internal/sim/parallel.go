package sim

import (
	"errors"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/adinf/internal/dynamo"
)

// Ensemble advances many states of the same system concurrently. Each chunk
// of rows gets its own integrator from newIntegrator, since integrators
// keep scratch buffers.
type Ensemble struct {
	dyn           dynamo.System
	newIntegrator func() dynamo.Integrator
	minChunk      int
}

func NewEnsemble(dyn dynamo.System, newIntegrator func() dynamo.Integrator) *Ensemble {
	return &Ensemble{dyn: dyn, newIntegrator: newIntegrator, minChunk: 2}
}

// Advance integrates every row of states in place.
func (e *Ensemble) Advance(states *mat.Dense, t, dt float64, steps int) error {
	n, m := states.Dims()
	if m != e.dyn.StateDim() {
		return dynamo.ErrDimensionMismatch
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	dynamo.ParallelFor(n, e.minChunk, func(start, end int) {
		s := New(e.dyn, e.newIntegrator())
		for i := start; i < end; i++ {
			if err := s.Advance(dynamo.State(states.RawRowView(i)), t, dt, steps); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}
	})
	return errors.Join(errs...)
}
