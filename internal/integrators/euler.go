package integrators

import "github.com/san-kum/adinf/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, t float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}

// New returns a fresh stepper by name.
func New(name string) (dynamo.Integrator, error) {
	switch name {
	case "rk4", "":
		return NewRK4(), nil
	case "euler":
		return NewEuler(), nil
	}
	return nil, dynamo.Invalidf("unknown integrator: %s", name)
}
