package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/adinf/internal/dynamo"
)

// Classical Runge-Kutta tableau. Stage s is evaluated at t + nodes[s]·dt from
// x + nodes[s]·dt·k[s-1], and contributes weights[s]/6 of its slope.
var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1, 2, 2, 1}
)

// RK4 is the classical fourth-order Runge-Kutta stepper. It keeps slope and
// stage buffers between steps, so one RK4 must not be shared across
// goroutines.
type RK4 struct {
	slope dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	n := len(x)
	if len(r.slope) != n {
		r.slope = make(dynamo.State, n)
		r.stage = make(dynamo.State, n)
	}

	next := make(dynamo.State, n)
	copy(next, x)
	at := x
	for s, c := range rk4Nodes {
		if s > 0 {
			floats.AddScaledTo(r.stage, x, c*dt, r.slope)
			at = r.stage
		}
		copy(r.slope, dyn.Derive(at, t+c*dt))
		floats.AddScaled(next, rk4Weights[s]*dt/6, r.slope)
	}
	return next
}
