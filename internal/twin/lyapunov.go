package twin

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/integrators"
)

// Lyapunov is the leading Lyapunov exponent of a model and the error
// doubling time it implies.
type Lyapunov struct {
	Exponent     float64
	DoublingTime float64
}

// LeadingLyapunov estimates the largest Lyapunov exponent of dyn by following
// a perturbed twin of x0 and renormalizing their separation to d0 every
// step. The first spinUp of duration is integrated but not averaged.
func LeadingLyapunov(ctx context.Context, dyn dynamo.System, x0 dynamo.State, dt, duration, spinUp, d0 float64) (Lyapunov, error) {
	if len(x0) != dyn.StateDim() {
		return Lyapunov{}, dynamo.ErrDimensionMismatch
	}
	if !(dt > 0) || !(duration > spinUp) || !(d0 > 0) {
		return Lyapunov{}, dynamo.Invalidf("lyapunov needs dt > 0, duration > spin-up and d0 > 0")
	}

	integ := integrators.NewRK4()
	x := x0.Clone()
	xp := x0.Clone()
	// Spread the perturbation over every coordinate.
	for i := range xp {
		xp[i] += d0 / math.Sqrt(float64(len(xp)))
	}

	sep := make([]float64, len(x))
	sumLog, elapsed := 0.0, 0.0
	steps := int(math.Round(duration / dt))
	for k := 0; k < steps; k++ {
		if k%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Lyapunov{}, err
			}
		}
		t := float64(k) * dt
		x = integ.Step(dyn, x, t, dt)
		xp = integ.Step(dyn, xp, t, dt)
		if !x.IsValid() || !xp.IsValid() {
			return Lyapunov{}, &dynamo.CycleError{Cycle: k, Time: t + dt, Wrapped: dynamo.ErrUnstable}
		}

		floats.SubTo(sep, xp, x)
		d := floats.Norm(sep, 2)
		if d == 0 {
			return Lyapunov{}, fmt.Errorf("%w: trajectories coincide at step %d", dynamo.ErrInvalidState, k)
		}
		if t+dt > spinUp {
			sumLog += math.Log(d / d0)
			elapsed += dt
		}
		floats.AddScaledTo(xp, x, d0/d, sep)
	}

	lambda := sumLog / elapsed
	out := Lyapunov{Exponent: lambda, DoublingTime: math.Inf(1)}
	if lambda > 0 {
		out.DoublingTime = math.Ln2 / lambda
	}
	return out, nil
}

// ForecastLyapunov estimates the leading exponent of the forecast model
// with the order-d parameterization, started from the truth at its last
// stored state.
func (s *Setup) ForecastLyapunov(ctx context.Context, truth *Truth, order int, duration float64) (Lyapunov, error) {
	p, ok := truth.Prmzt[order]
	if !ok {
		return Lyapunov{}, dynamo.Invalidf("no parameterization of order %d", order)
	}
	if len(truth.States) == 0 {
		return Lyapunov{}, dynamo.ErrInsufficientData
	}
	x0 := truth.States[len(truth.States)-1]
	return LeadingLyapunov(ctx, s.ForecastModel(p), x0, s.Chrono.DtTrunc, duration, duration/10, 1e-6)
}
