package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/adinf/internal/dynamo"
)

type Simulator struct {
	dyn        dynamo.System
	integrator dynamo.Integrator
}

func New(dyn dynamo.System, integrator dynamo.Integrator) *Simulator {
	return &Simulator{dyn: dyn, integrator: integrator}
}

// Run integrates from x0 for cfg.Duration, storing every cfg.Every-th state
// including the initial one.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	if err := s.validateConfig(x0, cfg); err != nil {
		return nil, err
	}

	steps := cfg.Steps()
	every := cfg.Every
	if every < 1 {
		every = 1
	}
	result := &Result{
		States: make([]dynamo.State, 0, steps/every+1),
		Times:  make([]float64, 0, steps/every+1),
	}

	x := x0.Clone()
	t := 0.0
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; i < steps; i++ {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}
		}

		x = s.integrator.Step(s.dyn, x, t, cfg.Dt)
		t = float64(i+1) * cfg.Dt
		result.StepsTaken++

		if cfg.ValidateState && !x.IsValid() {
			return result, SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
		}
		if (i+1)%every == 0 {
			result.States = append(result.States, x.Clone())
			result.Times = append(result.Times, t)
		}
	}

	return result, nil
}

// Advance integrates x in place by steps steps of dt starting at t.
func (s *Simulator) Advance(x dynamo.State, t, dt float64, steps int) error {
	for i := 0; i < steps; i++ {
		next := s.integrator.Step(s.dyn, x, t+float64(i)*dt, dt)
		copy(x, next)
	}
	if !x.IsValid() {
		return SimError{Time: t + float64(steps)*dt, Step: steps, Message: "invalid state (NaN/Inf)"}
	}
	return nil
}

func (s *Simulator) validateConfig(x0 dynamo.State, cfg Config) error {
	if cfg.Dt <= 0 {
		return dynamo.Invalidf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return dynamo.Invalidf("duration must be positive, got %f", cfg.Duration)
	}
	if len(x0) != s.dyn.StateDim() {
		return fmt.Errorf("%w: initial state has %d entries, system has %d", dynamo.ErrDimensionMismatch, len(x0), s.dyn.StateDim())
	}
	return nil
}

// RunWithCallback integrates from x0 and calls callback after every step
// with the step count, the state and the time. x must not be retained by
// the callback. Returning false stops the run early.
func (s *Simulator) RunWithCallback(ctx context.Context, x0 dynamo.State, cfg Config, callback func(k int, x dynamo.State, t float64) bool) error {
	if err := s.validateConfig(x0, cfg); err != nil {
		return err
	}

	x := x0.Clone()
	steps := cfg.Steps()
	if !callback(0, x, 0) {
		return nil
	}

	for i := 0; i < steps; i++ {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		t := float64(i) * cfg.Dt
		x = s.integrator.Step(s.dyn, x, t, cfg.Dt)
		t = float64(i+1) * cfg.Dt

		if cfg.ValidateState && !x.IsValid() {
			return SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
		}
		if !callback(i+1, x, t) {
			return nil
		}
	}

	return nil
}
