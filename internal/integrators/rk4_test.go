package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/adinf/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *simpleDynamics) StateDim() int { return 2 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestRK4DoesNotAliasInput(t *testing.T) {
	integ := NewRK4()
	x := dynamo.State{1.0, 0.0}
	next := integ.Step(&simpleDynamics{}, x, 0, 0.1)
	next[0] = 42
	if x[0] != 1.0 {
		t.Errorf("input state modified: %v", x)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"rk4", false},
		{"", false},
		{"euler", false},
		{"leapfrog", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, dynamo.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestRK4FourthOrder(t *testing.T) {
	errAt := func(dt float64) float64 {
		integ := NewRK4()
		x := dynamo.State{1.0, 0.0}
		steps := int(math.Round(1 / dt))
		for i := 0; i < steps; i++ {
			x = integ.Step(&simpleDynamics{}, x, float64(i)*dt, dt)
		}
		return math.Hypot(x[0]-math.Cos(1), x[1]+math.Sin(1))
	}

	ratio := errAt(0.1) / errAt(0.05)
	if ratio < 14 || ratio > 18 {
		t.Errorf("halving dt reduced the error by %.2f, expected about 16", ratio)
	}
}

type linearDecay struct{ n int }

func (l linearDecay) Derive(x dynamo.State, t float64) dynamo.State {
	dx := make(dynamo.State, len(x))
	for i := range x {
		dx[i] = -x[i]
	}
	return dx
}

func (l linearDecay) StateDim() int { return l.n }

func TestRK4ResizesBuffers(t *testing.T) {
	integ := NewRK4()
	for _, n := range []int{2, 5, 1} {
		x := make(dynamo.State, n)
		for i := range x {
			x[i] = 1
		}
		next := integ.Step(linearDecay{n}, x, 0, 0.1)
		if len(next) != n {
			t.Fatalf("dimension %d: got %d components", n, len(next))
		}
		want := 1 - 0.1 + 0.01/2 - 0.001/6 + 0.0001/24
		for i, v := range next {
			if math.Abs(v-want) > 1e-14 {
				t.Errorf("dimension %d component %d: got %.17g, want %.17g", n, i, v, want)
			}
		}
	}
}
