package physics

import (
	"fmt"

	"github.com/san-kum/adinf/internal/dynamo"
)

// Parameterization approximates the unresolved tendency of one slow variable.
type Parameterization interface {
	Tendency(x float64) float64
}

// Lorenz96 is the single-scale ring model dX_i/dt = X_{i-1}(X_{i+1}-X_{i-2}) - X_i + F + g(X_i).
type Lorenz96 struct {
	n     int
	F     float64
	Prmzt Parameterization
}

func NewLorenz96(n int, forcing float64) *Lorenz96 {
	return &Lorenz96{n: n, F: forcing}
}

func (l *Lorenz96) StateDim() int { return l.n }

// Derive calculates the Lorenz-96 tendencies.
func (l *Lorenz96) Derive(s dynamo.State, _ float64) dynamo.State {
	n := l.n
	dx := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		dx[i] = s[(i-1+n)%n]*(s[(i+1)%n]-s[(i-2+n)%n]) - s[i] + l.F
		if l.Prmzt != nil {
			dx[i] += l.Prmzt.Tendency(s[i])
		}
	}
	return dx
}

func (l *Lorenz96) GetParams() map[string]float64 {
	return map[string]float64{"F": l.F}
}

func (l *Lorenz96) SetParam(n string, v float64) error {
	switch n {
	case "F":
		l.F = v
	default:
		return fmt.Errorf("%w: lorenz96 has no parameter %q", dynamo.ErrInvalidConfiguration, n)
	}
	return nil
}

// LorenzUV is the two-scale Lorenz-96 system with NU slow variables, each
// coupled to J fast variables. The state is laid out as [U..., V...].
type LorenzUV struct {
	NU, J int
	F, H  float64
	B, C  float64
}

// NewLorenzUV returns the standard configuration (36 slow, 10 fast each).
func NewLorenzUV() *LorenzUV {
	return &LorenzUV{NU: 36, J: 10, F: 10, H: 1, B: 10, C: 10}
}

func (l *LorenzUV) StateDim() int { return l.NU * (l.J + 1) }

// Coupling is the strength h*c/b of the scale interaction.
func (l *LorenzUV) Coupling() float64 { return l.H * l.C / l.B }

// Derive calculates the two-scale tendencies. The fast ring is periodic over
// all NU*J fast variables.
func (l *LorenzUV) Derive(s dynamo.State, _ float64) dynamo.State {
	nU, nV := l.NU, l.NU*l.J
	u, v := s[:nU], s[nU:]
	hcb := l.Coupling()
	dx := make(dynamo.State, nU+nV)

	for i := 0; i < nU; i++ {
		sum := 0.0
		for j := 0; j < l.J; j++ {
			sum += v[i*l.J+j]
		}
		dx[i] = u[(i-1+nU)%nU]*(u[(i+1)%nU]-u[(i-2+nU)%nU]) - u[i] + l.F - hcb*sum
	}

	cb := l.C * l.B
	for k := 0; k < nV; k++ {
		dx[nU+k] = cb*v[(k+1)%nV]*(v[(k-1+nV)%nV]-v[(k+2)%nV]) - l.C*v[k] + hcb*u[k/l.J]
	}
	return dx
}

func (l *LorenzUV) GetParams() map[string]float64 {
	return map[string]float64{"F": l.F, "h": l.H, "b": l.B, "c": l.C}
}

func (l *LorenzUV) SetParam(n string, v float64) error {
	switch n {
	case "F":
		l.F = v
	case "h":
		l.H = v
	case "b":
		l.B = v
	case "c":
		l.C = v
	default:
		return fmt.Errorf("%w: lorenzUV has no parameter %q", dynamo.ErrInvalidConfiguration, n)
	}
	return nil
}
