package inflation

import (
	"math"

	"github.com/san-kum/adinf/internal/dynamo"
)

// Fixed applies a constant, pre-tuned factor.
type Fixed struct {
	factor float64
	cycles int
}

func NewFixed(factor, floor float64) (*Fixed, error) {
	floor, err := validateFloor(floor)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < floor {
		return nil, dynamo.Invalidf("fixed inflation %g below floor %g", factor, floor)
	}
	return &Fixed{factor: factor}, nil
}

func (f *Fixed) Name() string { return "fixed" }

func (f *Fixed) Update(*Stats) (Inflation, error) {
	f.cycles++
	return f.Current(), nil
}

func (f *Fixed) Current() Inflation {
	return Inflation{Factor: f.factor, Dual: 1}
}

func (f *Fixed) Cycles() int { return f.cycles }
