package sim

import (
	"fmt"

	"github.com/san-kum/adinf/internal/dynamo"
)

type Config struct {
	Dt       float64
	Duration float64
	// Every keeps one state out of Every steps; 0 keeps all of them.
	Every         int
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{Dt: 0.005, Duration: 10, Every: 1, ValidateState: true}
}

// Steps is the number of integration steps in Duration.
func (c Config) Steps() int {
	return int(c.Duration/c.Dt + 0.5)
}

type Result struct {
	States     []dynamo.State
	Times      []float64
	StepsTaken int
}

// Final returns the last stored state.
func (r *Result) Final() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

// SimError locates an integration failure. It unwraps to dynamo.ErrUnstable.
type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}

func (e SimError) Unwrap() error { return dynamo.ErrUnstable }
