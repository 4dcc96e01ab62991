// Package dynamo provides the shared primitives of the twin-experiment lab.
//
// The package defines the small vocabulary every other package speaks:
//
//   - [State]: vector representing a model state
//   - [System]: interface for ODE systems (dX/dt = f(X, t))
//   - [Integrator]: numerical time stepper
//   - the error taxonomy used by the assimilation core
//
// # Errors
//
// Numerical failures inside an assimilation cycle ([ErrSingularCovariance],
// [ErrEnsembleCollapse]) are never retried; they are wrapped in a
// [CycleError] and handed to the caller, which decides whether the run is
// recorded as missing data. [ErrInsufficientData] is returned by statistics
// reductions that would otherwise average nothing, and
// [ErrInvalidConfiguration] is returned before any cycle runs.
//
// # Thread Safety
//
// Nothing in this package holds state across calls except [ParallelFor],
// which only fans a closure out over index ranges.
package dynamo
