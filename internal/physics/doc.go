// Package physics provides the dynamical models of the twin experiments.
//
// Each model implements the [dynamo.System] interface:
//
//   - [LorenzUV]: two-scale Lorenz-96 system, used to generate the truth
//   - [Lorenz96]: single-scale Lorenz-96, the truncated forecast model
//
// The truncated model sees only the slow (U) variables. The effect of the
// fast (V) variables is replaced by a [Parameterization] of each slow
// variable, usually a polynomial fitted on the truth trajectory.
//
// Both models implement [dynamo.Configurable] so that sweeps can vary the
// forcing, coupling and time-scale ratio:
//
//	luv := physics.NewLorenzUV()
//	_ = luv.SetParam("c", 4)
package physics
