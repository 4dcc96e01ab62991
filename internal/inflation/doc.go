// Package inflation estimates the multiplicative factor applied to ensemble
// anomalies before each analysis.
//
// An [Estimator] is created once per run from the run's configuration and is
// updated once per assimilation cycle from the [Stats] of the current
// innovation, whitened by the observation-noise covariance:
//
//   - [Fixed]: constant factor, no learning
//   - [RecursiveVariance]: Gaussian belief on the variance factor, updated
//     observation by observation (hierarchical, Anderson 2007)
//   - [ExplicitFiniteSize]: scaled inverse-chi-square belief updated in
//     closed form from the innovation norm, with a finite-size correction
//   - [FiniteSize]: EnKF-N dual inflation, optionally combined with the
//     explicit belief (the "conditioned" hybrid)
//
// # Invariants
//
// Every returned [Inflation.Factor] is finite and at least the configured
// floor, for zero innovations as well as arbitrarily large ones. A single
// update blends the prior belief with the new evidence; it never jumps to
// the floor in one step.
//
// # Thread Safety
//
// Estimators are cycle-sequential state machines and are not safe for
// concurrent use. Each run owns its estimator.
package inflation
