// Package analysis implements the ensemble analysis step: given a forecast
// ensemble, an observation and an inflation estimator it returns the
// analysed ensemble.
//
// The engine works in observation space whitened by the noise covariance.
// Innovation statistics of the uninflated ensemble are handed to the
// estimator first; the factor it returns multiplies the anomalies before
// the transform is applied:
//
//   - [TransformSqrt]: ETKF symmetric square root in ensemble space
//   - [TransformPertObs]: stochastic EnKF with centred perturbed observations
//   - local square root when a localization radius is configured, tapering
//     observations with [GaspariCohn] per state coordinate
//
// # Errors
//
// Analyze fails with [dynamo.ErrEnsembleCollapse] when all members are
// identical and with [dynamo.ErrSingularCovariance] when the noise or
// innovation covariance cannot be factorized or the result is not finite.
//
// # Thread Safety
//
// An Engine owns its random source and is not safe for concurrent use.
package analysis

import "github.com/san-kum/adinf/internal/config"

// Transform names, re-exported for callers that do not import config.
const (
	TransformSqrt    = config.TransformSqrt
	TransformPertObs = config.TransformPertObs
)
