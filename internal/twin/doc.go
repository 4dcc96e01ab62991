// Package twin sets up the model-error twin experiment: a two-scale
// Lorenz-96 truth observed on its slow variables, and a truncated
// single-scale forecast model whose unresolved tendency is replaced by a
// polynomial fitted on the truth.
package twin
