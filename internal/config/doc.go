// Package config defines the format-agnostic model of a pipeline: the
// trigger predicate, the job DAG, steps, and declared outputs. Loaders
// (currently HCL) translate their source format into this model, and the
// rest of the engine depends only on it.
package config
