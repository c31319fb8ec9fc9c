// Package pipeline runs one email digest: list the messages of a reporting
// window, fetch and normalize them on a bounded worker pool, select what fits
// the model budget, ask the model for an analysis, validate it, and store the
// resulting report.
//
// A run either produces a complete RunReport or fails as a whole. Individual
// message fetch failures are logged and counted but never abort a run, unless
// every message failed.
package pipeline
