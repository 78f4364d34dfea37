// Package errors provides the structured error taxonomy used across the
// pipeline execution core: validation failures, step failures, step
// timeouts, cancellation, and whole-pipeline abort, all built on a shared
// AppError shape with a machine-readable code and retryable classification.
package errors
