package pipeline

import "fmt"

// The pipeline's fatal error kinds. Per-row anomalies (missing
// customer, cancelled invoice, unresolved foreign key, ...) are never
// errors; they surface only as aggregate counts in RunStats.

// ConnectionError means the warehouse was unreachable; no stage ran.
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return fmt.Sprintf("connect warehouse: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// ExtractionError means the source file was unreadable or its schema
// did not match; fatal to the run.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("extract %s: %v", e.Path, e.Err) }
func (e *ExtractionError) Unwrap() error { return e.Err }

// TransformError signals a systemic cleaning failure, not a per-row
// one; fatal to the run.
type TransformError struct{ Err error }

func (e *TransformError) Error() string { return e.Err.Error() }
func (e *TransformError) Unwrap() error { return e.Err }

// DimensionLoadError means one dimension type failed to commit. That
// type rolled back; fact loading must not proceed.
type DimensionLoadError struct {
	Dimension string
	Err       error
}

func (e *DimensionLoadError) Error() string {
	return fmt.Sprintf("load dimension %s: %v", e.Dimension, e.Err)
}
func (e *DimensionLoadError) Unwrap() error { return e.Err }

// FactLoadError means a fact batch failed. The in-flight batch rolled
// back; batches committed earlier remain.
type FactLoadError struct{ Err error }

func (e *FactLoadError) Error() string { return fmt.Sprintf("load facts: %v", e.Err) }
func (e *FactLoadError) Unwrap() error { return e.Err }

// ValidationError means the post-load checks could not run. The loaded
// data is already committed, so this is reported rather than failing
// the run.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return fmt.Sprintf("validate: %v", e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }
