// Package logging assembles structured slog loggers and formatting helpers used
// across fseqgen.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so export code can automatically
// tag log lines with the batch run ID and the controller being exported. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same keys: component, event_type, run_id,
// controller, source, destination.
package logging
