// Package batch drives the export engine over many (controller, source)
// pairs: a single-target run copies every selected source with one target,
// a fleet run exports every selected source once per controller.
//
// Runs are sequential. Cancellation is checked between pairs only, so an
// export that has started always completes and finished files are kept.
// Item failures are logged and recorded, the run continues, and a
// PartialFailureError is returned at the end.
package batch
