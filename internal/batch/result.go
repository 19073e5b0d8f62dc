package batch

import (
	"context"
	"log/slog"
	"time"

	"fseqgen/internal/export"
	"fseqgen/internal/logging"
)

// ItemResult is the outcome of one (controller, source) export.
type ItemResult struct {
	Seq         int
	Controller  string
	Source      string
	Destination string
	Duration    time.Duration
	Err         error
}

// Failed reports whether the export failed.
func (i ItemResult) Failed() bool { return i.Err != nil }

// Result summarises a run. Items holds one entry per attempted export;
// pairs skipped by cancellation are absent.
type Result struct {
	RunID    string
	Mode     string
	DestDir  string
	Total    int
	Items    []ItemResult
	Canceled bool
}

func (r Result) Succeeded() int {
	n := 0
	for _, item := range r.Items {
		if !item.Failed() {
			n++
		}
	}
	return n
}

func (r Result) Failed() int {
	return len(r.Items) - r.Succeeded()
}

// Failures returns the failed items in attempt order.
func (r Result) Failures() []ItemResult {
	var out []ItemResult
	for _, item := range r.Items {
		if item.Failed() {
			out = append(out, item)
		}
	}
	return out
}

func (r Result) err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &PartialFailureError{RunID: r.RunID, Failed: len(failures), Total: r.Total, First: failures[0].Err}
}

// RunInfo describes a run as it starts.
type RunInfo struct {
	ID        string
	Mode      string
	DestDir   string
	Total     int
	Target    export.Target
	StartedAt time.Time
}

// Recorder persists run outcomes. Recorder failures are logged and never
// fail the run.
type Recorder interface {
	RunStarted(ctx context.Context, run RunInfo) error
	ItemFinished(ctx context.Context, runID string, item ItemResult) error
	RunFinished(ctx context.Context, result Result, runErr error) error
}

func (e *Exporter) recordStart(ctx context.Context, logger *slog.Logger, run RunInfo) {
	if e.Recorder == nil {
		return
	}
	if err := e.Recorder.RunStarted(context.WithoutCancel(ctx), run); err != nil {
		recordFailed(logger, err)
	}
}

func (e *Exporter) recordItem(ctx context.Context, logger *slog.Logger, runID string, item ItemResult) {
	if e.Recorder == nil {
		return
	}
	if err := e.Recorder.ItemFinished(context.WithoutCancel(ctx), runID, item); err != nil {
		recordFailed(logger, err)
	}
}

func (e *Exporter) recordFinish(ctx context.Context, logger *slog.Logger, result Result, runErr error) {
	if e.Recorder == nil {
		return
	}
	if err := e.Recorder.RunFinished(context.WithoutCancel(ctx), result, runErr); err != nil {
		recordFailed(logger, err)
	}
}

func recordFailed(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "export history not recorded", "history_record_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "the run is missing from fseqgen history"),
		logging.String(logging.FieldErrorHint, "check state_dir permissions or disable [history]"),
	)
}
