package session

import (
	"context"
	"encoding/json"
	"fmt"

	"fseqgen/internal/batch"
	"fseqgen/internal/history"
	"fseqgen/internal/logging"
)

// recorder writes batch outcomes to the history ledger.
type recorder struct {
	store *history.Store
}

var _ batch.Recorder = (*recorder)(nil)

func (r *recorder) RunStarted(ctx context.Context, run batch.RunInfo) error {
	target, err := json.Marshal(run.Target)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	return r.store.BeginRun(ctx, history.Run{
		ID:         run.ID,
		Mode:       run.Mode,
		DestDir:    run.DestDir,
		TargetJSON: string(target),
		Total:      run.Total,
		StartedAt:  run.StartedAt,
	})
}

func (r *recorder) ItemFinished(ctx context.Context, runID string, item batch.ItemResult) error {
	rec := history.Item{
		RunID:      runID,
		Seq:        item.Seq,
		Controller: item.Controller,
		SourcePath: item.Source,
		DestPath:   item.Destination,
		Status:     history.ItemSucceeded,
		Duration:   item.Duration,
	}
	if item.Failed() {
		rec.Status = history.ItemFailed
		rec.ErrorKind = logging.ErrorKind(item.Err).Value.String()
		rec.ErrorMessage = item.Err.Error()
	}
	return r.store.RecordItem(ctx, rec)
}

func (r *recorder) RunFinished(ctx context.Context, result batch.Result, runErr error) error {
	status := history.RunCompleted
	switch {
	case result.Canceled:
		status = history.RunCanceled
	case result.Failed() > 0:
		status = history.RunPartial
	}
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	return r.store.FinishRun(ctx, result.RunID, status, message)
}
