package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = "id, mode, dest_dir, target_json, status, total, succeeded, failed, error_message, started_at, finished_at"

const itemColumns = "id, run_id, seq, controller, source_path, dest_path, status, error_kind, error_message, duration_ms, finished_at"

// BeginRun records a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO export_runs (id, mode, dest_dir, target_json, status, total, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Mode,
		run.DestDir,
		nullableString(run.TargetJSON),
		RunRunning,
		run.Total,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordItem appends one export outcome to a run.
func (s *Store) RecordItem(ctx context.Context, item Item) error {
	if item.FinishedAt.IsZero() {
		item.FinishedAt = time.Now()
	}
	if item.Status == "" {
		item.Status = ItemSucceeded
	}
	_, err := s.exec(ctx,
		`INSERT INTO export_items (
            run_id, seq, controller, source_path, dest_path, status,
            error_kind, error_message, duration_ms, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.RunID,
		item.Seq,
		nullableString(item.Controller),
		item.SourcePath,
		item.DestPath,
		item.Status,
		nullableString(item.ErrorKind),
		nullableString(item.ErrorMessage),
		item.Duration.Milliseconds(),
		formatTime(item.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert item for run %s: %w", item.RunID, err)
	}
	return nil
}

// FinishRun closes a run, deriving its counts from the recorded items.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, message string) error {
	res, err := s.exec(ctx,
		`UPDATE export_runs
         SET status = ?, error_message = ?, finished_at = ?,
             succeeded = (SELECT COUNT(1) FROM export_items WHERE run_id = ? AND status = ?),
             failed = (SELECT COUNT(1) FROM export_items WHERE run_id = ? AND status = ?)
         WHERE id = ?`,
		status,
		nullableString(message),
		formatTime(time.Now()),
		runID, ItemSucceeded,
		runID, ItemFailed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun fetches a run by id, or returns ErrRunNotFound. A unique id prefix
// is accepted.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM export_runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, id+"%", id,
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case runs[0].ID == id || len(runs) == 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM export_runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Items returns the recorded exports of a run in attempt order.
func (s *Store) Items(ctx context.Context, runID string) ([]Item, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM export_items WHERE run_id = ? ORDER BY seq, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Prune removes runs that started more than retentionDays ago, along with
// their items. A retentionDays value of 0 disables pruning.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := s.exec(ctx, `DELETE FROM export_runs WHERE started_at < ? AND status != ?`, formatTime(cutoff), RunRunning)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		status      string
		targetJSON  sql.NullString
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Mode,
		&run.DestDir,
		&targetJSON,
		&status,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.TargetJSON = targetJSON.String
	run.Error = errorMsg.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (Item, error) {
	var (
		item        Item
		status      string
		controller  sql.NullString
		errorKind   sql.NullString
		errorMsg    sql.NullString
		durationMS  int64
		finishedRaw string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.RunID,
		&item.Seq,
		&controller,
		&item.SourcePath,
		&item.DestPath,
		&status,
		&errorKind,
		&errorMsg,
		&durationMS,
		&finishedRaw,
	); err != nil {
		return Item{}, err
	}
	item.Status = ItemStatus(status)
	item.Controller = controller.String
	item.ErrorKind = errorKind.String
	item.ErrorMessage = errorMsg.String
	item.Duration = time.Duration(durationMS) * time.Millisecond
	if finished, err := parseTimeString(finishedRaw); err == nil {
		item.FinishedAt = finished
	}
	return item, nil
}
