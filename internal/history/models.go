package history

import "time"

// RunStatus is the lifecycle state of an export run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial_failure"
	RunCanceled  RunStatus = "canceled"
)

// ItemStatus is the outcome of one export.
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// Run is one batch invocation.
type Run struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	DestDir    string     `json:"dest_dir"`
	TargetJSON string     `json:"target,omitempty"`
	Status     RunStatus  `json:"status"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration is how long the run took, or has taken so far.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Item is one (controller, source) export of a run.
type Item struct {
	ID           int64         `json:"id"`
	RunID        string        `json:"run_id"`
	Seq          int           `json:"seq"`
	Controller   string        `json:"controller,omitempty"`
	SourcePath   string        `json:"source_path"`
	DestPath     string        `json:"dest_path"`
	Status       ItemStatus    `json:"status"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	FinishedAt   time.Time     `json:"finished_at"`
}
