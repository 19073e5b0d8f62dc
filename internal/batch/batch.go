package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"fseqgen/internal/channels"
	"fseqgen/internal/export"
	"fseqgen/internal/logging"
	"fseqgen/internal/textutil"
	"fseqgen/internal/topology"
)

const (
	ModeSingle = "single"
	ModeFleet  = "fleet"
)

// Runner performs one export. *export.Engine satisfies it.
type Runner interface {
	Export(ctx context.Context, sourcePath, destPath string, target export.Target) error
}

// Source is a candidate input sequence.
type Source struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Selected bool   `json:"selected"`
}

// FileName is the name the source is written under.
func (s Source) FileName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return filepath.Base(name)
	}
	return filepath.Base(s.Path)
}

// Selected returns the sources that take part in a run.
func Selected(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.Selected {
			out = append(out, s)
		}
	}
	return out
}

// Progress is reported before each export and once when the run ends.
type Progress struct {
	Completed  int
	Total      int
	Label      string
	Controller string
	Source     string
}

// Reporter receives progress updates.
type Reporter func(Progress)

// SingleRequest exports every selected source with one target.
type SingleRequest struct {
	Sources []Source
	DestDir string
	Target  export.Target
}

// FleetRequest exports every selected source once per controller; Template
// supplies everything but the channel ranges.
type FleetRequest struct {
	Sources     []Source
	DestDir     string
	Controllers []topology.Controller
	Template    export.Target
}

// Exporter runs batches. The zero value is not usable; Runner is required.
type Exporter struct {
	Runner   Runner
	Logger   *slog.Logger
	Recorder Recorder
	Reporter Reporter
	// NewRunID defaults to random UUIDs.
	NewRunID func() string
}

// New returns an exporter backed by runner.
func New(runner Runner, logger *slog.Logger) *Exporter {
	return &Exporter{Runner: runner, Logger: logger}
}

type job struct {
	controller string
	source     Source
	dest       string
	target     export.Target
	planErr    error
}

// RunSingle writes DestDir/<name> for each selected source.
func (e *Exporter) RunSingle(ctx context.Context, req SingleRequest) (Result, error) {
	selected := Selected(req.Sources)
	jobs := make([]job, 0, len(selected))
	for _, src := range selected {
		jobs = append(jobs, job{
			source: src,
			dest:   filepath.Join(req.DestDir, src.FileName()),
			target: req.Target.WithRanges(req.Target.Ranges),
		})
	}
	return e.run(ctx, ModeSingle, req.DestDir, req.Target, jobs)
}

// RunFleet exports each selected source for each controller, controllers
// in the outer loop. With more than one controller each gets its own
// subdirectory of DestDir.
func (e *Exporter) RunFleet(ctx context.Context, req FleetRequest) (Result, error) {
	selected := Selected(req.Sources)
	var dirs []string
	if len(req.Controllers) > 1 {
		dirs = controllerDirs(logging.NewComponentLogger(e.Logger, "batch"), req.Controllers)
	}
	jobs := make([]job, 0, len(req.Controllers)*len(selected))
	for i, c := range req.Controllers {
		ranges, err := channels.ForController(c.StartChannel, c.ChannelCount)
		dir := req.DestDir
		if dirs != nil {
			dir = filepath.Join(req.DestDir, dirs[i])
		}
		for _, src := range selected {
			jobs = append(jobs, job{
				controller: c.Name,
				source:     src,
				dest:       filepath.Join(dir, src.FileName()),
				target:     req.Template.WithRanges(ranges),
				planErr:    err,
			})
		}
	}
	return e.run(ctx, ModeFleet, req.DestDir, req.Template, jobs)
}

// controllerDirs names one subdirectory per controller. Names that sanitize
// to the same folder, compared case-insensitively for FAT cards, get a
// numeric suffix.
func controllerDirs(logger *slog.Logger, controllers []topology.Controller) []string {
	dirs := make([]string, len(controllers))
	used := make(map[string]bool, len(controllers))
	for i, c := range controllers {
		base := textutil.DirName(c.Name, fmt.Sprintf("controller-%d", i+1))
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		used[strings.ToLower(name)] = true
		dirs[i] = name
		if name != base {
			logging.WarnWithContext(logger, "controller folder name already taken", "controller_dir_collision",
				logging.String(logging.FieldController, c.Name),
				logging.String("folder", base),
				logging.String("renamed", name),
				logging.String(logging.FieldImpact, "this controller's sequences are written under the renamed folder"),
				logging.String(logging.FieldErrorHint, "give controllers names that differ after sanitizing"),
			)
		}
	}
	return dirs
}

func (e *Exporter) run(ctx context.Context, mode, destDir string, target export.Target, jobs []job) (Result, error) {
	if e == nil || e.Runner == nil {
		return Result{}, errors.New("batch exporter has no runner")
	}
	logger := logging.NewComponentLogger(e.Logger, "batch")
	newID := e.NewRunID
	if newID == nil {
		newID = uuid.NewString
	}
	result := Result{RunID: newID(), Mode: mode, DestDir: destDir, Total: len(jobs)}
	ctx = logging.WithRunID(ctx, result.RunID)
	logger = logging.WithContext(ctx, logger)

	if len(jobs) == 0 {
		logging.WarnWithContext(logger, "nothing to export", "batch_empty",
			logging.String("mode", mode),
			logging.String(logging.FieldImpact, "no files were written"),
			logging.String(logging.FieldErrorHint, "select at least one source and load a topology with controllers"),
		)
		return result, nil
	}
	if strings.TrimSpace(destDir) == "" {
		return result, errors.New("destination directory is required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return result, fmt.Errorf("create destination %s: %w", destDir, err)
	}

	// Lock the directory itself so the run leaves nothing behind in it.
	lock := flock.New(destDir, flock.SetFlag(os.O_RDONLY))
	locked, err := lock.TryLock()
	if err != nil {
		return result, fmt.Errorf("lock destination %s: %w", destDir, err)
	}
	if !locked {
		return result, &DestinationBusyError{Dir: destDir}
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("destination lock release failed", logging.Error(err))
		}
	}()

	started := time.Now()
	e.recordStart(ctx, logger, RunInfo{ID: result.RunID, Mode: mode, DestDir: destDir, Total: len(jobs), Target: target, StartedAt: started})
	logger.Info("export run started",
		logging.String(logging.FieldEventType, "batch_started"),
		logging.String("mode", mode),
		logging.String(logging.FieldDestination, destDir),
		logging.Int("exports", len(jobs)),
	)

	var cancelErr error
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}
		e.report(Progress{Completed: i, Total: len(jobs), Label: j.label(), Controller: j.controller, Source: j.source.Path})
		item := e.runJob(ctx, logger, i+1, j)
		result.Items = append(result.Items, item)
		e.recordItem(ctx, logger, result.RunID, item)
	}
	result.Canceled = cancelErr != nil
	e.report(Progress{Completed: len(result.Items), Total: len(jobs), Label: "done"})

	runErr := result.err()
	if cancelErr != nil {
		runErr = errors.Join(fmt.Errorf("export run canceled after %d of %d exports: %w", len(result.Items), len(jobs), cancelErr), runErr)
	}
	e.recordFinish(ctx, logger, result, runErr)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "batch_finished"),
		logging.Int("succeeded", result.Succeeded()),
		logging.Int("failed", result.Failed()),
		logging.Int("skipped", len(jobs)-len(result.Items)),
		logging.Duration("elapsed", time.Since(started)),
	}
	switch {
	case result.Canceled:
		logger.Warn("export run canceled", logging.Args(attrs...)...)
	case result.Failed() > 0:
		logger.Warn("export run finished with failures", logging.Args(attrs...)...)
	default:
		logger.Info("export run finished", logging.Args(attrs...)...)
	}
	return result, runErr
}

func (e *Exporter) runJob(ctx context.Context, logger *slog.Logger, seq int, j job) ItemResult {
	item := ItemResult{Seq: seq, Controller: j.controller, Source: j.source.Path, Destination: j.dest}
	if j.controller != "" {
		ctx = logging.WithController(ctx, j.controller)
		logger = logger.With(logging.String(logging.FieldController, j.controller))
	}
	started := time.Now()
	err := j.planErr
	if err == nil {
		err = os.MkdirAll(filepath.Dir(j.dest), 0o755)
	}
	if err == nil {
		err = e.Runner.Export(ctx, j.source.Path, j.dest, j.target)
	}
	item.Duration = time.Since(started)
	item.Err = err
	if err != nil {
		logging.ErrorWithContext(logger, "export failed", "export_failed",
			logging.String(logging.FieldSource, j.source.Path),
			logging.String(logging.FieldDestination, j.dest),
			logging.String("ranges", channels.Format(j.target.Ranges)),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldImpact, "this controller will not receive the sequence"),
		)
	}
	return item
}

func (j job) label() string {
	if j.controller == "" {
		return j.source.FileName()
	}
	return j.controller + ": " + j.source.FileName()
}

func (e *Exporter) report(p Progress) {
	if e.Reporter != nil {
		e.Reporter(p)
	}
}
