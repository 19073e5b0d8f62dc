package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fseqgen/internal/batch"
	"fseqgen/internal/config"
	"fseqgen/internal/export"
	"fseqgen/internal/fseq"
	"fseqgen/internal/history"
	"fseqgen/internal/logging"
	"fseqgen/internal/topology"
)

// Session is not safe for concurrent use.
type Session struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *export.Engine
	exporter *batch.Exporter
	store    *history.Store

	topologyPath string
	controllers  []topology.Controller
	sourceDir    string
	sources      []batch.Source
}

// Option customises a Session.
type Option func(*Session)

// WithReporter receives batch progress.
func WithReporter(reporter batch.Reporter) Option {
	return func(s *Session) { s.exporter.Reporter = reporter }
}

// WithRunner replaces the export engine the batches drive.
func WithRunner(runner batch.Runner) Option {
	return func(s *Session) { s.exporter.Runner = runner }
}

// WithProducer sets the "sp" header stamped into exported files.
func WithProducer(producer string) Option {
	return func(s *Session) {
		if c, ok := s.engine.Codec.(fseq.Codec); ok {
			c.Producer = producer
			s.engine.Codec = c
		}
	}
}

// New wires a session from cfg. The history ledger is opened when enabled;
// a ledger that cannot be opened is logged and the session runs without it.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Session{
		cfg:          cfg,
		logger:       logger,
		topologyPath: cfg.Paths.TopologyFile,
		sourceDir:    cfg.Paths.SourceDir,
	}
	s.engine = export.New(fseq.Codec{Logger: logger, Producer: "fseqgen"}, logger)
	s.exporter = batch.New(s.engine, logger)
	for _, opt := range opts {
		opt(s)
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			logging.WarnWithContext(logger, "export history unavailable", "history_open_failed",
				logging.Error(err),
				logging.String("path", cfg.HistoryPath()),
				logging.String(logging.FieldImpact, "runs are not recorded"),
				logging.String(logging.FieldErrorHint, "check state_dir permissions or disable [history]"),
			)
		} else {
			s.store = store
			s.exporter.Recorder = &recorder{store: store}
			if removed, err := store.Prune(context.Background(), cfg.History.RetentionDays); err != nil {
				logger.Warn("history prune failed", logging.Error(err))
			} else if removed > 0 {
				logger.Debug("history pruned", logging.Int64("runs", removed))
			}
		}
	}
	return s, nil
}

// Close releases the history ledger.
func (s *Session) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config { return s.cfg }

// History returns the open ledger, or nil when history is disabled.
func (s *Session) History() *history.Store { return s.store }

// Controllers returns the loaded controller list.
func (s *Session) Controllers() []topology.Controller {
	return append([]topology.Controller(nil), s.controllers...)
}

// TopologyPath is the document the controller list was last loaded from.
func (s *Session) TopologyPath() string { return s.topologyPath }

// LoadTopology replaces the controller list with the one in path. An empty
// path reloads the configured topology file. On error the previous list is
// kept.
func (s *Session) LoadTopology(path string) ([]topology.Controller, error) {
	if strings.TrimSpace(path) == "" {
		path = s.topologyPath
	} else {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		path = expanded
	}
	if path == "" {
		return nil, errors.New("no topology file configured")
	}
	controllers, err := topology.Load(path, s.logger)
	if err != nil {
		return nil, err
	}
	s.topologyPath = path
	s.controllers = controllers
	s.logger.Info("topology loaded",
		logging.String(logging.FieldEventType, "topology_loaded"),
		logging.String("path", path),
		logging.Int("controllers", len(controllers)),
		logging.Uint64("channels", topology.TotalChannels(controllers)),
	)
	return s.Controllers(), nil
}

// Controller looks up a loaded controller by name, ignoring case.
func (s *Session) Controller(name string) (topology.Controller, error) {
	c, ok := topology.Find(s.controllers, name)
	if !ok {
		return topology.Controller{}, fmt.Errorf("controller %q not found in %s", name, s.topologyPath)
	}
	return c, nil
}
