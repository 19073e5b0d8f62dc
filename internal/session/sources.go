package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"fseqgen/internal/batch"
	"fseqgen/internal/config"
	"fseqgen/internal/library"
	"fseqgen/internal/logging"
)

// RefreshFiles rescans dir (the configured source dir when empty) for
// sequences. Every file starts selected. When the folder holds a topology
// document it replaces the controller list.
func (s *Session) RefreshFiles(dir string) ([]library.Entry, error) {
	if strings.TrimSpace(dir) == "" {
		dir = s.sourceDir
	} else {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return nil, err
		}
		dir = expanded
	}
	entries, err := library.Scan(dir, s.cfg.Export.SourcePattern)
	if err != nil {
		return nil, err
	}
	s.sourceDir = dir
	s.sources = make([]batch.Source, 0, len(entries))
	for _, e := range entries {
		s.sources = append(s.sources, batch.Source{Name: e.Name, Path: e.Path, Selected: true})
	}
	s.logger.Info("source files refreshed",
		logging.String(logging.FieldEventType, "sources_refreshed"),
		logging.String("dir", dir),
		logging.Int("files", len(entries)),
	)
	if len(entries) == 0 {
		return entries, nil
	}

	path, ok := library.TopologyPath(dir)
	if !ok {
		logging.WarnWithContext(s.logger, "no controller file found in the source folder", "topology_missing",
			logging.String("path", path),
			logging.String(logging.FieldImpact, "fleet export uses the previously loaded controllers, if any"),
			logging.String(logging.FieldErrorHint, "save the xLights controller setup next to the renders or pass --topology"),
		)
		return entries, nil
	}
	if _, err := s.LoadTopology(path); err != nil {
		logging.WarnWithContext(s.logger, "controller file could not be loaded", "topology_load_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldImpact, "fleet export uses the previously loaded controllers, if any"),
		)
	}
	return entries, nil
}

// SourceDir is the folder the source list was last scanned from.
func (s *Session) SourceDir() string { return s.sourceDir }

// Sources returns the source list with its selection state.
func (s *Session) Sources() []batch.Source {
	return append([]batch.Source(nil), s.sources...)
}

// Select narrows the selection. With include names only those files are
// selected; exclude names are then deselected. Names match file names,
// ignoring case.
func (s *Session) Select(include, exclude []string) error {
	if len(include) > 0 {
		for i := range s.sources {
			s.sources[i].Selected = false
		}
		for _, name := range include {
			i, err := s.sourceIndex(name)
			if err != nil {
				return err
			}
			s.sources[i].Selected = true
		}
	}
	for _, name := range exclude {
		i, err := s.sourceIndex(name)
		if err != nil {
			return err
		}
		s.sources[i].Selected = false
	}
	return nil
}

func (s *Session) sourceIndex(name string) (int, error) {
	name = strings.TrimSpace(name)
	for i, src := range s.sources {
		if strings.EqualFold(src.Name, name) || src.Path == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("source %q not found in %s", name, s.sourceDir)
}

func (s *Session) ensureSources() error {
	if len(s.sources) > 0 {
		return nil
	}
	if _, err := s.RefreshFiles(""); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("source folder %s does not exist: %w", s.sourceDir, err)
		}
		return err
	}
	return nil
}
