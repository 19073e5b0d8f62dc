package session

import (
	"context"
	"errors"
	"strings"

	"fseqgen/internal/batch"
	"fseqgen/internal/channels"
	"fseqgen/internal/config"
	"fseqgen/internal/export"
	"fseqgen/internal/logging"
	"fseqgen/internal/topology"
)

// DefaultTarget is the export encoding from the config, with no ranges.
func (s *Session) DefaultTarget() export.Target {
	major, minor := s.cfg.FormatVersion()
	return export.Target{
		FormatVersion:    major,
		FormatMinor:      minor,
		Compression:      s.cfg.CompressionType(),
		CompressionLevel: s.cfg.Export.CompressionLevel,
		Sparse:           s.cfg.Export.Sparse,
	}
}

// SingleOptions configures ExportSingle. With Target.Sparse set the export
// keeps the Count channels starting at 0-based offset Start; otherwise the
// sources are copied whole. Controller, when set, fills Start and Count
// from that controller.
type SingleOptions struct {
	DestDir    string
	Target     export.Target
	Start      uint32
	Count      uint32
	Controller string
}

// ExportSingle exports every selected source with one target.
func (s *Session) ExportSingle(ctx context.Context, opts SingleOptions) (batch.Result, error) {
	if err := s.ensureSources(); err != nil {
		return batch.Result{}, err
	}
	dest, err := s.destination(opts.DestDir)
	if err != nil {
		return batch.Result{}, err
	}

	start, count := opts.Start, opts.Count
	if name := strings.TrimSpace(opts.Controller); name != "" {
		c, err := s.controllerForSingle(name)
		if err != nil {
			return batch.Result{}, err
		}
		ranges, err := channels.ForController(c.StartChannel, c.ChannelCount)
		if err != nil {
			return batch.Result{}, err
		}
		start, count = ranges[0].Offset, ranges[0].Length
		if !opts.Target.Sparse {
			logging.WarnWithContext(s.logger, "controller selection ignored without sparse", "controller_prefill_ignored",
				logging.String(logging.FieldController, c.Name),
				logging.String(logging.FieldImpact, "sources are copied with every channel"),
				logging.String(logging.FieldErrorHint, "add --sparse to export only the controller's channels"),
			)
		}
	}

	target := opts.Target.WithRanges(channels.Manual(start, count, opts.Target.Sparse))
	return s.exporter.RunSingle(ctx, batch.SingleRequest{
		Sources: s.sources,
		DestDir: dest,
		Target:  target,
	})
}

// FleetOptions configures ExportFleet. Template.Ranges is ignored.
type FleetOptions struct {
	DestDir  string
	Topology string
	Template export.Target
}

// ExportFleet exports every selected source once per loaded controller.
func (s *Session) ExportFleet(ctx context.Context, opts FleetOptions) (batch.Result, error) {
	if err := s.ensureSources(); err != nil {
		return batch.Result{}, err
	}
	if strings.TrimSpace(opts.Topology) != "" || len(s.controllers) == 0 {
		if _, err := s.LoadTopology(opts.Topology); err != nil {
			return batch.Result{}, err
		}
	}
	dest, err := s.destination(opts.DestDir)
	if err != nil {
		return batch.Result{}, err
	}
	return s.exporter.RunFleet(ctx, batch.FleetRequest{
		Sources:     s.sources,
		DestDir:     dest,
		Controllers: s.controllers,
		Template:    opts.Template.WithRanges(nil),
	})
}

func (s *Session) controllerForSingle(name string) (topology.Controller, error) {
	if len(s.controllers) == 0 {
		if _, err := s.LoadTopology(""); err != nil {
			return topology.Controller{}, err
		}
	}
	return s.Controller(name)
}

func (s *Session) destination(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = s.cfg.Paths.OutputDir
	}
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("no destination directory: pass --dest or set paths.output_dir")
	}
	return config.ExpandPath(dir)
}
